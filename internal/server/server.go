// Package server exposes registered models over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tabml/internal/model"
	"tabml/internal/prediction"
	"tabml/internal/registry"
)

const requestIDHeader = "X-Request-Id"

// ModelStore is the part of the registry the server reads from.
type ModelStore interface {
	Load(id string) (*model.Model, model.Metadata, error)
	Metadata(id string) (model.Metadata, error)
	List() ([]model.Metadata, error)
	Versions(id string) ([]registry.Version, error)
	Active(id string) (registry.Version, error)
	Rollback(id string) (string, error)
}

// Observer receives server metrics. A nil Observer disables them.
type Observer interface {
	RequestObserve(route, code string)
	CacheHitInc()
	CacheMissInc()
	CachedModelsSet(n int)
}

type Options struct {
	Port           int
	CacheSize      int
	RequestTimeout time.Duration
	MaxBatchRows   int
	// Gatherer backs /metrics and the failure rate on /health. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

type cachedModel struct {
	model   *model.Model
	meta    model.Metadata
	version string
}

// ModelServer provides the prediction and model management API.
type ModelServer struct {
	store     ModelStore
	predictor *prediction.Predictor
	observer  Observer
	logger    zerolog.Logger
	opts      Options
	cache     *lru.Cache[string, cachedModel]
	router    chi.Router
	server    *http.Server
}

// New creates a server. observer may be nil.
func New(store ModelStore, predictor *prediction.Predictor, observer Observer, logger zerolog.Logger, opts Options) (*ModelServer, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 16
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	cache, err := lru.New[string, cachedModel](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}

	ms := &ModelServer{
		store:     store,
		predictor: predictor,
		observer:  observer,
		logger:    logger,
		opts:      opts,
		cache:     cache,
	}
	ms.router = ms.routes()
	ms.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      ms.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return ms, nil
}

func (ms *ModelServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(ms.requestID)
	r.Use(middleware.RealIP)
	r.Use(ms.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(ms.opts.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})

	r.Get("/health", ms.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(ms.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/models", func(r chi.Router) {
		r.Get("/", ms.handleListModels)
		r.Get("/{id}", ms.handleModel)
		r.Get("/{id}/versions", ms.handleVersions)
		r.Post("/{id}/rollback", ms.handleRollback)
	})

	r.Post("/predict/{id}", ms.handlePredict)
	r.Post("/predict/{id}/batch", ms.handlePredictBatch)
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (ms *ModelServer) Handler() http.Handler {
	return ms.router
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	ms.logger.Info().Str("addr", ms.server.Addr).Msg("Starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// model returns the active version of id, loading it from the store when
// the cache holds a different version or none. The returned metadata is a
// copy the caller may modify.
func (ms *ModelServer) model(id string) (cachedModel, error) {
	active, err := ms.store.Active(id)
	if err != nil {
		return cachedModel{}, err
	}

	if cm, ok := ms.cache.Get(id); ok && cm.version == active.Version {
		if ms.observer != nil {
			ms.observer.CacheHitInc()
		}
		cm.meta = cm.meta.Clone()
		return cm, nil
	}
	if ms.observer != nil {
		ms.observer.CacheMissInc()
	}

	m, meta, err := ms.store.Load(id)
	if err != nil {
		return cachedModel{}, err
	}
	cm := cachedModel{model: m, meta: meta, version: active.Version}
	ms.cache.Add(id, cm)
	if ms.observer != nil {
		ms.observer.CachedModelsSet(ms.cache.Len())
	}
	ms.logger.Debug().Str("model_id", id).Str("version", active.Version).Msg("Model loaded into cache")
	cm.meta = meta.Clone()
	return cm, nil
}

func (ms *ModelServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (ms *ModelServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if ms.observer != nil {
			ms.observer.RequestObserve(route, fmt.Sprint(status))
		}
		ms.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request served")
	})
}
