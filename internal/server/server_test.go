package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabml/internal/classifier"
	"tabml/internal/dataset"
	"tabml/internal/metrics"
	"tabml/internal/model"
	"tabml/internal/prediction"
	"tabml/internal/registry"
	"tabml/internal/training"
)

const modelID = "titanic_decision_tree"

func passengers(t *testing.T) *dataset.Dataset {
	t.Helper()
	var rows [][]any
	for i := 0; i < 10; i++ {
		rows = append(rows,
			[]any{float64(20 + i), "female", "yes"},
			[]any{float64(20 + i), "male", "no"},
		)
	}
	ds, err := dataset.New([]string{"age", "sex", "survived"}, rows)
	require.NoError(t, err)
	return ds
}

func trainModel(t *testing.T) (*model.Model, model.Metadata) {
	t.Helper()
	trainer := training.New(zerolog.Nop(), nil)
	trainer.Candidates = func(seed int64) []classifier.Candidate {
		return []classifier.Candidate{
			{Name: classifier.DecisionTreeName, Model: classifier.NewDecisionTree(0, 2, seed)},
		}
	}
	m, meta, err := trainer.TrainBest(passengers(t), "survived", "titanic", training.DefaultSeed)
	require.NoError(t, err)
	require.Equal(t, modelID, meta.ID)
	return m, meta
}

type testServer struct {
	ms       *ModelServer
	store    *registry.Store
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store, err := registry.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, meta := trainModel(t)
	_, err = store.Save(m, meta)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	met := metrics.NewWithRegistry(reg)
	observer := metrics.NewObserver(met)
	opts.Gatherer = reg

	ms, err := New(store, prediction.New(zerolog.Nop(), observer), observer, zerolog.Nop(), opts)
	require.NoError(t, err)
	return &testServer{ms: ms, store: store, metrics: met, registry: reg}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.ms.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPredictRecord(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/predict/"+modelID, PredictRequest{
		Record: dataset.Record{"age": 30, "sex": "female"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decode[PredictResponse](t, rec)
	assert.Equal(t, modelID, resp.ModelID)
	assert.Equal(t, classifier.DecisionTreeName, resp.Algorithm)
	assert.Equal(t, "survived", resp.Target)
	assert.Equal(t, "yes", resp.Prediction)
	assert.NotEmpty(t, resp.Version)
}

func TestPredictRecordKeepsRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})

	data, err := json.Marshal(PredictRequest{Record: dataset.Record{"age": 30, "sex": "male"}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/predict/"+modelID, bytes.NewReader(data))
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	ts.ms.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "no", decode[PredictResponse](t, rec).Prediction)
}

func TestPredictRecordWithTargetInInput(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/predict/"+modelID, PredictRequest{
		Record: dataset.Record{"age": 25, "sex": "female", "survived": "no"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "yes", decode[PredictResponse](t, rec).Prediction)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.TargetWarnings))
}

func TestPredictUsesModelCache(t *testing.T) {
	ts := newTestServer(t, Options{})
	body := PredictRequest{Record: dataset.Record{"age": 30, "sex": "female"}}

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/predict/"+modelID, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.ModelCacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.ModelCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.ModelsCached))
	assert.Equal(t, 3.0, testutil.ToFloat64(ts.metrics.Predictions))
	assert.Equal(t, 3.0, testutil.ToFloat64(ts.metrics.HTTPRequests.WithLabelValues("/predict/{id}", "200")))
}

func TestPredictErrors(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown model", "/predict/missing", PredictRequest{Record: dataset.Record{"age": 1}}, http.StatusNotFound},
		{"invalid json", "/predict/" + modelID, "{", http.StatusBadRequest},
		{"empty record", "/predict/" + modelID, PredictRequest{}, http.StatusBadRequest},
		{"type mismatch", "/predict/" + modelID, PredictRequest{Record: dataset.Record{"age": "old", "sex": "male"}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestPredictBatch(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/predict/"+modelID+"/batch", BatchRequest{
		Records: []dataset.Record{
			{"age": 22, "sex": "female"},
			{"age": 40, "sex": "male"},
			{"age": 31, "sex": "female"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[BatchResponse](t, rec)
	assert.Equal(t, "survived", resp.Column)
	assert.Equal(t, []any{"yes", "no", "yes"}, resp.Predictions)
	assert.Equal(t, 3.0, testutil.ToFloat64(ts.metrics.Predictions))
}

func TestPredictBatchTargetInInput(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodPost, "/predict/"+modelID+"/batch", BatchRequest{
		Records: []dataset.Record{{"age": 22, "sex": "male", "survived": "yes"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[BatchResponse](t, rec)
	assert.Equal(t, prediction.PredictionColumn, resp.Column)
	assert.Equal(t, []any{"no"}, resp.Predictions)
}

func TestPredictBatchLimits(t *testing.T) {
	ts := newTestServer(t, Options{MaxBatchRows: 2})

	rec := ts.do(t, http.MethodPost, "/predict/"+modelID+"/batch", BatchRequest{
		Records: []dataset.Record{{"age": 1}, {"age": 2}, {"age": 3}},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = ts.do(t, http.MethodPost, "/predict/"+modelID+"/batch", BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelsEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.Metadata](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, modelID, list[0].ID)

	rec = ts.do(t, http.MethodGet, "/models/"+modelID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode[model.Metadata](t, rec)
	assert.Equal(t, "survived", meta.TargetColumn)
	assert.Equal(t, training.Description, meta.Description)

	rec = ts.do(t, http.MethodGet, "/models/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/models/"+modelID+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[[]registry.Version](t, rec)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsActive)
}

func TestRollbackInvalidatesCache(t *testing.T) {
	ts := newTestServer(t, Options{})
	body := PredictRequest{Record: dataset.Record{"age": 30, "sex": "female"}}

	rec := ts.do(t, http.MethodPost, "/models/"+modelID+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	first := decode[PredictResponse](t, ts.do(t, http.MethodPost, "/predict/"+modelID, body))

	time.Sleep(time.Millisecond)
	m, meta := trainModel(t)
	second, err := ts.store.Save(m, meta)
	require.NoError(t, err)

	resp := decode[PredictResponse](t, ts.do(t, http.MethodPost, "/predict/"+modelID, body))
	assert.Equal(t, second, resp.Version)

	rec = ts.do(t, http.MethodPost, "/models/"+modelID+"/rollback", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, first.Version, decode[RollbackResponse](t, rec).Version)

	resp = decode[PredictResponse](t, ts.do(t, http.MethodPost, "/predict/"+modelID, body))
	assert.Equal(t, first.Version, resp.Version)
	assert.Equal(t, 3.0, testutil.ToFloat64(ts.metrics.ModelCacheMisses))
}

func TestCachedMetadataIsCopied(t *testing.T) {
	ts := newTestServer(t, Options{})

	first, err := ts.ms.model(modelID)
	require.NoError(t, err)
	first.meta.PerformanceMetrics["f1_score"] = -1
	first.meta.Hyperparameters["random_state"] = "changed"

	second, err := ts.ms.model(modelID)
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, second.meta.PerformanceMetrics["f1_score"])
	assert.NotEqual(t, "changed", second.meta.Hyperparameters["random_state"])
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.ModelCacheHits))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.do(t, http.MethodPost, "/predict/"+modelID, PredictRequest{Record: dataset.Record{"age": 30, "sex": "male"}})

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.ModelsCached)
	assert.Zero(t, health.PredictionFailureRate)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tabml_predictions_total 1"))
}

func TestNotFoundRoute(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode[errorResponse](t, rec).Error)
}
