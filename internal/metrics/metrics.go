// Package metrics provides Prometheus metrics for model training, prediction
// and the model server.
//
// Metrics are created through a promauto factory bound to a registerer so
// tests can use an isolated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	// Training metrics
	TrainingRuns     prometheus.Counter       // Total number of training runs started
	TrainingFailures prometheus.Counter       // Total number of failed training runs
	TrainingDuration prometheus.Histogram     // Wall time of successful training runs
	CandidateF1      *prometheus.GaugeVec     // Last validation macro-F1 per algorithm
	CandidateScores  *prometheus.HistogramVec // Distribution of validation macro-F1 per algorithm

	// Prediction metrics
	Predictions        prometheus.Counter   // Total number of rows predicted
	PredictionFailures prometheus.Counter   // Total number of failed prediction calls
	PredictionLatency  prometheus.Histogram // Prediction latency in seconds
	TargetWarnings     prometheus.Counter   // Inputs that already carried the target column

	// Server metrics
	HTTPRequests     *prometheus.CounterVec // Requests by route and status code
	ModelCacheHits   prometheus.Counter     // Model lookups served from the cache
	ModelCacheMisses prometheus.Counter     // Model lookups that hit the registry
	ModelsCached     prometheus.Gauge       // Models currently held in the cache
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_training_runs_total",
			Help: "Total number of training runs started",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_training_failures_total",
			Help: "Total number of failed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabml_training_duration_seconds",
			Help:    "Duration of successful training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		CandidateF1: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tabml_candidate_f1_score",
			Help: "Validation macro-F1 of the last evaluation of each algorithm",
		}, []string{"algorithm"}),
		CandidateScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabml_candidate_f1_score_distribution",
			Help:    "Distribution of validation macro-F1 scores per algorithm",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"algorithm"}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_predictions_total",
			Help: "Total number of rows predicted",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_prediction_failures_total",
			Help: "Total number of failed prediction calls",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabml_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		TargetWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_target_warnings_total",
			Help: "Prediction inputs that already contained the target column",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tabml_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		ModelCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_model_cache_hits_total",
			Help: "Model lookups served from the in-memory cache",
		}),
		ModelCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tabml_model_cache_misses_total",
			Help: "Model lookups that had to load from the registry",
		}),
		ModelsCached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tabml_models_cached",
			Help: "Number of models held in the in-memory cache",
		}),
	}
}

// PredictionFailureRate returns failed prediction calls per predicted row as
// reported by gatherer, or 0 if nothing has been predicted yet.
func PredictionFailureRate(gatherer prometheus.Gatherer) float64 {
	var predictions, failures float64

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "tabml_predictions_total":
			for _, m := range mf.GetMetric() {
				predictions = m.GetCounter().GetValue()
			}
		case "tabml_prediction_failures_total":
			for _, m := range mf.GetMetric() {
				failures = m.GetCounter().GetValue()
			}
		}
	}

	if predictions == 0 {
		return 0
	}
	return failures / predictions
}
