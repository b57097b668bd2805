package metrics

// Observer adapts Metrics to the narrow reporting interfaces of the trainer,
// the predictor and the server.
type Observer struct {
	m *Metrics
}

func NewObserver(m *Metrics) *Observer {
	return &Observer{m: m}
}

func (o *Observer) TrainingRunsInc() {
	o.m.TrainingRuns.Inc()
}

func (o *Observer) TrainingFailuresInc() {
	o.m.TrainingFailures.Inc()
}

func (o *Observer) TrainingDurationObserve(seconds float64) {
	o.m.TrainingDuration.Observe(seconds)
}

func (o *Observer) CandidateScoreObserve(algorithm string, score float64) {
	o.m.CandidateF1.WithLabelValues(algorithm).Set(score)
	o.m.CandidateScores.WithLabelValues(algorithm).Observe(score)
}

func (o *Observer) PredictionsAdd(n int) {
	o.m.Predictions.Add(float64(n))
}

func (o *Observer) PredictionFailuresInc() {
	o.m.PredictionFailures.Inc()
}

func (o *Observer) PredictionLatencyObserve(seconds float64) {
	o.m.PredictionLatency.Observe(seconds)
}

func (o *Observer) TargetWarningsInc() {
	o.m.TargetWarnings.Inc()
}

func (o *Observer) RequestObserve(route string, code string) {
	o.m.HTTPRequests.WithLabelValues(route, code).Inc()
}

func (o *Observer) CacheHitInc() {
	o.m.ModelCacheHits.Inc()
}

func (o *Observer) CacheMissInc() {
	o.m.ModelCacheMisses.Inc()
}

func (o *Observer) CachedModelsSet(n int) {
	o.m.ModelsCached.Set(float64(n))
}
