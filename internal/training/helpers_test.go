package training

import (
	"errors"
	"sync"

	"tabml/internal/classifier"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu        sync.Mutex
	runs      int
	failures  int
	durations int
	scores    map[string]float64
	order     []string
}

func (m *MockMetrics) TrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}

func (m *MockMetrics) TrainingFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) TrainingDurationObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *MockMetrics) CandidateScoreObserve(algorithm string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores == nil {
		m.scores = make(map[string]float64)
	}
	m.scores[algorithm] = score
	m.order = append(m.order, algorithm)
}

var errFit = errors.New("fit exploded")

// fakeClassifier predicts with a fixed rule over the first feature.
type fakeClassifier struct {
	name   string
	rule   func(x float64) int
	fitErr error
	fitted bool
}

func (f *fakeClassifier) Fit(X [][]float64, y []int) error {
	if f.fitErr != nil {
		return f.fitErr
	}
	f.fitted = true
	return nil
}

func (f *fakeClassifier) Predict(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		out[i] = f.rule(row[0])
	}
	return out, nil
}

func (f *fakeClassifier) Name() string { return f.name }

func (f *fakeClassifier) Params() map[string]any { return map[string]any{"rule": f.name} }

func perfect(x float64) int  { return int(x) }
func inverted(x float64) int { return 1 - int(x) }

func fakePool(fakes ...*fakeClassifier) func(int64) []classifier.Candidate {
	return func(int64) []classifier.Candidate {
		out := make([]classifier.Candidate, len(fakes))
		for i, f := range fakes {
			out[i] = classifier.Candidate{Name: f.name, Model: f}
		}
		return out
	}
}
