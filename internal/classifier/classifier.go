// Package classifier implements the candidate model families the trainer
// evaluates. Every model consumes a dense row-major float64 matrix and integer
// class indices 0..K-1, and is deterministic for a fixed seed.
package classifier

import (
	"errors"
	"fmt"
)

// Algorithm names in the fixed evaluation order.
const (
	BoostedTreesName       = "boosted_trees"
	RandomForestName       = "random_forest"
	LogisticRegressionName = "logistic_regression"
	SVMName                = "svm"
	DecisionTreeName       = "decision_tree"
)

var (
	ErrEmptyInput   = errors.New("empty training input")
	ErrShape        = errors.New("inconsistent input shape")
	ErrNotFitted    = errors.New("model must be fitted before predict")
	ErrUnknownModel = errors.New("unknown algorithm")
)

// Classifier is the fit/predict capability the pipeline is polymorphic over.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	Name() string
	Params() map[string]any
}

// Candidate pairs an algorithm name with an untrained model.
type Candidate struct {
	Name  string
	Model Classifier
}

// Names lists the algorithm families in evaluation order. Earlier entries win ties.
var Names = []string{
	BoostedTreesName,
	RandomForestName,
	LogisticRegressionName,
	SVMName,
	DecisionTreeName,
}

// Candidates returns fresh, untrained instances of every family, in order,
// each seeded with seed.
func Candidates(seed int64) []Candidate {
	out := make([]Candidate, 0, len(Names))
	for _, name := range Names {
		m, _ := New(name, seed) // every entry of Names is known to New
		out = append(out, Candidate{Name: name, Model: m})
	}
	return out
}

// New builds an untrained model of the named family with default settings.
func New(name string, seed int64) (Classifier, error) {
	switch name {
	case BoostedTreesName:
		return NewBoostedTrees(50, 3, 1.0, seed), nil
	case RandomForestName:
		return NewRandomForest(100, 0, 2, seed), nil
	case LogisticRegressionName:
		return NewLogisticRegression(1000, 1.0, seed), nil
	case SVMName:
		return NewLinearSVM(0.01, 50, seed), nil
	case DecisionTreeName:
		return NewDecisionTree(0, 2, seed), nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownModel)
	}
}

// checkTrainingInput validates X and y and returns the feature count and K.
func checkTrainingInput(X [][]float64, y []int) (int, int, error) {
	if len(X) == 0 || len(y) == 0 {
		return 0, 0, ErrEmptyInput
	}
	if len(X) != len(y) {
		return 0, 0, fmt.Errorf("%d rows but %d labels: %w", len(X), len(y), ErrShape)
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return 0, 0, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), d, ErrShape)
		}
	}
	k := 0
	for i, label := range y {
		if label < 0 {
			return 0, 0, fmt.Errorf("row %d has negative class %d: %w", i, label, ErrShape)
		}
		if label+1 > k {
			k = label + 1
		}
	}
	return d, k, nil
}

func checkPredictInput(X [][]float64, d int) error {
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("row %d has %d features, model expects %d: %w", i, len(row), d, ErrShape)
		}
	}
	return nil
}

// argmax returns the index of the largest score; ties go to the lowest index.
func argmax(scores []float64) int {
	best := 0
	for k := 1; k < len(scores); k++ {
		if scores[k] > scores[best] {
			best = k
		}
	}
	return best
}
