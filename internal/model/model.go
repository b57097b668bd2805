package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sync"

	"tabml/internal/classifier"
	"tabml/internal/preprocess"
)

var ErrNoClassifier = errors.New("model has no classifier")

// Model is a trained classifier together with everything needed to feed it:
// the fitted preprocessing and the target label mapping.
type Model struct {
	Classifier  classifier.Classifier
	Target      string
	Preprocess  *preprocess.State
	Labels      *preprocess.LabelEncoder
	DropColumns []string
}

// Algorithm returns the classifier family name.
func (m *Model) Algorithm() string {
	if m.Classifier == nil {
		return ""
	}
	return m.Classifier.Name()
}

// Predict classifies the rows of X and returns decoded labels. Without a
// label encoder the raw class indices are returned as float64.
func (m *Model) Predict(X [][]float64) ([]any, error) {
	if m.Classifier == nil {
		return nil, ErrNoClassifier
	}
	codes, err := m.Classifier.Predict(X)
	if err != nil {
		return nil, err
	}
	if m.Labels == nil {
		out := make([]any, len(codes))
		for i, c := range codes {
			out[i] = float64(c)
		}
		return out, nil
	}
	return m.Labels.Inverse(codes)
}

// Preprocessing returns the persisted transformation, nil when the model was
// built without one.
func (m *Model) Preprocessing() *preprocess.State {
	return m.Preprocess
}

var registerOnce sync.Once

func registerTypes() {
	registerOnce.Do(func() {
		gob.Register(&classifier.BoostedTrees{})
		gob.Register(&classifier.RandomForest{})
		gob.Register(&classifier.LogisticRegression{})
		gob.Register(&classifier.LinearSVM{})
		gob.Register(&classifier.DecisionTree{})
	})
}

// Encode writes m to w in gob format.
func Encode(w io.Writer, m *Model) error {
	if m.Classifier == nil {
		return ErrNoClassifier
	}
	registerTypes()
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Decode reads a gob-encoded model from r.
func Decode(r io.Reader) (*Model, error) {
	registerTypes()
	var m Model
	if err := gob.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Classifier == nil {
		return nil, ErrNoClassifier
	}
	return &m, nil
}

// Marshal returns the gob encoding of m.
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a model produced by Marshal.
func Unmarshal(data []byte) (*Model, error) {
	return Decode(bytes.NewReader(data))
}
