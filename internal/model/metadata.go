// Package model defines the trained artifact handed from training to the
// registry and from the registry to prediction.
package model

import (
	"encoding/json"
	"time"
)

// TimeLayout is the layout of Metadata.CreatedAt.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Metadata describes one successful training run. It is built once by the
// trainer and treated as read-only afterwards.
type Metadata struct {
	ID                 string             `json:"id"`
	CreatedAt          string             `json:"created_at"`
	Algorithm          string             `json:"algorithm"`
	TargetColumn       string             `json:"target_column"`
	Hyperparameters    map[string]any     `json:"hyperparameters"`
	Description        string             `json:"description"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
}

// FormatTime renders t in the CreatedAt layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Created parses CreatedAt.
func (m Metadata) Created() (time.Time, error) {
	return time.Parse(TimeLayout, m.CreatedAt)
}

// Score returns the selection score, f1_score.
func (m Metadata) Score() float64 {
	return m.PerformanceMetrics["f1_score"]
}

// Clone returns a deep copy so callers can never reach the original maps.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Hyperparameters != nil {
		out.Hyperparameters = make(map[string]any, len(m.Hyperparameters))
		for k, v := range m.Hyperparameters {
			out.Hyperparameters[k] = v
		}
	}
	if m.PerformanceMetrics != nil {
		out.PerformanceMetrics = make(map[string]float64, len(m.PerformanceMetrics))
		for k, v := range m.PerformanceMetrics {
			out.PerformanceMetrics[k] = v
		}
	}
	return out
}

// MarshalIndent renders the metadata as indented JSON.
func (m Metadata) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
