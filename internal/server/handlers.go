package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tabml/internal/dataset"
	"tabml/internal/metrics"
	"tabml/internal/prediction"
	"tabml/internal/preprocess"
	"tabml/internal/registry"
)

// PredictRequest carries one record. Target defaults to the target column
// the model was trained on.
type PredictRequest struct {
	Record dataset.Record `json:"record"`
	Target string         `json:"target,omitempty"`
}

type PredictResponse struct {
	ModelID    string `json:"model_id"`
	Version    string `json:"version"`
	Algorithm  string `json:"algorithm"`
	Target     string `json:"target"`
	Prediction any    `json:"prediction"`
}

type BatchRequest struct {
	Records []dataset.Record `json:"records"`
	Target  string           `json:"target,omitempty"`
}

// BatchResponse holds one prediction per request record, in order, and the
// column name they were appended under.
type BatchResponse struct {
	ModelID     string `json:"model_id"`
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	Column      string `json:"column"`
	Predictions []any  `json:"predictions"`
}

type HealthResponse struct {
	Status                string  `json:"status"`
	ModelsCached          int     `json:"models_cached"`
	PredictionFailureRate float64 `json:"prediction_failure_rate"`
}

type RollbackResponse struct {
	ModelID string `json:"model_id"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PredictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Record) == 0 {
		writeError(w, http.StatusBadRequest, "record cannot be empty")
		return
	}

	cm, err := ms.model(id)
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	target := req.Target
	if target == "" {
		target = cm.meta.TargetColumn
	}

	pred, err := ms.predictor.PredictRecord(cm.model, req.Record, target)
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		ModelID:    id,
		Version:    cm.version,
		Algorithm:  cm.meta.Algorithm,
		Target:     target,
		Prediction: pred,
	})
}

func (ms *ModelServer) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records cannot be empty")
		return
	}
	if ms.opts.MaxBatchRows > 0 && len(req.Records) > ms.opts.MaxBatchRows {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%d records exceed the limit of %d", len(req.Records), ms.opts.MaxBatchRows))
		return
	}

	cm, err := ms.model(id)
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	target := req.Target
	if target == "" {
		target = cm.meta.TargetColumn
	}

	ds := dataset.FromRecords(req.Records...)
	column := prediction.PredictionColumn
	if target != "" && !ds.HasColumn(target) {
		column = target
	}

	out, err := ms.predictor.PredictBatch(cm.model, ds, target)
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	preds, _ := out.Column(column)

	writeJSON(w, http.StatusOK, BatchResponse{
		ModelID:     id,
		Version:     cm.version,
		Algorithm:   cm.meta.Algorithm,
		Column:      column,
		Predictions: preds,
	})
}

func (ms *ModelServer) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := ms.store.List()
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (ms *ModelServer) handleModel(w http.ResponseWriter, r *http.Request) {
	meta, err := ms.store.Metadata(chi.URLParam(r, "id"))
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (ms *ModelServer) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := ms.store.Versions(chi.URLParam(r, "id"))
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (ms *ModelServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	version, err := ms.store.Rollback(id)
	if err != nil {
		ms.writeFailure(w, r, err)
		return
	}
	ms.cache.Remove(id)
	if ms.observer != nil {
		ms.observer.CachedModelsSet(ms.cache.Len())
	}
	ms.logger.Info().Str("model_id", id).Str("version", version).Msg("Rolled back model")
	writeJSON(w, http.StatusOK, RollbackResponse{ModelID: id, Version: version})
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:                "ok",
		ModelsCached:          ms.cache.Len(),
		PredictionFailureRate: metrics.PredictionFailureRate(ms.opts.Gatherer),
	})
}

func (ms *ModelServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		ms.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		ms.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrNoRollback):
		return http.StatusConflict
	case errors.Is(err, prediction.ErrTargetRequired),
		errors.Is(err, preprocess.ErrTypeMismatch),
		errors.Is(err, preprocess.ErrNotNumeric),
		errors.Is(err, dataset.ErrColumnExists):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
