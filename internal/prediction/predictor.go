// Package prediction applies trained models to new rows with the same
// preprocessing that was used to train them.
package prediction

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tabml/internal/dataset"
	"tabml/internal/preprocess"
)

// PredictionColumn names the appended column when no usable target name is
// available.
const PredictionColumn = "prediction"

var (
	// ErrContractViolation is returned when a prediction cannot be read back
	// from the augmented dataset.
	ErrContractViolation = errors.New("prediction contract violation")
	// ErrTargetRequired is returned by PredictRecord for an empty target name.
	ErrTargetRequired = errors.New("target column is required")
	// ErrLengthMismatch is returned when an estimator returns the wrong number
	// of predictions.
	ErrLengthMismatch = errors.New("prediction count does not match row count")
)

// Estimator is a trained model that maps a feature matrix to labels.
type Estimator interface {
	Predict(X [][]float64) ([]any, error)
}

// Preprocessor is implemented by estimators that carry their training-time
// preprocessing.
type Preprocessor interface {
	Preprocessing() *preprocess.State
}

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsAdd(n int)
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	TargetWarningsInc()
}

type Predictor struct {
	logger      zerolog.Logger
	metrics     MetricsInterface
	dropColumns []string
}

// New returns a predictor that drops the default identifier columns for
// models without persisted preprocessing. metrics may be nil.
func New(logger zerolog.Logger, metrics MetricsInterface) *Predictor {
	return NewWithDropColumns(logger, metrics, preprocess.DefaultDropColumns)
}

func NewWithDropColumns(logger zerolog.Logger, metrics MetricsInterface, drop []string) *Predictor {
	return &Predictor{
		logger:      logger,
		metrics:     metrics,
		dropColumns: append([]string(nil), drop...),
	}
}

// PredictBatch preprocesses ds the way the model was trained, predicts every
// row and appends the predictions to ds itself, which is also returned. The
// new column is named after target when target is set and absent from ds,
// and PredictionColumn otherwise. A target column present in ds is reported
// and kept out of the features.
func (p *Predictor) PredictBatch(m Estimator, ds *dataset.Dataset, target string) (*dataset.Dataset, error) {
	start := time.Now()

	preds, err := p.predict(m, ds, target)
	if err != nil {
		p.fail(err, target)
		return nil, err
	}

	column := PredictionColumn
	if target != "" && !ds.HasColumn(target) {
		column = target
	}
	if err := ds.AddColumn(column, preds); err != nil {
		p.fail(err, target)
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.PredictionsAdd(len(preds))
		p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	p.logger.Debug().Int("rows", ds.Len()).Str("column", column).Msg("Batch predicted")
	return ds, nil
}

// PredictRecord predicts a single row and returns its label. A record that
// already holds the target is reported and the value ignored.
func (p *Predictor) PredictRecord(m Estimator, record dataset.Record, target string) (any, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}

	ds, dropped := dataset.CheckTarget(dataset.FromRecords(record), target)
	if dropped {
		p.warnTarget(target)
	}

	out, err := p.PredictBatch(m, ds, target)
	if err != nil {
		return nil, err
	}
	if out.Len() != 1 {
		return nil, fmt.Errorf("%d rows for a single record: %w", out.Len(), ErrContractViolation)
	}
	v, ok := out.Value(0, target)
	if !ok {
		return nil, fmt.Errorf("column %q missing from result: %w", target, ErrContractViolation)
	}
	return v, nil
}

func (p *Predictor) predict(m Estimator, ds *dataset.Dataset, target string) ([]any, error) {
	if ds == nil {
		return nil, errors.New("nil dataset")
	}

	input, dropped := dataset.CheckTarget(ds, target)
	if dropped {
		p.warnTarget(target)
	}

	X, err := p.features(m, input, target)
	if err != nil {
		return nil, err
	}

	preds, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	if len(preds) != ds.Len() {
		return nil, fmt.Errorf("%d predictions for %d rows: %w", len(preds), ds.Len(), ErrLengthMismatch)
	}
	return preds, nil
}

// features builds the model input. Models that carry a fitted State reuse
// it; others refit the per-call transformation on input.
func (p *Predictor) features(m Estimator, input *dataset.Dataset, target string) ([][]float64, error) {
	if pp, ok := m.(Preprocessor); ok {
		if state := pp.Preprocessing(); state != nil {
			return state.FeatureMatrix(input)
		}
	}

	processed := preprocess.Preprocess(input, target, p.dropColumns)
	features, _ := dataset.CheckTarget(processed, target)
	return preprocess.Matrix(features)
}

func (p *Predictor) warnTarget(target string) {
	if p.metrics != nil {
		p.metrics.TargetWarningsInc()
	}
	p.logger.Warn().Str("target", target).Msg("Target column already exists in the input, dropping it before prediction")
}

func (p *Predictor) fail(err error, target string) {
	if p.metrics != nil {
		p.metrics.PredictionFailuresInc()
	}
	p.logger.Error().Err(err).Str("target", target).Msg("Prediction failed")
}
