// Package training fits every candidate classifier on one seeded holdout
// split and keeps the one with the best macro-F1 on the validation rows.
package training

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tabml/internal/classifier"
	"tabml/internal/dataset"
	"tabml/internal/evaluation"
	"tabml/internal/model"
	"tabml/internal/preprocess"
)

// Description names the candidate pool in every Metadata record.
const Description = "Best model selected among BoostedTrees, RandomForest, LogisticRegression, SVM, DecisionTree"

// DefaultTestSize is the validation share of the holdout split.
const DefaultTestSize = 0.2

// DefaultSeed is used when callers have no seed of their own.
const DefaultSeed int64 = 42

// ErrInvalidData marks training data that cannot produce a model: no rows,
// missing labels, a single class or a split with an empty side.
var ErrInvalidData = errors.New("invalid training data")

// MetricsInterface defines metrics methods needed by the trainer
type MetricsInterface interface {
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	CandidateScoreObserve(algorithm string, score float64)
}

// Trainer selects the best classifier for a dataset.
type Trainer struct {
	Logger      zerolog.Logger
	Metrics     MetricsInterface
	DropColumns []string
	TestSize    float64
	Now         func() time.Time
	// Candidates builds the models to compare, in evaluation order.
	Candidates func(seed int64) []classifier.Candidate
}

// New returns a trainer with the default candidate pool, drop list and split.
// metrics may be nil.
func New(logger zerolog.Logger, metrics MetricsInterface) *Trainer {
	return &Trainer{
		Logger:      logger,
		Metrics:     metrics,
		DropColumns: preprocess.DefaultDropColumns,
		TestSize:    DefaultTestSize,
		Now:         time.Now,
		Candidates:  classifier.Candidates,
	}
}

// Score is the validation result of one candidate.
type Score struct {
	Algorithm string
	F1        float64
	Accuracy  float64
}

// TrainBest preprocesses ds, fits every candidate on the same 80/20 split
// and returns the winner with its metadata. A candidate replaces the current
// best only with a strictly higher macro-F1, so ties go to the earlier one.
func (t *Trainer) TrainBest(ds *dataset.Dataset, target, idPrefix string, seed int64) (*model.Model, model.Metadata, error) {
	begin := time.Now()
	start := t.now()
	if t.Metrics != nil {
		t.Metrics.TrainingRunsInc()
	}

	m, meta, err := t.trainBest(ds, target, idPrefix, seed, start)
	if err != nil {
		if t.Metrics != nil {
			t.Metrics.TrainingFailuresInc()
		}
		t.Logger.Error().Err(err).Str("target", target).Msg("Training failed")
		return nil, model.Metadata{}, err
	}

	if t.Metrics != nil {
		t.Metrics.TrainingDurationObserve(time.Since(begin).Seconds())
	}
	return m, meta, nil
}

func (t *Trainer) trainBest(ds *dataset.Dataset, target, idPrefix string, seed int64, start time.Time) (*model.Model, model.Metadata, error) {
	state := preprocess.Fit(ds, target, t.DropColumns)
	transformed, err := state.Transform(ds)
	if err != nil {
		return nil, model.Metadata{}, err
	}

	features, rawLabels, err := dataset.SplitFeaturesTarget(transformed, target)
	if err != nil {
		return nil, model.Metadata{}, err
	}
	if features.Len() == 0 {
		return nil, model.Metadata{}, fmt.Errorf("dataset is empty: %w", ErrInvalidData)
	}

	X, err := preprocess.Matrix(features)
	if err != nil {
		return nil, model.Metadata{}, err
	}

	labels := preprocess.NewLabelEncoder()
	y, err := labels.FitTransform(rawLabels)
	if err != nil {
		return nil, model.Metadata{}, fmt.Errorf("%w: target %q: %w", ErrInvalidData, target, err)
	}
	if labels.Len() < 2 {
		return nil, model.Metadata{}, fmt.Errorf("target %q has %d distinct class(es), need at least 2: %w", target, labels.Len(), ErrInvalidData)
	}

	testSize := t.TestSize
	if testSize == 0 {
		testSize = DefaultTestSize
	}
	trainIdx, testIdx, err := evaluation.TrainTestSplit(len(y), testSize, seed)
	if err != nil {
		return nil, model.Metadata{}, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	XTrain, yTrain := evaluation.Take(X, trainIdx), evaluation.TakeLabels(y, trainIdx)
	XTest, yTest := evaluation.Take(X, testIdx), evaluation.TakeLabels(y, testIdx)

	t.Logger.Info().
		Str("target", target).
		Int("rows", len(y)).
		Int("features", len(state.Features())).
		Int("classes", labels.Len()).
		Int("train_rows", len(trainIdx)).
		Int("validation_rows", len(testIdx)).
		Int64("seed", seed).
		Msg("Training candidates")

	candidates := t.candidates(seed)
	if len(candidates) == 0 {
		return nil, model.Metadata{}, errors.New("no candidate models configured")
	}

	scores := make([]Score, 0, len(candidates))
	best := -1
	for _, c := range candidates {
		if err := c.Model.Fit(XTrain, yTrain); err != nil {
			return nil, model.Metadata{}, fmt.Errorf("fit %s: %w", c.Name, err)
		}
		pred, err := c.Model.Predict(XTest)
		if err != nil {
			return nil, model.Metadata{}, fmt.Errorf("predict %s: %w", c.Name, err)
		}

		s := Score{
			Algorithm: c.Name,
			F1:        evaluation.MacroF1(yTest, pred),
			Accuracy:  evaluation.Accuracy(yTest, pred),
		}
		scores = append(scores, s)
		if t.Metrics != nil {
			t.Metrics.CandidateScoreObserve(c.Name, s.F1)
		}
		t.Logger.Debug().Str("algorithm", c.Name).Float64("f1_score", s.F1).Float64("accuracy", s.Accuracy).Msg("Candidate evaluated")

		if best < 0 || s.F1 > scores[best].F1 {
			best = len(scores) - 1
		}
	}

	winner := candidates[best]
	meta := buildMetadata(idPrefix, target, seed, start, winner, scores, best)

	t.Logger.Info().
		Str("id", meta.ID).
		Str("algorithm", winner.Name).
		Float64("f1_score", scores[best].F1).
		Msg("Selected best model")

	m := &model.Model{
		Classifier:  winner.Model,
		Target:      target,
		Preprocess:  state,
		Labels:      labels,
		DropColumns: append([]string(nil), t.DropColumns...),
	}
	return m, meta, nil
}

func buildMetadata(idPrefix, target string, seed int64, created time.Time, winner classifier.Candidate, scores []Score, best int) model.Metadata {
	hyper := map[string]any{"random_state": seed}
	for k, v := range winner.Model.Params() {
		hyper[k] = v
	}

	perf := map[string]float64{
		"f1_score": scores[best].F1,
		"accuracy": scores[best].Accuracy,
	}
	for _, s := range scores {
		perf["f1_score_"+s.Algorithm] = s.F1
	}

	return model.Metadata{
		ID:                 fmt.Sprintf("%s_%s", idPrefix, winner.Name),
		CreatedAt:          model.FormatTime(created),
		Algorithm:          winner.Name,
		TargetColumn:       target,
		Hyperparameters:    hyper,
		Description:        Description,
		PerformanceMetrics: perf,
	}
}

// Leaderboard returns the candidate scores recorded in meta, in evaluation
// order of names.
func Leaderboard(meta model.Metadata, names []string) []Score {
	out := make([]Score, 0, len(names))
	for _, name := range names {
		f1, ok := meta.PerformanceMetrics["f1_score_"+name]
		if !ok {
			continue
		}
		out = append(out, Score{Algorithm: name, F1: f1})
	}
	return out
}

func (t *Trainer) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func (t *Trainer) candidates(seed int64) []classifier.Candidate {
	if t.Candidates == nil {
		return classifier.Candidates(seed)
	}
	return t.Candidates(seed)
}
