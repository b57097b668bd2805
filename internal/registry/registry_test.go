package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabml/internal/classifier"
	"tabml/internal/dataset"
	"tabml/internal/model"
	"tabml/internal/preprocess"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store
}

func fittedModel(t *testing.T, clf classifier.Classifier) *model.Model {
	t.Helper()
	ds := dataset.FromRecords(
		dataset.Record{"x": 1, "y": "a"},
		dataset.Record{"x": 2, "y": "a"},
		dataset.Record{"x": 8, "y": "b"},
		dataset.Record{"x": 9, "y": "b"},
	)
	state := preprocess.Fit(ds, "y", nil)
	X, err := state.FeatureMatrix(ds)
	require.NoError(t, err)
	target, _ := ds.Column("y")
	labels := preprocess.NewLabelEncoder()
	codes, err := labels.FitTransform(target)
	require.NoError(t, err)
	require.NoError(t, clf.Fit(X, codes))

	return &model.Model{Classifier: clf, Target: "y", Preprocess: state, Labels: labels}
}

func metadata(id, algorithm string, score float64) model.Metadata {
	return model.Metadata{
		ID:                 id,
		CreatedAt:          "2024-01-01 00:00:00.000000",
		Algorithm:          algorithm,
		TargetColumn:       "y",
		Hyperparameters:    map[string]any{"random_state": 42},
		Description:        "test",
		PerformanceMetrics: map[string]float64{"f1_score": score},
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	assert.NoError(t, store.Close())
}

func TestSaveAndLoad(t *testing.T) {
	store := newStore(t)
	m := fittedModel(t, classifier.NewDecisionTree(0, 2, 42))

	version, err := store.Save(m, metadata("toy_decision_tree", classifier.DecisionTreeName, 1))
	require.NoError(t, err)
	assert.Contains(t, version, "20240101-000001")

	loaded, meta, err := store.Load("toy_decision_tree")
	require.NoError(t, err)
	assert.Equal(t, "toy_decision_tree", meta.ID)
	assert.Equal(t, 1.0, meta.Score())
	// JSON numbers come back as float64
	assert.Equal(t, 42.0, meta.Hyperparameters["random_state"])

	pred, err := loaded.Predict([][]float64{{0}, {10}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, pred)
}

func TestLoadMissing(t *testing.T) {
	store := newStore(t)

	_, _, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Metadata("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Versions("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("nope"), ErrNotFound)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	store := newStore(t)
	_, err := store.Save(fittedModel(t, classifier.NewDecisionTree(0, 2, 1)), model.Metadata{})
	assert.Error(t, err)
}

func TestVersionsAndRollback(t *testing.T) {
	store := newStore(t)
	m := fittedModel(t, classifier.NewDecisionTree(0, 2, 42))

	v1, err := store.Save(m, metadata("titanic", "decision_tree", 0.7))
	require.NoError(t, err)
	v2, err := store.Save(m, metadata("titanic", "random_forest", 0.8))
	require.NoError(t, err)
	v3, err := store.Save(m, metadata("titanic", "svm", 0.75))
	require.NoError(t, err)

	versions, err := store.Versions("titanic")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []string{v3, v2, v1}, []string{versions[0].Version, versions[1].Version, versions[2].Version})
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[1].IsActive)

	meta, err := store.Metadata("titanic")
	require.NoError(t, err)
	assert.Equal(t, "svm", meta.Algorithm)

	active, err := store.Active("titanic")
	require.NoError(t, err)
	assert.Equal(t, v3, active.Version)
	assert.Equal(t, 0.75, active.F1Score)

	previous, err := store.Rollback("titanic")
	require.NoError(t, err)
	assert.Equal(t, v2, previous)
	meta, err = store.Metadata("titanic")
	require.NoError(t, err)
	assert.Equal(t, "random_forest", meta.Algorithm)

	_, err = store.Rollback("titanic")
	require.NoError(t, err)
	_, err = store.Rollback("titanic")
	assert.ErrorIs(t, err, ErrNoRollback)

	require.NoError(t, store.Activate("titanic", v3))
	meta, err = store.Metadata("titanic")
	require.NoError(t, err)
	assert.Equal(t, "svm", meta.Algorithm)

	assert.ErrorIs(t, store.Activate("titanic", "missing"), ErrVersionNotFound)

	_, old, err := store.LoadVersion("titanic", v1)
	require.NoError(t, err)
	assert.Equal(t, 0.7, old.Score())
}

func TestListAndDelete(t *testing.T) {
	store := newStore(t)
	m := fittedModel(t, classifier.NewLogisticRegression(200, 1, 1))

	_, err := store.Save(m, metadata("b_svm", "svm", 0.5))
	require.NoError(t, err)
	_, err = store.Save(m, metadata("a_svm", "svm", 0.6))
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a_svm", list[0].ID)
	assert.Equal(t, "b_svm", list[1].ID)

	require.NoError(t, store.Delete("a_svm"))
	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b_svm", list[0].ID)
}

func TestReopenKeepsModels(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	_, err = store.Save(fittedModel(t, classifier.NewRandomForest(5, 0, 2, 3)), metadata("rf", "random_forest", 1))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = New(dir)
	require.NoError(t, err)
	defer store.Close()

	m, _, err := store.Load("rf")
	require.NoError(t, err)
	assert.Equal(t, classifier.RandomForestName, m.Algorithm())
}

func TestConcurrentAccess(t *testing.T) {
	store := newStore(t)
	store.now = time.Now
	m := fittedModel(t, classifier.NewDecisionTree(0, 2, 42))
	_, err := store.Save(m, metadata("shared", "decision_tree", 1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := store.Load("shared")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := store.Save(m, metadata("shared", "decision_tree", 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	versions, err := store.Versions("shared")
	require.NoError(t, err)
	assert.Len(t, versions, 11)
}

func TestRollbackEdges(t *testing.T) {
	store := newStore(t)
	m := fittedModel(t, classifier.NewDecisionTree(0, 2, 42))

	_, err := store.Rollback("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	v1, err := store.Save(m, metadata("titanic", "decision_tree", 0.7))
	require.NoError(t, err)
	v2, err := store.Save(m, metadata("titanic", "svm", 0.8))
	require.NoError(t, err)

	require.NoError(t, store.Activate("titanic", v1))
	_, err = store.Rollback("titanic")
	assert.ErrorIs(t, err, ErrNoRollback)

	require.NoError(t, store.Activate("titanic", v2))
	previous, err := store.Rollback("titanic")
	require.NoError(t, err)
	assert.Equal(t, v1, previous)
}

func TestRollbackConcurrentWithSave(t *testing.T) {
	store := newStore(t)
	store.now = time.Now
	m := fittedModel(t, classifier.NewDecisionTree(0, 2, 42))
	for i := 0; i < 3; i++ {
		_, err := store.Save(m, metadata("shared", "decision_tree", 1))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.Save(m, metadata("shared", "decision_tree", 1))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			previous, err := store.Rollback("shared")
			if err == nil {
				_, _, err = store.LoadVersion("shared", previous)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNoRollback)
		}
	}

	versions, err := store.Versions("shared")
	require.NoError(t, err)
	assert.Len(t, versions, 13)
	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}
