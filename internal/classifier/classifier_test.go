package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separable() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for i := 0; i < 5; i++ {
		X = append(X, []float64{float64(i), 1})
		y = append(y, 0)
		X = append(X, []float64{float64(10 + i), 1})
		y = append(y, 1)
	}
	return X, y
}

func noisy() ([][]float64, []int) {
	X := [][]float64{
		{1, 5}, {2, 3}, {3, 8}, {4, 1}, {5, 9}, {6, 2}, {7, 7}, {8, 4},
		{9, 6}, {10, 0}, {11, 5}, {12, 3}, {13, 8}, {14, 1}, {15, 9},
	}
	y := []int{0, 1, 0, 0, 1, 1, 0, 1, 1, 0, 1, 0, 1, 1, 0}
	return X, y
}

func TestCandidatesOrder(t *testing.T) {
	cands := Candidates(42)
	require.Len(t, cands, 5)

	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Name
		assert.Equal(t, c.Name, c.Model.Name())
	}
	assert.Equal(t, []string{
		BoostedTreesName, RandomForestName, LogisticRegressionName, SVMName, DecisionTreeName,
	}, names)
}

func TestNewUnknown(t *testing.T) {
	_, err := New("xgboost", 1)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestFitSeparable(t *testing.T) {
	X, y := separable()
	for _, c := range Candidates(42) {
		t.Run(c.Name, func(t *testing.T) {
			require.NoError(t, c.Model.Fit(X, y))
			pred, err := c.Model.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, y, pred)

			pred, err = c.Model.Predict([][]float64{{-3, 1}, {25, 1}})
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1}, pred)
		})
	}
}

func TestDecisionTreeMultiClass(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {10}, {11}, {12}, {20}, {21}, {22}}
	y := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}

	dt := NewDecisionTree(0, 2, 7)
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, y, pred)

	proba, err := dt.PredictProba([][]float64{{5}})
	require.NoError(t, err)
	assert.Len(t, proba[0], 3)
	assert.InDelta(t, 1.0, proba[0][0]+proba[0][1]+proba[0][2], 1e-9)
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	X, y := noisy()
	dt := NewDecisionTree(1, 2, 1)
	require.NoError(t, dt.Fit(X, y))
	assert.LessOrEqual(t, len(dt.Nodes), 3)
}

func TestDeterministicForSeed(t *testing.T) {
	X, y := noisy()
	probe := [][]float64{{2.5, 4}, {7.5, 6}, {12.5, 2}, {0, 0}, {16, 9}}

	for _, name := range Names {
		t.Run(name, func(t *testing.T) {
			a, err := New(name, 42)
			require.NoError(t, err)
			b, err := New(name, 42)
			require.NoError(t, err)

			require.NoError(t, a.Fit(X, y))
			require.NoError(t, b.Fit(X, y))

			pa, err := a.Predict(probe)
			require.NoError(t, err)
			pb, err := b.Predict(probe)
			require.NoError(t, err)
			assert.Equal(t, pa, pb)
		})
	}
}

func TestPredictBeforeFit(t *testing.T) {
	for _, c := range Candidates(1) {
		_, err := c.Model.Predict([][]float64{{1, 2}})
		assert.ErrorIs(t, err, ErrNotFitted, c.Name)
	}
}

func TestShapeErrors(t *testing.T) {
	X, y := separable()
	for _, c := range Candidates(1) {
		assert.ErrorIs(t, c.Model.Fit(X, y[:3]), ErrShape, c.Name)
		assert.ErrorIs(t, c.Model.Fit(nil, nil), ErrEmptyInput, c.Name)

		require.NoError(t, c.Model.Fit(X, y))
		_, err := c.Model.Predict([][]float64{{1, 2, 3}})
		assert.ErrorIs(t, err, ErrShape, c.Name)
	}
}

func TestSingleClassFit(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	y := []int{0, 0, 0}
	for _, c := range Candidates(1) {
		require.NoError(t, c.Model.Fit(X, y), c.Name)
		pred, err := c.Model.Predict(X)
		require.NoError(t, err)
		assert.Equal(t, y, pred, c.Name)
	}
}

func TestArgmaxTies(t *testing.T) {
	assert.Equal(t, 0, argmax([]float64{0.5, 0.5}))
	assert.Equal(t, 1, argmax([]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, 2, argmax([]float64{0.1, 0.2, 0.7}))
}

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	out := s.FitTransform([][]float64{{1, 5}, {3, 5}})

	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Std)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, out)
}

func TestParams(t *testing.T) {
	assert.Equal(t, "linear", NewLinearSVM(0, 0, 1).Params()["kernel"])
	assert.Equal(t, 1000, NewLogisticRegression(0, 0, 1).Params()["max_iter"])
	assert.Equal(t, 100, NewRandomForest(0, 0, 0, 1).Params()["n_estimators"])
	assert.Equal(t, "SAMME", NewBoostedTrees(0, 0, 0, 1).Params()["algorithm"])
}
