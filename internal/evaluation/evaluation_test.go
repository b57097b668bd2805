package evaluation

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	train2, test2, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestTrainTestSplitRoundsTestUp(t *testing.T) {
	train, test, err := TrainTestSplit(7, 0.2, 1)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 5)
}

func TestTrainTestSplitInvalid(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		testSize float64
	}{
		{"empty", 0, 0.2},
		{"single row", 1, 0.2},
		{"zero test size", 10, 0},
		{"full test size", 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := TrainTestSplit(tt.n, tt.testSize, 42)
			assert.ErrorIs(t, err, ErrInvalidSplit)
		})
	}
}

func TestTake(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}}
	y := []int{5, 6, 7}
	assert.Equal(t, [][]float64{{2}, {0}}, Take(X, []int{2, 0}))
	assert.Equal(t, []int{7, 5}, TakeLabels(y, []int{2, 0}))
}

func TestMacroF1(t *testing.T) {
	assert.InDelta(t, 1.0, MacroF1([]int{0, 1, 0, 1}, []int{0, 1, 0, 1}), 1e-12)

	// class 0: tp=1 fp=0 fn=1 -> 2/3; class 1: tp=2 fp=1 fn=0 -> 4/5
	assert.InDelta(t, (2.0/3.0+0.8)/2, MacroF1([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}), 1e-12)

	// predicted-only label counts in the average with F1 0
	assert.InDelta(t, 1.0/3.0, MacroF1([]int{0, 0}, []int{0, 1}), 1e-12)

	assert.Equal(t, 0.0, MacroF1(nil, nil))
}

func TestAccuracy(t *testing.T) {
	assert.InDelta(t, 0.75, Accuracy([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}), 1e-12)
	assert.Equal(t, 0.0, Accuracy(nil, nil))
}

func TestConfusionMatrix(t *testing.T) {
	cm := ConfusionMatrix([]int{0, 0, 1, 2}, []int{0, 1, 1, 0}, []int{0, 1, 2})
	assert.Equal(t, [][]int{
		{1, 1, 0},
		{0, 1, 0},
		{1, 0, 0},
	}, cm)
	assert.Equal(t, []int{0, 1, 2}, Labels([]int{2, 0}, []int{1, 0}))
}
