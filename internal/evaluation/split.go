// Package evaluation holds the holdout split and the scores used to rank
// candidate models.
package evaluation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var ErrInvalidSplit = errors.New("invalid train/test split")

// TrainTestSplit partitions row indices 0..n-1 into a training and a test
// subset. The rows are shuffled with a source seeded by seed and the first
// ceil(n*testSize) of the permutation form the test set, so equal inputs
// always yield the same assignment.
func TrainTestSplit(n int, testSize float64, seed int64) ([]int, []int, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size %.3f outside (0, 1): %w", testSize, ErrInvalidSplit)
	}
	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if nTest == 0 || nTrain <= 0 {
		return nil, nil, fmt.Errorf("%d rows cannot fill both sides of a %.2f split: %w", n, testSize, ErrInvalidSplit)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test := append([]int(nil), perm[:nTest]...)
	train := append([]int(nil), perm[nTest:]...)
	return train, test, nil
}

// Take returns the rows of X at idx, in idx order. Rows are shared, not copied.
func Take(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

// TakeLabels returns the labels at idx, in idx order.
func TakeLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
