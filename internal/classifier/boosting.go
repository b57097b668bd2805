package classifier

import (
	"math"
)

// BoostedTrees is a multi-class AdaBoost (SAMME) ensemble of shallow,
// sample-weighted CART trees.
type BoostedTrees struct {
	NEstimators  int
	MaxDepth     int
	LearningRate float64
	Seed         int64
	NFeatures    int
	NClasses     int
	Estimators   []*DecisionTree
	Alphas       []float64
}

// NewBoostedTrees returns an unfitted ensemble.
func NewBoostedTrees(nEstimators, maxDepth int, learningRate float64, seed int64) *BoostedTrees {
	if nEstimators <= 0 {
		nEstimators = 50
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if learningRate <= 0 {
		learningRate = 1.0
	}
	return &BoostedTrees{
		NEstimators:  nEstimators,
		MaxDepth:     maxDepth,
		LearningRate: learningRate,
		Seed:         seed,
	}
}

func (bt *BoostedTrees) Name() string { return BoostedTreesName }

func (bt *BoostedTrees) Params() map[string]any {
	return map[string]any{
		"n_estimators":  bt.NEstimators,
		"max_depth":     bt.MaxDepth,
		"learning_rate": bt.LearningRate,
		"algorithm":     "SAMME",
	}
}

// Fit boosts trees until NEstimators are trained, a tree fits the weighted
// data perfectly, or a tree does no better than chance.
func (bt *BoostedTrees) Fit(X [][]float64, y []int) error {
	d, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}

	bt.NFeatures = d
	bt.NClasses = k
	bt.Estimators = bt.Estimators[:0]
	bt.Alphas = bt.Alphas[:0]

	n := len(y)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}

	for m := 0; m < bt.NEstimators; m++ {
		tree := NewDecisionTree(bt.MaxDepth, 2, bt.Seed+int64(m))
		if err := tree.fitWeighted(X, y, w, k); err != nil {
			return err
		}
		pred, err := tree.Predict(X)
		if err != nil {
			return err
		}

		errSum, wSum := 0.0, 0.0
		for i := range y {
			if pred[i] != y[i] {
				errSum += w[i]
			}
			wSum += w[i]
		}
		estErr := errSum / wSum

		if estErr <= 0 || k < 2 {
			bt.Estimators = append(bt.Estimators, tree)
			bt.Alphas = append(bt.Alphas, 1)
			break
		}
		if estErr >= 1-1/float64(k) {
			if len(bt.Estimators) == 0 {
				bt.Estimators = append(bt.Estimators, tree)
				bt.Alphas = append(bt.Alphas, 1)
			}
			break
		}

		alpha := bt.LearningRate * (math.Log((1-estErr)/estErr) + math.Log(float64(k-1)))
		bt.Estimators = append(bt.Estimators, tree)
		bt.Alphas = append(bt.Alphas, alpha)

		total := 0.0
		for i := range w {
			if pred[i] != y[i] {
				w[i] *= math.Exp(alpha)
			}
			total += w[i]
		}
		for i := range w {
			w[i] /= total
		}
	}

	return nil
}

// Predict returns the class with the largest sum of estimator weights.
func (bt *BoostedTrees) Predict(X [][]float64) ([]int, error) {
	if len(bt.Estimators) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, bt.NFeatures); err != nil {
		return nil, err
	}

	scores := make([][]float64, len(X))
	for i := range scores {
		scores[i] = make([]float64, bt.NClasses)
	}
	for m, tree := range bt.Estimators {
		pred, err := tree.Predict(X)
		if err != nil {
			return nil, err
		}
		for i, c := range pred {
			scores[i][c] += bt.Alphas[m]
		}
	}

	out := make([]int, len(X))
	for i, s := range scores {
		out[i] = argmax(s)
	}
	return out, nil
}
