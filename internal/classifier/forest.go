package classifier

import (
	"math"
	"math/rand"
)

// RandomForest averages the class distributions of bootstrapped CART trees
// that each examine sqrt(features) candidates per split.
type RandomForest struct {
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
	NFeatures       int
	NClasses        int
	Trees           []*DecisionTree
}

// NewRandomForest returns an unfitted forest. maxDepth <= 0 means unlimited.
func NewRandomForest(nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	if nTrees <= 0 {
		nTrees = 100
	}
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Seed:            seed,
	}
}

func (rf *RandomForest) Name() string { return RandomForestName }

func (rf *RandomForest) Params() map[string]any {
	return map[string]any{
		"n_estimators":      rf.NTrees,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"max_features":      "sqrt",
	}
}

// Fit trains the trees sequentially. Bootstrap draws and per-tree seeds all
// come from one source seeded with Seed.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	d, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}

	rf.NFeatures = d
	rf.NClasses = k
	rf.MaxFeatures = int(math.Sqrt(float64(d)))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	n := len(X)
	rf.Trees = make([]*DecisionTree, rf.NTrees)

	for t := 0; t < rf.NTrees; t++ {
		XBoot := make([][]float64, n)
		yBoot := make([]int, n)
		for i := 0; i < n; i++ {
			idx := rng.Intn(n)
			XBoot[i] = X[idx]
			yBoot[i] = y[idx]
		}

		tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, rng.Int63())
		tree.MaxFeatures = rf.MaxFeatures
		if err := tree.fitWeighted(XBoot, yBoot, nil, k); err != nil {
			return err
		}
		rf.Trees[t] = tree
	}

	return nil
}

// Predict returns the class with the highest mean tree probability.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}

// PredictProba returns the mean class distribution over all trees.
func (rf *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, rf.NFeatures); err != nil {
		return nil, err
	}

	out := make([][]float64, len(X))
	for i := range out {
		out[i] = make([]float64, rf.NClasses)
	}
	for _, tree := range rf.Trees {
		proba, err := tree.PredictProba(X)
		if err != nil {
			return nil, err
		}
		for i, p := range proba {
			for c, v := range p {
				out[i][c] += v
			}
		}
	}
	n := float64(len(rf.Trees))
	for i := range out {
		for c := range out[i] {
			out[i][c] /= n
		}
	}
	return out, nil
}
