package classifier

import (
	"math/rand"
	"sort"
)

// maxTreeDepth bounds trees configured with an unlimited depth.
const maxTreeDepth = 32

// TreeNode is one node of a fitted tree. Children are indices into
// DecisionTree.Nodes; leaves carry the class distribution of their samples.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Samples   int
	Impurity  float64
	Proba     []float64
}

// DecisionTree is a CART classifier using weighted Gini impurity. Samples with
// feature value <= Threshold go left.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int // features examined per split; 0 means all
	Seed            int64
	NFeatures       int
	NClasses        int
	Nodes           []TreeNode
}

// NewDecisionTree returns an unfitted tree. maxDepth <= 0 means unlimited.
func NewDecisionTree(maxDepth, minSamplesSplit int, seed int64) *DecisionTree {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Seed:            seed,
	}
}

func (dt *DecisionTree) Name() string { return DecisionTreeName }

func (dt *DecisionTree) Params() map[string]any {
	return map[string]any{
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"criterion":         "gini",
	}
}

// Fit grows the tree on X and y with uniform sample weights.
func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	_, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}
	return dt.fitWeighted(X, y, nil, k)
}

// fitWeighted grows the tree with per-sample weights (nil = uniform) over a
// fixed number of classes, so that trees fitted on subsets of the data share
// one probability layout.
func (dt *DecisionTree) fitWeighted(X [][]float64, y []int, w []float64, nClasses int) error {
	d, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}
	if nClasses < k {
		nClasses = k
	}
	if w == nil {
		w = make([]float64, len(y))
		for i := range w {
			w[i] = 1
		}
	}

	dt.NFeatures = d
	dt.NClasses = nClasses
	dt.Nodes = dt.Nodes[:0]

	b := &treeBuilder{
		tree: dt,
		X:    X,
		y:    y,
		w:    w,
		rng:  rand.New(rand.NewSource(dt.Seed)),
	}
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	b.build(idx, 0)
	return nil
}

// Predict returns the most probable class of each row.
func (dt *DecisionTree) Predict(X [][]float64) ([]int, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}

// PredictProba returns the leaf class distribution of each row.
func (dt *DecisionTree) PredictProba(X [][]float64) ([][]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, dt.NFeatures); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = dt.leaf(row).Proba
	}
	return out, nil
}

func (dt *DecisionTree) leaf(row []float64) *TreeNode {
	node := &dt.Nodes[0]
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = &dt.Nodes[node.Left]
		} else {
			node = &dt.Nodes[node.Right]
		}
	}
	return node
}

type treeBuilder struct {
	tree *DecisionTree
	X    [][]float64
	y    []int
	w    []float64
	rng  *rand.Rand
}

func (b *treeBuilder) build(idx []int, depth int) int {
	dt := b.tree
	counts, total := b.classWeights(idx)

	proba := make([]float64, dt.NClasses)
	if total > 0 {
		for c, v := range counts {
			proba[c] = v / total
		}
	}

	pos := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		Leaf:     true,
		Samples:  len(idx),
		Impurity: gini(counts, total),
		Proba:    proba,
	})

	maxDepth := dt.MaxDepth
	if maxDepth <= 0 || maxDepth > maxTreeDepth {
		maxDepth = maxTreeDepth
	}
	if depth >= maxDepth || len(idx) < dt.MinSamplesSplit || isPure(counts) {
		return pos
	}

	feature, threshold, ok := b.bestSplit(idx, counts, total)
	if !ok {
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	node := &dt.Nodes[pos]
	node.Leaf = false
	node.Feature = feature
	node.Threshold = threshold
	node.Left = l
	node.Right = r
	return pos
}

// bestSplit scans candidate features in order and returns the split with the
// lowest weighted child impurity. Only strictly better splits replace the
// current best, so earlier features and lower thresholds win ties.
func (b *treeBuilder) bestSplit(idx []int, counts []float64, total float64) (int, float64, bool) {
	dt := b.tree
	features := b.candidateFeatures()

	parent := gini(counts, total) * total
	bestScore := parent
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, len(idx))
	left := make([]float64, dt.NClasses)
	right := make([]float64, dt.NClasses)

	limit := dt.MaxFeatures
	if limit <= 0 || limit > len(features) {
		limit = len(features)
	}
	visited := 0

	for _, f := range features {
		if visited >= limit {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})

		if b.X[sorted[0]][f] == b.X[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		for c := range left {
			left[c] = 0
			right[c] = counts[c]
		}
		leftTotal, rightTotal := 0.0, total

		for j := 0; j < len(sorted)-1; j++ {
			i := sorted[j]
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]
			leftTotal += b.w[i]
			rightTotal -= b.w[i]

			cur, next := b.X[i][f], b.X[sorted[j+1]][f]
			if cur == next {
				continue
			}

			score := gini(left, leftTotal)*leftTotal + gini(right, rightTotal)*rightTotal
			if score < bestScore-1e-12 {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				bestScore, bestFeature, bestThreshold, found = score, f, threshold, true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

// candidateFeatures returns every feature, in random order when MaxFeatures
// restricts the search. Constant features do not count against the limit.
func (b *treeBuilder) candidateFeatures() []int {
	d := b.tree.NFeatures
	m := b.tree.MaxFeatures
	if m <= 0 || m >= d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(d)
}

func (b *treeBuilder) classWeights(idx []int) ([]float64, float64) {
	counts := make([]float64, b.tree.NClasses)
	total := 0.0
	for _, i := range idx {
		counts[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return counts, total
}

func gini(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
