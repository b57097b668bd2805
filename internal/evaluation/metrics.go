package evaluation

import "sort"

// Labels returns the sorted union of the classes present in yTrue and yPred.
func Labels(yTrue, yPred []int) []int {
	seen := make(map[int]struct{})
	for _, v := range yTrue {
		seen[v] = struct{}{}
	}
	for _, v := range yPred {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ConfusionMatrix counts (true, predicted) pairs. Rows and columns follow the
// order of labels.
func ConfusionMatrix(yTrue, yPred []int, labels []int) [][]int {
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	cm := make([][]int, len(labels))
	for i := range cm {
		cm[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		t, okT := pos[yTrue[i]]
		p, okP := pos[yPred[i]]
		if okT && okP {
			cm[t][p]++
		}
	}
	return cm
}

// F1PerClass returns the F1 score of every label. A label with no true and no
// predicted samples, or with zero precision and recall, scores 0.
func F1PerClass(yTrue, yPred []int, labels []int) []float64 {
	cm := ConfusionMatrix(yTrue, yPred, labels)
	out := make([]float64, len(labels))
	for c := range labels {
		tp := cm[c][c]
		fp, fn := 0, 0
		for o := range labels {
			if o == c {
				continue
			}
			fp += cm[o][c]
			fn += cm[c][o]
		}
		denom := 2*tp + fp + fn
		if denom == 0 {
			continue
		}
		out[c] = 2 * float64(tp) / float64(denom)
	}
	return out
}

// MacroF1 is the unweighted mean of per-class F1 over the union of true and
// predicted labels. Empty input scores 0.
func MacroF1(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	labels := Labels(yTrue, yPred)
	sum := 0.0
	for _, f := range F1PerClass(yTrue, yPred, labels) {
		sum += f
	}
	return sum / float64(len(labels))
}

// Accuracy is the share of positions where yPred equals yTrue.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}
