package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is a multinomial (softmax) model with L2 regularization,
// trained by full-batch gradient descent on standardized features. Training
// starts from zero weights and is fully deterministic; Seed is kept for
// parity with the other families.
type LogisticRegression struct {
	MaxIter      int
	C            float64
	LearningRate float64
	Tolerance    float64
	Seed         int64
	NFeatures    int
	NClasses     int
	Scaler       StandardScaler
	Weights      [][]float64
	Bias         []float64
}

// NewLogisticRegression returns an unfitted model. c is the inverse
// regularization strength.
func NewLogisticRegression(maxIter int, c float64, seed int64) *LogisticRegression {
	if maxIter <= 0 {
		maxIter = 1000
	}
	if c <= 0 {
		c = 1.0
	}
	return &LogisticRegression{
		MaxIter:      maxIter,
		C:            c,
		LearningRate: 0.5,
		Tolerance:    1e-6,
		Seed:         seed,
	}
}

func (lr *LogisticRegression) Name() string { return LogisticRegressionName }

func (lr *LogisticRegression) Params() map[string]any {
	return map[string]any{
		"max_iter":      lr.MaxIter,
		"C":             lr.C,
		"learning_rate": lr.LearningRate,
		"penalty":       "l2",
	}
}

// Fit runs gradient descent until MaxIter or the largest gradient component
// falls below Tolerance.
func (lr *LogisticRegression) Fit(X [][]float64, y []int) error {
	d, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}
	if k < 2 {
		k = 2
	}

	lr.NFeatures = d
	lr.NClasses = k
	Xs := lr.Scaler.FitTransform(X)

	lr.Weights = make([][]float64, k)
	gradW := make([][]float64, k)
	for c := range lr.Weights {
		lr.Weights[c] = make([]float64, d)
		gradW[c] = make([]float64, d)
	}
	lr.Bias = make([]float64, k)
	gradB := make([]float64, k)

	n := float64(len(Xs))
	reg := 1 / (lr.C * n)
	proba := make([]float64, k)

	for iter := 0; iter < lr.MaxIter; iter++ {
		for c := range gradW {
			floats.Scale(0, gradW[c])
			gradB[c] = 0
		}

		for i, row := range Xs {
			lr.softmax(row, proba)
			for c := 0; c < k; c++ {
				diff := proba[c]
				if y[i] == c {
					diff -= 1
				}
				floats.AddScaled(gradW[c], diff/n, row)
				gradB[c] += diff / n
			}
		}

		maxGrad := 0.0
		for c := 0; c < k; c++ {
			floats.AddScaled(gradW[c], reg, lr.Weights[c])
			floats.AddScaled(lr.Weights[c], -lr.LearningRate, gradW[c])
			lr.Bias[c] -= lr.LearningRate * gradB[c]

			maxGrad = math.Max(maxGrad, math.Abs(gradB[c]))
			if len(gradW[c]) > 0 {
				maxGrad = math.Max(maxGrad, math.Max(floats.Max(gradW[c]), -floats.Min(gradW[c])))
			}
		}
		if maxGrad < lr.Tolerance {
			break
		}
	}

	return nil
}

// Predict returns the most probable class of each row.
func (lr *LogisticRegression) Predict(X [][]float64) ([]int, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}

// PredictProba returns softmax class probabilities.
func (lr *LogisticRegression) PredictProba(X [][]float64) ([][]float64, error) {
	if lr.Weights == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, lr.NFeatures); err != nil {
		return nil, err
	}
	Xs := lr.Scaler.Transform(X)
	out := make([][]float64, len(Xs))
	for i, row := range Xs {
		out[i] = make([]float64, lr.NClasses)
		lr.softmax(row, out[i])
	}
	return out, nil
}

func (lr *LogisticRegression) softmax(row, out []float64) {
	maxLogit := math.Inf(-1)
	for c := range out {
		out[c] = floats.Dot(lr.Weights[c], row) + lr.Bias[c]
		maxLogit = math.Max(maxLogit, out[c])
	}
	sum := 0.0
	for c := range out {
		out[c] = math.Exp(out[c] - maxLogit)
		sum += out[c]
	}
	for c := range out {
		out[c] /= sum
	}
}
