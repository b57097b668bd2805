package classifier

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LinearSVM is a one-vs-rest soft-margin linear SVM trained with Pegasos
// stochastic sub-gradient descent on standardized features. The bias is the
// last weight of each class, learned against a constant input of 1.
type LinearSVM struct {
	Lambda    float64
	Epochs    int
	Seed      int64
	NFeatures int
	NClasses  int
	Scaler    StandardScaler
	Weights   [][]float64
}

// NewLinearSVM returns an unfitted model. lambda is the regularization strength.
func NewLinearSVM(lambda float64, epochs int, seed int64) *LinearSVM {
	if lambda <= 0 {
		lambda = 0.01
	}
	if epochs <= 0 {
		epochs = 50
	}
	return &LinearSVM{
		Lambda: lambda,
		Epochs: epochs,
		Seed:   seed,
	}
}

func (s *LinearSVM) Name() string { return SVMName }

func (s *LinearSVM) Params() map[string]any {
	return map[string]any{
		"kernel": "linear",
		"lambda": s.Lambda,
		"epochs": s.Epochs,
	}
}

// Fit trains one binary separator per class. Every separator visits the rows
// in the same seeded order.
func (s *LinearSVM) Fit(X [][]float64, y []int) error {
	d, k, err := checkTrainingInput(X, y)
	if err != nil {
		return err
	}
	if k < 2 {
		k = 2
	}

	s.NFeatures = d
	s.NClasses = k
	Xa := s.augment(s.Scaler.FitTransform(X))

	s.Weights = make([][]float64, k)
	for c := 0; c < k; c++ {
		rng := rand.New(rand.NewSource(s.Seed))
		w := make([]float64, d+1)
		t := 0
		for epoch := 0; epoch < s.Epochs; epoch++ {
			for _, i := range rng.Perm(len(Xa)) {
				t++
				eta := 1 / (s.Lambda * float64(t))
				target := -1.0
				if y[i] == c {
					target = 1
				}
				margin := target * floats.Dot(w, Xa[i])
				floats.Scale(1-eta*s.Lambda, w)
				if margin < 1 {
					floats.AddScaled(w, eta*target, Xa[i])
				}
			}
		}
		s.Weights[c] = w
	}

	return nil
}

// Predict returns the class whose separator scores each row highest.
func (s *LinearSVM) Predict(X [][]float64) ([]int, error) {
	scores, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(scores))
	for i, sc := range scores {
		out[i] = argmax(sc)
	}
	return out, nil
}

// DecisionFunction returns the signed margin of each row for every class.
func (s *LinearSVM) DecisionFunction(X [][]float64) ([][]float64, error) {
	if s.Weights == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, s.NFeatures); err != nil {
		return nil, err
	}
	Xa := s.augment(s.Scaler.Transform(X))
	out := make([][]float64, len(Xa))
	for i, row := range Xa {
		out[i] = make([]float64, s.NClasses)
		for c, w := range s.Weights {
			out[i][c] = floats.Dot(w, row)
		}
	}
	return out, nil
}

func (s *LinearSVM) augment(X [][]float64) [][]float64 {
	for i, row := range X {
		X[i] = append(row, 1)
	}
	return X
}
