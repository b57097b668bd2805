// Package preprocess turns raw tabular data into the numeric form the
// classifiers consume. The same transformation backs training, batch
// prediction and single-record prediction.
//
// Two entry points exist. Preprocess refits fill values and category codes on
// every call. Fit captures them once into a State that travels with the
// trained model, so inference reuses the training-time mapping instead of
// deriving a new one from whatever values the inference batch happens to hold.
package preprocess

import (
	"errors"
	"fmt"
	"sort"

	"tabml/internal/dataset"
)

// DefaultDropColumns are identifier and free-text columns removed before any
// other processing.
var DefaultDropColumns = []string{"Name", "Ticket", "Cabin", "PassengerId"}

// UnknownCode encodes a category that was not seen when the State was fitted.
const UnknownCode = -1

var (
	// ErrTypeMismatch is returned when a numeric feature receives a label.
	ErrTypeMismatch = errors.New("non-numeric value in numeric column")
	// ErrNotNumeric is returned when a feature matrix would contain a non-number.
	ErrNotNumeric = errors.New("dataset is not fully numeric")
)

// ColumnState is the fitted transformation of one feature column.
type ColumnState struct {
	Name        string
	Categorical bool
	FillNumber  float64
	FillLabel   string
	Categories  []string // sorted; code = index
}

// State is a fitted, serializable preprocessing transformation.
type State struct {
	Target  string
	Drop    []string
	Columns []ColumnState
	Order   []string // output column order, target included
}

// Preprocess applies the per-call contract: drop known-irrelevant columns,
// fill missing values (mode for labels, median for numbers) and encode label
// columns to dense integer codes fitted on this very input. The target column
// is left untouched but kept. The caller's dataset is never modified.
func Preprocess(ds *dataset.Dataset, target string, drop []string) *dataset.Dataset {
	state := Fit(ds, target, drop)
	out, err := state.Transform(ds)
	if err != nil {
		// Fit derived every column kind from ds itself, so Transform cannot
		// meet a value it does not know how to handle.
		panic(fmt.Sprintf("preprocess: transform of fitted input failed: %v", err))
	}
	return out
}

// Fit captures fill values and category codes from ds.
func Fit(ds *dataset.Dataset, target string, drop []string) *State {
	work := ds.Drop(drop...)

	state := &State{
		Target: target,
		Drop:   append([]string(nil), drop...),
		Order:  work.Columns(),
	}

	for _, name := range work.Columns() {
		if name == target {
			continue
		}
		values, _ := work.Column(name)
		cs := ColumnState{Name: name}
		if work.IsNumericColumn(name) {
			cs.FillNumber = median(values)
		} else {
			cs.Categorical = true
			cs.FillLabel = mode(values)
			cs.Categories = categories(values, cs.FillLabel)
		}
		state.Columns = append(state.Columns, cs)
	}

	return state
}

// Features returns the feature column names in model order.
func (s *State) Features() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Transform applies the fitted transformation to ds and returns a new
// dataset. Feature columns absent from ds are materialized with their fill
// value, columns unknown to the State are dropped and the target column, when
// present, is passed through unchanged.
func (s *State) Transform(ds *dataset.Dataset) (*dataset.Dataset, error) {
	work := ds.Drop(s.Drop...)
	byName := make(map[string]*ColumnState, len(s.Columns))
	for i := range s.Columns {
		byName[s.Columns[i].Name] = &s.Columns[i]
	}

	out := dataset.Empty(ds.Len())
	for _, name := range s.Order {
		if name == s.Target {
			if values, ok := work.Column(name); ok {
				if err := out.AddColumn(name, values); err != nil {
					return nil, err
				}
			}
			continue
		}

		cs := byName[name]
		values, ok := work.Column(name)
		if !ok {
			values = make([]any, ds.Len())
		}
		encoded, err := cs.apply(values)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(name, encoded); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// FeatureMatrix transforms ds and returns its feature columns as a row-major
// matrix in Features order.
func (s *State) FeatureMatrix(ds *dataset.Dataset) ([][]float64, error) {
	transformed, err := s.Transform(ds)
	if err != nil {
		return nil, err
	}
	features, err := transformed.Select(s.Features()...)
	if err != nil {
		return nil, err
	}
	return Matrix(features)
}

func (cs *ColumnState) apply(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		if cs.Categorical {
			label := cs.FillLabel
			if !dataset.IsMissing(v) {
				label = dataset.FormatValue(v)
			}
			out[i] = float64(cs.code(label))
			continue
		}

		if dataset.IsMissing(v) {
			out[i] = cs.FillNumber
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("column %q row %d value %q: %w", cs.Name, i, dataset.FormatValue(v), ErrTypeMismatch)
		}
		out[i] = f
	}
	return out, nil
}

func (cs *ColumnState) code(label string) int {
	i := sort.SearchStrings(cs.Categories, label)
	if i < len(cs.Categories) && cs.Categories[i] == label {
		return i
	}
	return UnknownCode
}

// Matrix converts a fully numeric dataset into a row-major matrix.
func Matrix(ds *dataset.Dataset) ([][]float64, error) {
	columns := ds.Columns()
	X := make([][]float64, ds.Len())
	for i := range X {
		X[i] = make([]float64, len(columns))
	}
	for j, name := range columns {
		values, _ := ds.Column(name)
		for i, v := range values {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, ErrNotNumeric)
			}
			X[i][j] = f
		}
	}
	return X, nil
}

func median(values []any) float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid]
	}
	return (nums[mid-1] + nums[mid]) / 2
}

// mode returns the most frequent label; ties go to the smallest label.
func mode(values []any) string {
	counts := make(map[string]int)
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		counts[dataset.FormatValue(v)]++
	}

	best, bestCount := "", 0
	for label, n := range counts {
		if n > bestCount || (n == bestCount && label < best) {
			best, bestCount = label, n
		}
	}
	return best
}

func categories(values []any, fill string) []string {
	seen := map[string]bool{fill: true}
	for _, v := range values {
		if !dataset.IsMissing(v) {
			seen[dataset.FormatValue(v)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
