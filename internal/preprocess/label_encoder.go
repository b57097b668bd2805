package preprocess

import (
	"errors"
	"fmt"
	"sort"

	"tabml/internal/dataset"
)

var (
	// ErrMissingLabel is returned when a target value is missing.
	ErrMissingLabel = errors.New("missing label")
	// ErrUnknownLabel is returned when a label was not seen during Fit.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrNotFitted is returned when the encoder is used before Fit.
	ErrNotFitted = errors.New("label encoder must be fitted first")
)

// Label is one target class. Numeric classes sort before textual ones.
type Label struct {
	Numeric bool
	Number  float64
	Text    string
}

// Value returns the label in dataset representation.
func (l Label) Value() any {
	if l.Numeric {
		return l.Number
	}
	return l.Text
}

func (l Label) less(o Label) bool {
	if l.Numeric != o.Numeric {
		return l.Numeric
	}
	if l.Numeric {
		return l.Number < o.Number
	}
	return l.Text < o.Text
}

func labelOf(v any) (Label, error) {
	v = dataset.Normalize(v)
	switch x := v.(type) {
	case nil:
		return Label{}, ErrMissingLabel
	case float64:
		return Label{Numeric: true, Number: x}, nil
	default:
		return Label{Text: dataset.FormatValue(x)}, nil
	}
}

// LabelEncoder maps target classes to dense indices 0..K-1 in sorted order.
type LabelEncoder struct {
	Classes  []Label
	IsFitted bool
}

// NewLabelEncoder returns an unfitted encoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit learns the sorted set of classes in values.
func (le *LabelEncoder) Fit(values []any) error {
	var labels []Label
	seen := make(map[Label]bool)
	for i, v := range values {
		l, err := labelOf(v)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].less(labels[j]) })

	le.Classes = labels
	le.IsFitted = true
	return nil
}

// Transform encodes values to class indices.
func (le *LabelEncoder) Transform(values []any) ([]int, error) {
	if !le.IsFitted {
		return nil, ErrNotFitted
	}
	out := make([]int, len(values))
	for i, v := range values {
		l, err := labelOf(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		idx := sort.Search(len(le.Classes), func(k int) bool { return !le.Classes[k].less(l) })
		if idx == len(le.Classes) || le.Classes[idx] != l {
			return nil, fmt.Errorf("row %d value %q: %w", i, dataset.FormatValue(l.Value()), ErrUnknownLabel)
		}
		out[i] = idx
	}
	return out, nil
}

// FitTransform fits the encoder and encodes values in one step.
func (le *LabelEncoder) FitTransform(values []any) ([]int, error) {
	if err := le.Fit(values); err != nil {
		return nil, err
	}
	return le.Transform(values)
}

// Inverse decodes class indices back to labels.
func (le *LabelEncoder) Inverse(codes []int) ([]any, error) {
	if !le.IsFitted {
		return nil, ErrNotFitted
	}
	out := make([]any, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(le.Classes) {
			return nil, fmt.Errorf("unknown encoding %d: %w", c, ErrUnknownLabel)
		}
		out[i] = le.Classes[c].Value()
	}
	return out, nil
}

// Len returns the number of classes.
func (le *LabelEncoder) Len() int { return len(le.Classes) }
