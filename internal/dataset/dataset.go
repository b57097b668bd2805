// Package dataset provides the tabular container shared by the training and
// prediction pipelines. A Dataset is an ordered set of named columns of equal
// length whose cells are nil (missing), float64 (numeric) or string (label).
//
// Apart from AddColumn and SetColumn, every operation returns a new Dataset
// and leaves its receiver untouched.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrTargetNotFound is returned when a requested target column is absent.
	ErrTargetNotFound = errors.New("target column not found")
	// ErrColumnExists is returned when adding a column whose name is taken.
	ErrColumnExists = errors.New("column already exists")
	// ErrLengthMismatch is returned when column or row lengths disagree.
	ErrLengthMismatch = errors.New("length mismatch")
)

// Record is a single row keyed by column name.
type Record map[string]any

// Dataset is an ordered collection of named columns.
type Dataset struct {
	names []string
	index map[string]int
	cols  [][]any
	rows  int
}

// New builds a dataset from a header and row-major values.
func New(columns []string, rows [][]any) (*Dataset, error) {
	ds := &Dataset{
		names: make([]string, 0, len(columns)),
		index: make(map[string]int, len(columns)),
		cols:  make([][]any, len(columns)),
		rows:  len(rows),
	}
	for i, name := range columns {
		if _, dup := ds.index[name]; dup {
			return nil, fmt.Errorf("column %q: %w", name, ErrColumnExists)
		}
		ds.index[name] = i
		ds.names = append(ds.names, name)
		ds.cols[i] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d: %w", r, len(row), len(columns), ErrLengthMismatch)
		}
		for c, v := range row {
			ds.cols[c][r] = Normalize(v)
		}
	}
	return ds, nil
}

// FromRecords wraps records as a dataset. Columns are ordered by the sorted
// keys of the first record, followed by keys first seen in later records.
// Cells a record does not define are missing.
func FromRecords(records ...Record) *Dataset {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			columns = append(columns, k)
		}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, name := range columns {
			row[j] = rec[name]
		}
		rows[i] = row
	}

	ds, _ := New(columns, rows) // columns are unique and rows are rectangular
	return ds
}

// Empty returns a dataset with the given row count and no columns yet.
func Empty(rows int) *Dataset {
	return &Dataset{index: make(map[string]int), rows: rows}
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// HasColumn reports whether name is a column of d.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns a copy of the named column.
func (d *Dataset) Column(name string) ([]any, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	out := make([]any, d.rows)
	copy(out, d.cols[i])
	return out, true
}

// Value returns a single cell.
func (d *Dataset) Value(row int, name string) (any, bool) {
	i, ok := d.index[name]
	if !ok || row < 0 || row >= d.rows {
		return nil, false
	}
	return d.cols[i][row], true
}

// Row returns row i as a record.
func (d *Dataset) Row(i int) Record {
	rec := make(Record, len(d.names))
	for c, name := range d.names {
		rec[name] = d.cols[c][i]
	}
	return rec
}

// Drop returns a copy of d without the named columns. Absent names are
// ignored, so Drop() with no names is a deep copy.
func (d *Dataset) Drop(names ...string) *Dataset {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Dataset{index: make(map[string]int), rows: d.rows}
	for i, name := range d.names {
		if skip[name] {
			continue
		}
		col := make([]any, d.rows)
		copy(col, d.cols[i])
		out.index[name] = len(out.names)
		out.names = append(out.names, name)
		out.cols = append(out.cols, col)
	}
	return out
}

// Select returns a copy of d holding only the named columns, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	out := &Dataset{index: make(map[string]int, len(names)), rows: d.rows}
	for _, name := range names {
		i, ok := d.index[name]
		if !ok {
			return nil, fmt.Errorf("select %q: %w", name, ErrTargetNotFound)
		}
		if _, dup := out.index[name]; dup {
			return nil, fmt.Errorf("select %q: %w", name, ErrColumnExists)
		}
		col := make([]any, d.rows)
		copy(col, d.cols[i])
		out.index[name] = len(out.names)
		out.names = append(out.names, name)
		out.cols = append(out.cols, col)
	}
	return out, nil
}

// AddColumn appends a new column to d in place.
func (d *Dataset) AddColumn(name string, values []any) error {
	if d.HasColumn(name) {
		return fmt.Errorf("add %q: %w", name, ErrColumnExists)
	}
	if (len(d.names) > 0 || d.rows > 0) && len(values) != d.rows {
		return fmt.Errorf("add %q: %d values for %d rows: %w", name, len(values), d.rows, ErrLengthMismatch)
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	col := make([]any, len(values))
	for i, v := range values {
		col[i] = Normalize(v)
	}
	d.rows = len(values)
	d.index[name] = len(d.names)
	d.names = append(d.names, name)
	d.cols = append(d.cols, col)
	return nil
}

// SetColumn replaces the named column in place, adding it when absent.
func (d *Dataset) SetColumn(name string, values []any) error {
	i, ok := d.index[name]
	if !ok {
		return d.AddColumn(name, values)
	}
	if len(values) != d.rows {
		return fmt.Errorf("set %q: %d values for %d rows: %w", name, len(values), d.rows, ErrLengthMismatch)
	}
	col := make([]any, len(values))
	for j, v := range values {
		col[j] = Normalize(v)
	}
	d.cols[i] = col
	return nil
}

// IsNumericColumn reports whether every non-missing value of the column is
// numeric. A column holding only missing values counts as numeric.
func (d *Dataset) IsNumericColumn(name string) bool {
	i, ok := d.index[name]
	if !ok {
		return false
	}
	for _, v := range d.cols[i] {
		if v == nil {
			continue
		}
		if _, isNum := v.(float64); !isNum {
			return false
		}
	}
	return true
}

// SplitFeaturesTarget separates the target column from the features. Row
// order is preserved and len(X) == len(y) == d.Len().
func SplitFeaturesTarget(d *Dataset, target string) (*Dataset, []any, error) {
	y, ok := d.Column(target)
	if !ok {
		return nil, nil, fmt.Errorf("%q: %w", target, ErrTargetNotFound)
	}
	return d.Drop(target), y, nil
}

// CheckTarget returns d without the target column and true when the column
// was present. Otherwise d itself is returned with false. The caller decides
// how to report the correction.
func CheckTarget(d *Dataset, target string) (*Dataset, bool) {
	if target == "" || !d.HasColumn(target) {
		return d, false
	}
	return d.Drop(target), true
}

// IsMissing reports whether v represents a missing cell.
func IsMissing(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}
