// Package dataset provides the in-memory tabular representation shared by
// all harmonization stages, plus the file format handler registry.
package dataset

import (
	"github.com/rotisserie/eris"
)

// Dataset is an ordered set of named columns and rows of Values.
// Stages never mutate a caller's Dataset in place: take a Clone first.
type Dataset struct {
	cols []string
	rows [][]Value
}

// New creates an empty Dataset with the given column names.
func New(cols ...string) *Dataset {
	d := &Dataset{cols: make([]string, len(cols))}
	copy(d.cols, cols)
	return d
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	c := New(d.cols...)
	c.rows = make([][]Value, len(d.rows))
	for i, r := range d.rows {
		row := make([]Value, len(r))
		copy(row, r)
		c.rows[i] = row
	}
	return c
}

// Columns returns a copy of the column names in order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.cols))
	copy(out, d.cols)
	return out
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return len(d.rows) }

// NumCols returns the column count.
func (d *Dataset) NumCols() int { return len(d.cols) }

// ColumnIndex returns the index of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.cols {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool { return d.ColumnIndex(name) >= 0 }

// AppendRow adds a row. The row length must match the column count.
func (d *Dataset) AppendRow(row []Value) error {
	if len(row) != len(d.cols) {
		return eris.Errorf("dataset: row has %d cells, want %d", len(row), len(d.cols))
	}
	r := make([]Value, len(row))
	copy(r, row)
	d.rows = append(d.rows, r)
	return nil
}

// Value returns the cell at row i, named column. ok is false when the
// column does not exist.
func (d *Dataset) Value(i int, col string) (Value, bool) {
	j := d.ColumnIndex(col)
	if j < 0 || i < 0 || i >= len(d.rows) {
		return NA(), false
	}
	return d.rows[i][j], true
}

// At returns the cell at row i, column j.
func (d *Dataset) At(i, j int) Value { return d.rows[i][j] }

// Set writes the cell at row i, named column. It is a no-op for unknown
// columns.
func (d *Dataset) Set(i int, col string, v Value) {
	j := d.ColumnIndex(col)
	if j < 0 || i < 0 || i >= len(d.rows) {
		return
	}
	d.rows[i][j] = v
}

// AddColumn appends a column filled with the given value. Adding an
// existing column resets every cell of that column instead.
func (d *Dataset) AddColumn(name string, fill Value) {
	if j := d.ColumnIndex(name); j >= 0 {
		for i := range d.rows {
			d.rows[i][j] = fill
		}
		return
	}
	d.cols = append(d.cols, name)
	for i := range d.rows {
		d.rows[i] = append(d.rows[i], fill)
	}
}

// RenameColumns applies fn to every column name.
func (d *Dataset) RenameColumns(fn func(string) string) {
	for i, c := range d.cols {
		d.cols[i] = fn(c)
	}
}

// Filter returns a new Dataset holding only the rows for which keep
// returns true. Row order is preserved.
func (d *Dataset) Filter(keep func(i int) bool) *Dataset {
	out := New(d.cols...)
	for i, r := range d.rows {
		if keep(i) {
			row := make([]Value, len(r))
			copy(row, r)
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Column returns all values of the named column in row order, or nil when
// the column does not exist.
func (d *Dataset) Column(name string) []Value {
	j := d.ColumnIndex(name)
	if j < 0 {
		return nil
	}
	out := make([]Value, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[j]
	}
	return out
}

// MissingCells counts missing cells across the whole dataset.
func (d *Dataset) MissingCells() int {
	var n int
	for _, r := range d.rows {
		for _, v := range r {
			if v.IsMissing() {
				n++
			}
		}
	}
	return n
}
