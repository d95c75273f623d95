// Package table is a small column-ordered row table used for scrape results
// and analysis output.
package table

import (
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
)

// Row maps column names to cell values.
type Row map[string]any

// Frame is an ordered set of columns over rows. Index names the columns
// that identify a row; they are written first.
type Frame struct {
	Columns []string
	Rows    []Row
	Index   []string
}

// New returns an empty frame with the given columns.
func New(columns ...string) *Frame {
	return &Frame{Columns: slices.Clone(columns)}
}

// FromRows builds a frame over rows. Columns are taken from columns, then
// from any keys the rows have beyond them in sorted order.
func FromRows(rows []Row, columns ...string) *Frame {
	f := New(columns...)
	for _, r := range rows {
		f.Append(r)
	}
	return f
}

func (f *Frame) Len() int { return len(f.Rows) }

// Has reports whether col is a column of f.
func (f *Frame) Has(col string) bool {
	return slices.Contains(f.Columns, col)
}

// Append adds r, registering columns it introduces.
func (f *Frame) Append(r Row) {
	var extra []string
	for k := range r {
		if !f.Has(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	f.Columns = append(f.Columns, extra...)
	f.Rows = append(f.Rows, r)
}

// Set computes col for every row, adding the column when missing.
func (f *Frame) Set(col string, fn func(Row) any) {
	if !f.Has(col) {
		f.Columns = append(f.Columns, col)
	}
	for _, r := range f.Rows {
		r[col] = fn(r)
	}
}

// Drop removes columns.
func (f *Frame) Drop(cols ...string) {
	f.Columns = slices.DeleteFunc(f.Columns, func(c string) bool { return slices.Contains(cols, c) })
	for _, r := range f.Rows {
		for _, c := range cols {
			delete(r, c)
		}
	}
}

// Values returns the cells of col in row order.
func (f *Frame) Values(col string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[col]
	}
	return out
}

// Filter returns the rows for which keep is true. Rows are shared.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := f.empty()
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Select keeps the index columns and cols, in that order.
func (f *Frame) Select(cols ...string) (*Frame, error) {
	for _, c := range cols {
		if !f.Has(c) {
			return nil, eris.Errorf("table: unknown column %q", c)
		}
	}
	out := &Frame{Index: slices.Clone(f.Index), Columns: slices.Clone(f.Index)}
	for _, c := range cols {
		if !slices.Contains(out.Columns, c) {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([]Row, len(f.Rows))
	for i, r := range f.Rows {
		nr := make(Row, len(out.Columns))
		for _, c := range out.Columns {
			nr[c] = r[c]
		}
		out.Rows[i] = nr
	}
	return out, nil
}

// SortBy orders rows by col. The sort is stable.
func (f *Frame) SortBy(col string, desc bool) (*Frame, error) {
	if !f.Has(col) {
		return nil, eris.Errorf("table: unknown column %q", col)
	}
	out := f.clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		c := compare(out.Rows[i][col], out.Rows[j][col])
		if desc {
			// missing values stay last
			if IsEmpty(out.Rows[i][col]) || IsEmpty(out.Rows[j][col]) {
				return c < 0
			}
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// SetIndex marks cols as the index, moves them to the front and sorts the
// rows by them.
func (f *Frame) SetIndex(cols ...string) (*Frame, error) {
	for _, c := range cols {
		if !f.Has(c) {
			return nil, eris.Errorf("table: unknown index column %q", c)
		}
	}
	out := f.clone()
	out.Index = slices.Clone(cols)
	rest := slices.DeleteFunc(slices.Clone(f.Columns), func(c string) bool { return slices.Contains(cols, c) })
	out.Columns = append(slices.Clone(cols), rest...)
	sort.SliceStable(out.Rows, func(i, j int) bool {
		for _, c := range cols {
			if d := compare(out.Rows[i][c], out.Rows[j][c]); d != 0 {
				return d < 0
			}
		}
		return false
	})
	return out, nil
}

// Sample returns n rows chosen without replacement, or all rows when n is
// not smaller than the frame.
func (f *Frame) Sample(n int, rnd *rand.Rand) *Frame {
	out := f.clone()
	if n >= len(out.Rows) {
		return out
	}
	rnd.Shuffle(len(out.Rows), func(i, j int) { out.Rows[i], out.Rows[j] = out.Rows[j], out.Rows[i] })
	out.Rows = out.Rows[:n]
	return out
}

// LeftJoin adds the columns of right to f where f[leftOn] equals
// right[rightOn]. Unmatched rows get empty cells.
func (f *Frame) LeftJoin(right *Frame, leftOn, rightOn string) *Frame {
	lookup := make(map[string]Row, right.Len())
	for _, r := range right.Rows {
		key := String(r[rightOn])
		if _, ok := lookup[key]; !ok {
			lookup[key] = r
		}
	}

	out := f.empty()
	for _, c := range right.Columns {
		if !out.Has(c) {
			out.Columns = append(out.Columns, c)
		}
	}
	for _, r := range f.Rows {
		nr := make(Row, len(out.Columns))
		for k, v := range r {
			nr[k] = v
		}
		if match, ok := lookup[String(r[leftOn])]; ok {
			for _, c := range right.Columns {
				if _, exists := nr[c]; !exists {
					nr[c] = match[c]
				}
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Concat stacks frames. Columns are the union in first-seen order.
func Concat(frames ...*Frame) *Frame {
	out := New()
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, c := range f.Columns {
			if !out.Has(c) {
				out.Columns = append(out.Columns, c)
			}
		}
		out.Rows = append(out.Rows, f.Rows...)
	}
	return out
}

func (f *Frame) empty() *Frame {
	return &Frame{Columns: slices.Clone(f.Columns), Index: slices.Clone(f.Index)}
}

func (f *Frame) clone() *Frame {
	out := f.empty()
	out.Rows = slices.Clone(f.Rows)
	return out
}
