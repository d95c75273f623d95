package table

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Aggregate names accepted by GroupBy.
const (
	AggSum    = "sum"
	AggMean   = "mean"
	AggMedian = "median"
	AggStd    = "std"
	AggVar    = "var"
	AggMin    = "min"
	AggMax    = "max"
	AggSize   = "size"
)

// CountColumn holds the group sizes in grouped output.
const CountColumn = "count"

// Aggregates lists the supported aggregate names.
var Aggregates = []string{AggSum, AggMean, AggMedian, AggStd, AggVar, AggMin, AggMax, AggSize}

// timeColumns are tried in order when a frequency grouper is used on a
// frame without an index.
var timeColumns = []string{"date_modified", "created_at", "date"}

var freqPattern = regexp.MustCompile(`^(\d+)(min|[A-Za-z])$`)

// Freq is a time bucket width such as 7D or 1M.
type Freq struct {
	N    int
	Unit string // min, H, D, W, M or Y
}

// Grouper is a column key or, when Freq.N > 0, a time bucket over the
// frame's time column.
type Grouper struct {
	Column string
	Freq   Freq
}

// ParseGroupers parses a comma separated groupby spec. Items starting with a
// digit are frequencies, the rest column names.
func ParseGroupers(spec string) ([]Grouper, error) {
	var out []Grouper
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if item[0] < '0' || item[0] > '9' {
			out = append(out, Grouper{Column: item})
			continue
		}
		m := freqPattern.FindStringSubmatch(item)
		if m == nil {
			return nil, eris.Errorf("table: invalid frequency %q", item)
		}
		n, _ := strconv.Atoi(m[1])
		unit := m[2]
		switch unit {
		case "min", "D", "W", "M", "Y":
		case "T":
			unit = "min"
		case "h", "H":
			unit = "H"
		case "d":
			unit = "D"
		case "A", "y":
			unit = "Y"
		default:
			return nil, eris.Errorf("table: unsupported frequency unit %q", m[2])
		}
		if n <= 0 {
			return nil, eris.Errorf("table: invalid frequency %q", item)
		}
		out = append(out, Grouper{Freq: Freq{N: n, Unit: unit}})
	}
	if len(out) == 0 {
		return nil, eris.New("table: empty groupby")
	}
	return out, nil
}

type group struct {
	keys []any
	rows []Row
}

// GroupBy groups rows by groupers and aggregates every numeric column that
// is not a key. The result is indexed by the keys and sorted by them. With
// AggSize the only value column is CountColumn; every other aggregate adds
// CountColumn after the aggregated columns. A single frequency grouper
// yields every bucket between the first and the last, empty ones included.
func (f *Frame) GroupBy(groupers []Grouper, agg string) (*Frame, error) {
	if !slices.Contains(Aggregates, agg) {
		return nil, eris.Errorf("table: unknown aggregate %q", agg)
	}

	keyCols := make([]string, len(groupers))
	keyFns := make([]func(Row) (any, bool), len(groupers))
	var buckets *bucketer
	for i, g := range groupers {
		if g.Freq.N == 0 {
			if !f.Has(g.Column) {
				return nil, eris.Errorf("table: unknown groupby column %q", g.Column)
			}
			col := g.Column
			keyCols[i] = col
			keyFns[i] = func(r Row) (any, bool) { return r[col], true }
			continue
		}

		col, err := f.timeColumn()
		if err != nil {
			return nil, err
		}
		b, err := newBucketer(f, col, g.Freq)
		if err != nil {
			return nil, err
		}
		buckets = b
		keyCols[i] = col
		keyFns[i] = func(r Row) (any, bool) {
			t, ok := Time(r[col])
			if !ok {
				return nil, false
			}
			return b.label(b.index(t)), true
		}
	}

	valueCols := f.numericColumns(keyCols)

	groups := map[string]*group{}
	var order []string
	for _, r := range f.Rows {
		keys := make([]any, len(keyFns))
		skip := false
		for i, fn := range keyFns {
			v, ok := fn(r)
			if !ok {
				skip = true
				break
			}
			keys[i] = v
		}
		if skip {
			continue
		}
		id := groupID(keys)
		g, ok := groups[id]
		if !ok {
			g = &group{keys: keys}
			groups[id] = g
			order = append(order, id)
		}
		g.rows = append(g.rows, r)
	}

	if len(groupers) == 1 && buckets != nil && buckets.ok {
		for idx := 0; idx <= buckets.last; idx++ {
			keys := []any{buckets.label(idx)}
			id := groupID(keys)
			if _, ok := groups[id]; !ok {
				groups[id] = &group{keys: keys}
				order = append(order, id)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := groups[order[i]].keys, groups[order[j]].keys
		for k := range a {
			if d := compare(a[k], b[k]); d != 0 {
				return d < 0
			}
		}
		return false
	})

	out := &Frame{Index: slices.Clone(keyCols), Columns: slices.Clone(keyCols)}
	if agg != AggSize {
		out.Columns = append(out.Columns, valueCols...)
	}
	out.Columns = append(out.Columns, CountColumn)

	for _, id := range order {
		g := groups[id]
		r := make(Row, len(out.Columns))
		for i, c := range keyCols {
			r[c] = g.keys[i]
		}
		if agg != AggSize {
			for _, c := range valueCols {
				r[c] = aggregate(agg, floats(g.rows, c))
			}
		}
		r[CountColumn] = len(g.rows)
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

func (f *Frame) timeColumn() (string, error) {
	if len(f.Index) > 0 {
		return f.Index[0], nil
	}
	for _, c := range timeColumns {
		if f.Has(c) {
			return c, nil
		}
	}
	return "", eris.New("table: frequency grouping needs a time index")
}

// numericColumns returns the non-key, non-index columns whose non-empty
// cells are all numeric.
func (f *Frame) numericColumns(keys []string) []string {
	var out []string
	for _, c := range f.Columns {
		if slices.Contains(keys, c) || slices.Contains(f.Index, c) {
			continue
		}
		numeric := true
		for _, r := range f.Rows {
			v := r[c]
			if IsEmpty(v) {
				continue
			}
			if _, ok := Float(v); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			out = append(out, c)
		}
	}
	return out
}

func groupID(keys []any) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = String(k)
	}
	return strings.Join(parts, "\x00")
}

func floats(rows []Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if IsEmpty(r[col]) {
			continue
		}
		if v, ok := Float(r[col]); ok {
			out = append(out, v)
		}
	}
	return out
}

func aggregate(agg string, xs []float64) float64 {
	if agg == AggSum {
		var s float64
		for _, x := range xs {
			s += x
		}
		return s
	}
	if len(xs) == 0 {
		return math.NaN()
	}
	switch agg {
	case AggMean:
		return mean(xs)
	case AggMedian:
		s := slices.Clone(xs)
		slices.Sort(s)
		if len(s)%2 == 1 {
			return s[len(s)/2]
		}
		return (s[len(s)/2-1] + s[len(s)/2]) / 2
	case AggStd:
		return math.Sqrt(variance(xs))
	case AggVar:
		return variance(xs)
	case AggMin:
		return slices.Min(xs)
	case AggMax:
		return slices.Max(xs)
	}
	return math.NaN()
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// variance is the sample variance.
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return s / float64(len(xs)-1)
}

// bucketer assigns times to fixed-width buckets counted from the bucket of
// the earliest time in the column.
type bucketer struct {
	freq   Freq
	origin time.Time
	last   int
	ok     bool
}

func newBucketer(f *Frame, col string, freq Freq) (*bucketer, error) {
	b := &bucketer{freq: freq}
	var first, latest time.Time
	for _, r := range f.Rows {
		t, ok := Time(r[col])
		if !ok {
			continue
		}
		if !b.ok || t.Before(first) {
			first = t
		}
		if !b.ok || t.After(latest) {
			latest = t
		}
		b.ok = true
	}
	if !b.ok {
		return b, nil
	}
	b.origin = b.floor(first)
	b.last = b.index(latest)
	return b, nil
}

func (b *bucketer) floor(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch b.freq.Unit {
	case "min":
		return t.Truncate(time.Minute)
	case "H":
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case "W":
		// weeks end on Sunday
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return day.AddDate(0, 0, (7-int(day.Weekday()))%7)
	case "M":
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case "Y":
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (b *bucketer) index(t time.Time) int {
	t = t.In(b.origin.Location())
	var units int
	switch b.freq.Unit {
	case "min":
		units = int(t.Sub(b.origin) / time.Minute)
	case "H":
		units = int(t.Sub(b.origin) / time.Hour)
	case "D":
		units = calendarDays(b.origin, t)
	case "W":
		units = calendarDays(b.origin, b.floor(t)) / 7
	case "M":
		units = (t.Year()-b.origin.Year())*12 + int(t.Month()) - int(b.origin.Month())
	case "Y":
		units = t.Year() - b.origin.Year()
	}
	return units / b.freq.N
}

func (b *bucketer) label(idx int) string {
	n := idx * b.freq.N
	switch b.freq.Unit {
	case "min":
		return b.origin.Add(time.Duration(n) * time.Minute).Format("2006-01-02 15:04:05")
	case "H":
		return b.origin.Add(time.Duration(n) * time.Hour).Format("2006-01-02 15:04:05")
	case "W":
		return b.origin.AddDate(0, 0, 7*n).Format(time.DateOnly)
	case "M":
		// labelled by the last day of the month
		return b.origin.AddDate(0, n+1, -1).Format(time.DateOnly)
	case "Y":
		return time.Date(b.origin.Year()+n, 12, 31, 0, 0, 0, 0, b.origin.Location()).Format(time.DateOnly)
	}
	return b.origin.AddDate(0, 0, n).Format(time.DateOnly)
}

func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
