package analysis

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/TobiSchelling/mediascraper/internal/table"
	"github.com/rotisserie/eris"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatHTML = "html"
	FormatPNG  = "png"
)

// ErrBadFormat is returned for an unsupported output format.
var ErrBadFormat = eris.New("analysis: illegal format parameter value")

// Shape post-processes an analysis table. Steps run in field order and are
// skipped when empty.
type Shape struct {
	Index     []string
	Columns   []string
	GroupBy   string
	Aggregate string
	SortKey   string
}

// ParseShape reads the shaping query parameters.
func ParseShape(q url.Values) Shape {
	return Shape{
		Index:     splitList(q.Get("index")),
		Columns:   splitList(q.Get("columns")),
		GroupBy:   q.Get("groupby"),
		Aggregate: q.Get("aggregate"),
		SortKey:   q.Get("sort_key"),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Apply indexes, selects, groups and sorts f. The default aggregate is sum;
// sorting is descending.
func (s Shape) Apply(f *table.Frame) (*table.Frame, error) {
	var err error
	if len(s.Index) > 0 {
		if f, err = f.SetIndex(s.Index...); err != nil {
			return nil, invalid(err)
		}
	}
	if len(s.Columns) > 0 {
		if f, err = f.Select(s.Columns...); err != nil {
			return nil, invalid(err)
		}
	}
	if s.GroupBy != "" {
		groupers, err := table.ParseGroupers(s.GroupBy)
		if err != nil {
			return nil, invalid(err)
		}
		agg := s.Aggregate
		if agg == "" {
			agg = table.AggSum
		}
		if f, err = f.GroupBy(groupers, agg); err != nil {
			return nil, invalid(err)
		}
	}
	if s.SortKey != "" {
		if f, err = f.SortBy(s.SortKey, true); err != nil {
			return nil, invalid(err)
		}
	}
	return f, nil
}

func invalid(err error) error {
	return eris.Wrapf(ErrInvalidParams, "%v", err)
}

// Encode renders f in format and returns the body with its content type.
// plot selects the chart kind of the png format; it defaults to a line
// chart.
func Encode(f *table.Frame, format, plot string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case "", FormatCSV:
		if err := f.WriteCSV(&buf); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv; charset=utf-8", nil
	case FormatJSON:
		if err := f.WriteJSON(&buf); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "application/json; charset=utf-8", nil
	case FormatHTML:
		if err := f.WriteHTML(&buf); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/html; charset=utf-8", nil
	case FormatPNG:
		if plot == "" {
			plot = table.PlotLine
		}
		if plot != table.PlotLine && plot != table.PlotBar {
			return nil, "", eris.Wrapf(ErrInvalidParams, "plot %q", plot)
		}
		if err := f.WritePNG(&buf, plot); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	}
	return nil, "", eris.Wrap(ErrBadFormat, format)
}
