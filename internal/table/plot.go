package table

import (
	"io"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot kinds accepted by WritePNG.
const (
	PlotLine = "line"
	PlotBar  = "bar"
)

// WritePNG charts every numeric non-index column against the row position,
// labelling the x axis with the first index column when there is one.
func (f *Frame) WritePNG(w io.Writer, kind string) error {
	p := plot.New()
	p.Legend.Top = true

	series := f.numericColumns(nil)
	if len(f.Index) > 0 {
		p.X.Label.Text = f.Index[0]
		labels := make([]string, len(f.Rows))
		for i, r := range f.Rows {
			labels[i] = String(r[f.Index[0]])
		}
		p.NominalX(labels...)
	}

	switch kind {
	case PlotBar:
		width := vg.Points(12)
		for i, col := range series {
			values := make(plotter.Values, len(f.Rows))
			for j, r := range f.Rows {
				values[j] = finite(r[col])
			}
			bars, err := plotter.NewBarChart(values, width)
			if err != nil {
				return eris.Wrapf(err, "table: bar chart for %s", col)
			}
			bars.Color = plotutil.Color(i)
			bars.LineStyle.Width = 0
			bars.Offset = vg.Length(i-len(series)/2) * width
			p.Add(bars)
			p.Legend.Add(col, bars)
		}
	case PlotLine, "":
		for i, col := range series {
			var xys plotter.XYs
			for j, r := range f.Rows {
				v, ok := Float(r[col])
				if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				xys = append(xys, plotter.XY{X: float64(j), Y: v})
			}
			if len(xys) == 0 {
				continue
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return eris.Wrapf(err, "table: line for %s", col)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(col, line)
		}
	default:
		return eris.Errorf("table: unknown plot kind %q", kind)
	}

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return eris.Wrap(err, "table: render png")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return eris.Wrap(err, "table: write png")
	}
	return nil
}

func finite(v any) float64 {
	f, ok := Float(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
