// Package scanplot renders scan records as PNG plots (gonum/plot) or HTML
// charts (go-echarts) and summarizes their samples.
package scanplot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lmsctl/internal/scan"
)

// ErrEmpty is returned when a record has no samples to draw.
var ErrEmpty = errors.New("scan has no samples")

// channel returns the sample values to draw and their label. Range is
// preferred when the record carries both.
func channel(rec scan.Record) ([]uint, string) {
	if rec.Range != nil {
		return rec.Range, "range"
	}
	return rec.Reflectivity, "reflectivity"
}

// Points converts a record to cartesian coordinates, with bearing 90 on the
// positive Y axis.
func Points(rec scan.Record) plotter.XYs {
	values, _ := channel(rec)
	n := len(values)
	if len(rec.Bearings) < n {
		n = len(rec.Bearings)
	}
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		theta := rec.Bearings[i] * math.Pi / 180
		r := float64(values[i])
		pts[i] = plotter.XY{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
	}
	return pts
}

func newPlot(rec scan.Record, title string) (*plot.Plot, error) {
	pts := Points(rec)
	if len(pts) == 0 {
		return nil, ErrEmpty
	}
	_, label := channel(rec)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("build scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(1)
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(sc, plotter.NewGrid())
	p.Legend.Add(label, sc)
	p.Legend.Top = true
	return p, nil
}

// WritePNG draws rec as a PNG image to w.
func WritePNG(w io.Writer, rec scan.Record, title string) error {
	p, err := newPlot(rec, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteHTML renders rec as an interactive scatter chart to w.
func WriteHTML(w io.Writer, rec scan.Record, title string) error {
	pts := Points(rec)
	if len(pts) == 0 {
		return ErrEmpty
	}
	_, label := channel(rec)

	data := make([]opts.ScatterData, 0, len(pts))
	for i, pt := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y, rec.Bearings[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%s samples=%d fov=%g res=%g", label, len(pts), rec.FieldOfView, rec.Resolution)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries(label, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveFile writes rec to path, choosing PNG or HTML from the extension.
func SaveFile(path string, rec scan.Record, title string) error {
	var write func(io.Writer, scan.Record, string) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		write = WritePNG
	case ".html", ".htm":
		write = WriteHTML
	default:
		return fmt.Errorf("unsupported plot format %q: use .png or .html", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, rec, title); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
