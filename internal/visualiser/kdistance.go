// Package visualiser renders diagnostic charts for radius selection: an
// interactive go-echarts page for the debug server and a static PNG for
// offline tuning.
package visualiser

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/anomaly.report/internal/clustering"
)

var errNoCurve = errors.New("no k-distances to chart")

// KDistanceChart writes an HTML page charting the sorted k-distance curve
// with the selected knee marked.
func KDistanceChart(w io.Writer, sel *clustering.RadiusSelection, subtitle string) error {
	if sel == nil || len(sel.KDistances) == 0 {
		return errNoCurve
	}

	ranks := make([]string, len(sel.KDistances))
	data := make([]opts.LineData, len(sel.KDistances))
	for i, d := range sel.KDistances {
		ranks[i] = strconv.Itoa(i)
		data[i] = opts.LineData{Value: d}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "k-distance", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%d-distance curve (eps %.4g at rank %d)", sel.K, sel.Eps, sel.KneeIndex),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "rank", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(ranks).
		AddSeries("k-distance", data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "knee", XAxis: strconv.Itoa(sel.KneeIndex)}),
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "eps", YAxis: sel.Eps}),
		)
	return line.Render(w)
}

// KDistancePlot writes the k-distance curve as a PNG of the given size.
func KDistancePlot(w io.Writer, sel *clustering.RadiusSelection, title string, width, height vg.Length) error {
	if sel == nil || len(sel.KDistances) == 0 {
		return errNoCurve
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Rank"
	p.Y.Label.Text = fmt.Sprintf("%d-distance", sel.K)

	pts := make(plotter.XYs, len(sel.KDistances))
	for i, d := range sel.KDistances {
		pts[i] = plotter.XY{X: float64(i), Y: d}
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	curve.Width = vg.Points(1)
	p.Add(curve)
	p.Legend.Add("k-distance", curve)

	knee, err := plotter.NewScatter(plotter.XYs{{X: float64(sel.KneeIndex), Y: sel.Eps}})
	if err != nil {
		return err
	}
	knee.Color = color.RGBA{R: 220, A: 255}
	knee.Radius = vg.Points(4)
	p.Add(knee)
	p.Legend.Add(fmt.Sprintf("knee eps=%.4g", sel.Eps), knee)

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
