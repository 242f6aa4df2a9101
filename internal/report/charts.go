package report

import (
	"fmt"
	"image/color"
	"os"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	colorBlue   = color.RGBA{R: 54, G: 162, B: 235, A: 255}
	colorRed    = color.RGBA{R: 255, G: 99, B: 132, A: 255}
	colorYellow = color.RGBA{R: 255, G: 206, B: 86, A: 255}
	colorGreen  = color.RGBA{R: 75, G: 192, B: 192, A: 255}
	colorPurple = color.RGBA{R: 153, G: 102, B: 255, A: 255}
)

// RenderEndpointMetrics writes a 2x2 panel of bar charts: average
// response time, request count, failure count (each sorted descending),
// and grouped median/p95/p99 percentiles per endpoint. The Aggregated
// row is excluded.
func RenderEndpointMetrics(rows []StatsRow, path string) error {
	endpoints := make([]StatsRow, 0, len(rows))
	for _, r := range rows {
		if r.Name != "Aggregated" {
			endpoints = append(endpoints, r)
		}
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoint rows to chart")
	}

	avgPlot, err := barChart("Average Response Time by Endpoint", "ms",
		sortedBy(endpoints, func(r StatsRow) float64 { return r.AvgMS }),
		func(r StatsRow) float64 { return r.AvgMS })
	if err != nil {
		return err
	}
	countPlot, err := barChart("Request Count by Endpoint", "requests",
		sortedBy(endpoints, func(r StatsRow) float64 { return float64(r.RequestCount) }),
		func(r StatsRow) float64 { return float64(r.RequestCount) })
	if err != nil {
		return err
	}
	failPlot, err := barChart("Failure Count by Endpoint", "failures",
		sortedBy(endpoints, func(r StatsRow) float64 { return float64(r.FailureCount) }),
		func(r StatsRow) float64 { return float64(r.FailureCount) })
	if err != nil {
		return err
	}
	pctPlot, err := percentileChart(endpoints)
	if err != nil {
		return err
	}

	return savePanel([][]*plot.Plot{
		{avgPlot, countPlot},
		{failPlot, pctPlot},
	}, 14*vg.Inch, 10*vg.Inch, path)
}

// RenderTimeSeries writes a 2x2 panel of line charts over the run:
// RPS, avg+median response time, user count, and failures.
func RenderTimeSeries(points []HistoryPoint, path string) error {
	if len(points) == 0 {
		return fmt.Errorf("no history points to chart")
	}

	rps := linePlot("Requests per Second Over Time", "req/s",
		points, func(p HistoryPoint) float64 { return p.TotalRPS }, colorBlue)

	rt := plot.New()
	rt.Title.Text = "Response Time Over Time"
	rt.X.Label.Text = "Seconds"
	rt.Y.Label.Text = "ms"
	avgLine, err := plotter.NewLine(historyXYs(points, func(p HistoryPoint) float64 { return p.AvgMS }))
	if err != nil {
		return err
	}
	avgLine.Color = colorBlue
	avgLine.Width = vg.Points(2)
	medLine, err := plotter.NewLine(historyXYs(points, func(p HistoryPoint) float64 { return p.MedianMS }))
	if err != nil {
		return err
	}
	medLine.Color = colorGreen
	medLine.Width = vg.Points(2)
	rt.Add(avgLine, medLine)
	rt.Legend.Add("Average", avgLine)
	rt.Legend.Add("Median", medLine)
	rt.Legend.Top = true

	users := linePlot("Number of Users Over Time", "users",
		points, func(p HistoryPoint) float64 { return float64(p.UserCount) }, colorPurple)
	failures := linePlot("Failures Over Time", "failures",
		points, func(p HistoryPoint) float64 { return float64(p.TotalFailures) }, colorRed)

	return savePanel([][]*plot.Plot{
		{rps, rt},
		{users, failures},
	}, 14*vg.Inch, 10*vg.Inch, path)
}

// RenderDistribution writes a 50-bin histogram of response times.
func RenderDistribution(values []float64, path string) error {
	if len(values) == 0 {
		return fmt.Errorf("no distribution values to chart")
	}

	p := plot.New()
	p.Title.Text = "Response Time Distribution"
	p.X.Label.Text = "Response Time (ms)"
	p.Y.Label.Text = "Frequency"

	pv := make(plotter.Values, len(values))
	copy(pv, values)
	hist, err := plotter.NewHist(pv, 50)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	hist.FillColor = colorBlue
	p.Add(hist)

	return p.Save(12*vg.Inch, 6*vg.Inch, path)
}

func barChart(title, yLabel string, rows []StatsRow, value func(StatsRow) float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel

	values := make(plotter.Values, len(rows))
	ticks := make([]plot.Tick, len(rows))
	for i, r := range rows {
		values[i] = value(r)
		ticks[i] = plot.Tick{Value: float64(i), Label: r.Name}
	}

	bar, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("build bar chart: %w", err)
	}
	bar.Color = colorBlue
	p.Add(bar)

	p.X.Min = -0.5
	p.X.Max = float64(len(values)) - 0.5
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Tick.Label.Rotation = -1.2
	p.X.Tick.Label.XAlign = draw.XLeft
	return p, nil
}

// percentileChart draws median/p95/p99 as grouped bars per endpoint.
func percentileChart(rows []StatsRow) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Response Time Percentiles by Endpoint"
	p.Y.Label.Text = "ms"

	barWidth := vg.Points(6)
	series := []struct {
		label  string
		color  color.RGBA
		offset float64
		value  func(StatsRow) float64
	}{
		{"Median", colorGreen, -1, func(r StatsRow) float64 { return r.MedianMS }},
		{"95%", colorYellow, 0, func(r StatsRow) float64 { return r.P95MS }},
		{"99%", colorRed, 1, func(r StatsRow) float64 { return r.P99MS }},
	}

	for _, s := range series {
		values := make(plotter.Values, len(rows))
		for i, r := range rows {
			values[i] = s.value(r)
		}
		bar, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return nil, fmt.Errorf("build percentile bars: %w", err)
		}
		bar.Color = s.color
		bar.Offset = vg.Length(s.offset) * barWidth
		p.Add(bar)
		p.Legend.Add(s.label, bar)
	}
	p.Legend.Top = true

	ticks := make([]plot.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = plot.Tick{Value: float64(i), Label: r.Name}
	}
	p.X.Min = -0.5
	p.X.Max = float64(len(rows)) - 0.5
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Tick.Label.Rotation = -1.2
	p.X.Tick.Label.XAlign = draw.XLeft
	return p, nil
}

func linePlot(title, yLabel string, points []HistoryPoint, value func(HistoryPoint) float64, c color.RGBA) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(historyXYs(points, value))
	if err != nil {
		// NewLine only fails on impossible lengths; points is non-empty.
		return p
	}
	line.Color = c
	line.Width = vg.Points(2)
	p.Add(line)
	return p
}

func historyXYs(points []HistoryPoint, value func(HistoryPoint) float64) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(i)
		xys[i].Y = value(pt)
	}
	return xys
}

func sortedBy(rows []StatsRow, key func(StatsRow) float64) []StatsRow {
	out := make([]StatsRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	return out
}

func savePanel(plots [][]*plot.Plot, w, h vg.Length, path string) error {
	img := vgimg.New(w, h)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: len(plots[0]),
		PadX: vg.Points(12),
		PadY: vg.Points(12),
	}

	canvases := plot.Align(plots, tiles, dc)
	for i, row := range plots {
		for j, p := range row {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	f, err := os.Create(path) // #nosec G304 - operator-supplied output dir
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("write chart: %w", err)
	}
	return f.Close()
}
