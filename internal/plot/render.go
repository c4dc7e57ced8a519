package plot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// timeFormat is parsed by the echarts time axis as local time.
const timeFormat = "2006-01-02 15:04:05"

type Options struct {
	Title string
	// AssetsHost overrides where the page loads the echarts scripts from.
	AssetsHost string
}

func newLine(fig Figure, o Options) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  o.Title,
			Width:      "100%",
			Height:     "640px",
			Theme:      types.ThemeWesteros,
			AssetsHost: o.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: o.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: true}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time", Type: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "°C", Type: "value", Scale: true}),
	)
	line.ExtendYAxis(opts.YAxis{Name: TraceActive, Type: "value", Min: 0, Max: 1})

	for _, tr := range fig.Traces {
		data := make([]opts.LineData, 0, len(tr.Points))
		for _, p := range tr.Points {
			data = append(data, opts.LineData{Value: []interface{}{p.Time.Format(timeFormat), p.Value}})
		}
		yAxis := 0
		if tr.Axis == AxisSecondary {
			yAxis = 1
		}
		line.AddSeries(tr.Name, data, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: yAxis}))
	}
	return line
}

// Render writes fig as a single HTML page.
func Render(w io.Writer, fig Figure, o Options) error {
	return newLine(fig, o).Render(w)
}

// WriteFile renders fig to path, creating the parent directory. The page is
// written to a temp file and renamed into place.
func WriteFile(path string, fig Figure, o Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp chart: %w", err)
	}
	tmpName := tmp.Name()

	renderErr := Render(tmp, fig, o)
	closeErr := tmp.Close()
	if err := errors.Join(renderErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("render chart: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename chart into %s: %w", path, err)
	}
	return nil
}
