package preview

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/golang/geo/r2"

	"playamap/internal/engine"
	"playamap/internal/timeline"
)

// ChartOptions controls the rendered page.
type ChartOptions struct {
	Width  int
	Height int
	// Center is drawn as its own "center" series when set.
	Center *r2.Point
}

// Chart builds a scatter chart of the located events in snap, one series per
// event type. Map coordinates grow downwards, so y is flipped for the chart.
func Chart(snap engine.Snapshot, o ChartOptions) *charts.Scatter {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "playamap",
			Width:     fmt.Sprintf("%dpx", o.Width),
			Height:    fmt.Sprintf("%dpx", o.Height),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    timeline.CountLabel(len(snap.Active)),
			Subtitle: fmt.Sprintf("%s  step %dm  darkness %.2f", snap.Instant.Format("Mon Jan 2 15:04"), snap.Step, snap.Darkness),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: 1, Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: 1, Show: opts.Bool(false)}),
	)

	groups := make(map[string][]opts.ScatterData)
	for _, ae := range snap.Active {
		if !ae.Located {
			continue
		}
		abbr := ae.Event.TypeAbbr()
		groups[abbr] = append(groups[abbr], opts.ScatterData{
			Name:       ae.Event.Title,
			Value:      []float64{ae.Coordinate.X, 1 - ae.Coordinate.Y},
			SymbolSize: 8,
		})
	}

	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		sc.AddSeries(name, groups[name])
	}

	if o.Center != nil {
		sc.AddSeries("center", []opts.ScatterData{{
			Name:       "The Man",
			Value:      []float64{o.Center.X, 1 - o.Center.Y},
			Symbol:     "diamond",
			SymbolSize: 14,
		}})
	}
	return sc
}

// Render writes the chart page for snap.
func Render(w io.Writer, snap engine.Snapshot, o ChartOptions) error {
	if err := Chart(snap, o).Render(w); err != nil {
		return fmt.Errorf("preview: render chart: %w", err)
	}
	return nil
}
