package dashboard

import (
	"errors"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
)

var errNoStats = errors.New("no stats to chart")

// WritePNG renders stats as a PNG bar chart, one bar per stat.
func WritePNG(w io.Writer, title string, stats []Stat) error {
	if len(stats) == 0 {
		return errNoStats
	}
	bars := make([]chart.Value, len(stats))
	var top float64
	for i, s := range stats {
		v := float64(s.Value)
		bars[i] = chart.Value{Label: s.Label, Value: v}
		top = max(top, v)
	}

	bc := chart.BarChart{
		Title:  title,
		Width:  max(480, 120*len(stats)),
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		BarWidth:   60,
		BarSpacing: 40,
		YAxis: chart.YAxis{
			// A single bar or all-equal values would otherwise give a zero range.
			Range: &chart.ContinuousRange{Min: 0, Max: max(top, 1)},
		},
		Bars: bars,
	}
	return bc.Render(chart.PNG, w)
}
