// Package dashboard turns stat buckets into labeled cards and bar charts.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/provdash/pkg/core"
)

// NoneLabel stands in for an empty group key.
const NoneLabel = "(none)"

// Stat is one labeled value shown as a card and a bar.
type Stat struct {
	Label string
	Value int64
}

// Summarize relabels buckets for display, keeping server order.
func Summarize(buckets []core.StatBucket) []Stat {
	out := make([]Stat, 0, len(buckets))
	for _, b := range buckets {
		label := strings.TrimSpace(b.GroupKey)
		if label == "" {
			label = NoneLabel
		}
		out = append(out, Stat{Label: label, Value: b.Total})
	}
	return out
}

// Total sums all values.
func Total(stats []Stat) int64 {
	var n int64
	for _, s := range stats {
		n += s.Value
	}
	return n
}

// Bar is a stat scaled to a character width.
type Bar struct {
	Stat
	Width int
}

// Bars scales stats so the largest value spans width cells. Non-zero values
// always get at least one cell.
func Bars(stats []Stat, width int) []Bar {
	var top int64
	for _, s := range stats {
		top = max(top, s.Value)
	}
	out := make([]Bar, len(stats))
	for i, s := range stats {
		out[i] = Bar{Stat: s}
		if top <= 0 || width <= 0 || s.Value <= 0 {
			continue
		}
		w := int(s.Value * int64(width) / top)
		out[i].Width = max(w, 1)
	}
	return out
}

// FormatBars renders a horizontal text bar chart, one bar per line.
func FormatBars(stats []Stat, width int, fill lipgloss.Style) string {
	bars := Bars(stats, width)
	labelWidth := 0
	for _, b := range bars {
		labelWidth = max(labelWidth, lipgloss.Width(b.Label))
	}
	var sb strings.Builder
	for _, b := range bars {
		pad := strings.Repeat(" ", labelWidth-lipgloss.Width(b.Label))
		bar := fill.Render(strings.Repeat("█", b.Width))
		fmt.Fprintf(&sb, "%s%s  %s %d\n", b.Label, pad, bar, b.Value)
	}
	return sb.String()
}
