// Package table maps column definitions and records to a display grid.
// It has no sorting, filtering or paging of its own.
package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column binds a header label to a record field.
type Column struct {
	Header string
	Field  string
}

// Record is anything that can report a field by name.
type Record interface {
	Field(name string) string
}

// Grid is the rendered form: one header row and one row of cells per record,
// in input order.
type Grid struct {
	Headers []string
	Rows    [][]string
}

// Build is pure: the same columns and rows always give the same grid.
func Build[R Record](columns []Column, rows []R) Grid {
	g := Grid{
		Headers: make([]string, len(columns)),
		Rows:    make([][]string, 0, len(rows)),
	}
	for i, c := range columns {
		g.Headers[i] = c.Header
	}
	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = r.Field(c.Field)
		}
		g.Rows = append(g.Rows, cells)
	}
	return g
}

// Empty reports whether the grid has no data rows.
func (g Grid) Empty() bool { return len(g.Rows) == 0 }

// Widths returns the display width of each column, header included.
func (g Grid) Widths() []int {
	w := make([]int, len(g.Headers))
	for i, h := range g.Headers {
		w[i] = lipgloss.Width(h)
	}
	for _, row := range g.Rows {
		for i, cell := range row {
			if i < len(w) {
				w[i] = max(w[i], lipgloss.Width(cell))
			}
		}
	}
	return w
}

// Format renders the grid as aligned plain text, two spaces between
// columns, no trailing padding.
func (g Grid) Format() string {
	widths := g.Widths()
	var b strings.Builder
	writeRow(&b, g.Headers, widths)
	for _, row := range g.Rows {
		writeRow(&b, row, widths)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	var line strings.Builder
	for i, cell := range cells {
		if i > 0 {
			line.WriteString("  ")
		}
		line.WriteString(cell)
		if i < len(cells)-1 {
			line.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
	}
	b.WriteString(strings.TrimRight(line.String(), " "))
	b.WriteByte('\n')
}
