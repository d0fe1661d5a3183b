package dashboard

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/provdash/pkg/core"
)

func TestSummarizeTwoBuckets(t *testing.T) {
	stats := Summarize([]core.StatBucket{
		{GroupKey: "ACTIVE", Total: 5},
		{GroupKey: "FAILED", Total: 2},
	})
	if len(stats) != 2 {
		t.Fatalf("stats: got %d, want 2", len(stats))
	}
	want := []Stat{{"ACTIVE", 5}, {"FAILED", 2}}
	for i := range want {
		if stats[i] != want[i] {
			t.Errorf("stat %d: got %+v, want %+v", i, stats[i], want[i])
		}
	}

	bars := Bars(stats, 20)
	if len(bars) != 2 {
		t.Fatalf("bars: got %d, want 2", len(bars))
	}
	if bars[0].Label != "ACTIVE" || bars[0].Value != 5 || bars[0].Width != 20 {
		t.Errorf("bar 0: got %+v", bars[0])
	}
	if bars[1].Label != "FAILED" || bars[1].Value != 2 || bars[1].Width != 8 {
		t.Errorf("bar 1: got %+v", bars[1])
	}
	if Total(stats) != 7 {
		t.Errorf("total: got %d, want 7", Total(stats))
	}
}

func TestSummarizeBlankKey(t *testing.T) {
	stats := Summarize([]core.StatBucket{{GroupKey: "  ", Total: 1}})
	if stats[0].Label != NoneLabel {
		t.Errorf("label: got %q, want %q", stats[0].Label, NoneLabel)
	}
}

func TestBarsEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		stats  []Stat
		width  int
		widths []int
	}{
		{"empty", nil, 10, []int{}},
		{"all zero", []Stat{{"A", 0}, {"B", 0}}, 10, []int{0, 0}},
		{"tiny value keeps one cell", []Stat{{"A", 1000}, {"B", 1}}, 10, []int{10, 1}},
		{"zero width", []Stat{{"A", 3}}, 0, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := Bars(tt.stats, tt.width)
			if len(bars) != len(tt.widths) {
				t.Fatalf("bars: got %d, want %d", len(bars), len(tt.widths))
			}
			for i, w := range tt.widths {
				if bars[i].Width != w {
					t.Errorf("bar %d width: got %d, want %d", i, bars[i].Width, w)
				}
			}
		})
	}
}

func TestFormatBars(t *testing.T) {
	out := FormatBars([]Stat{{"ACTIVE", 5}, {"FAILED", 2}}, 5, lipgloss.NewStyle())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if got, want := lines[0], "ACTIVE  █████ 5"; got != want {
		t.Errorf("line 0: got %q, want %q", got, want)
	}
	if got, want := lines[1], "FAILED  ██ 2"; got != want {
		t.Errorf("line 1: got %q, want %q", got, want)
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, "status", []Stat{{"ACTIVE", 5}, {"FAILED", 2}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestWritePNGSingleBar(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, "", []Stat{{"ACTIVE", 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWritePNGEmpty(t *testing.T) {
	if err := WritePNG(&bytes.Buffer{}, "", nil); err == nil {
		t.Error("expected an error for no stats")
	}
}
