package logstream

import (
	"sync"

	"github.com/modoterra/provdash/pkg/core"
)

// DefaultCapacity is the number of lines a viewer keeps.
const DefaultCapacity = 100

// Buffer keeps the most recent lines in arrival order. Appends go to the
// tail; once over capacity the oldest lines are trimmed from the head.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	lines    []core.LogLine
	total    uint64
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, lines: make([]core.LogLine, 0, capacity)}
}

// Append adds l, then trims the head back to capacity.
func (b *Buffer) Append(l core.LogLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, l)
	b.total++
	if over := len(b.lines) - b.capacity; over > 0 {
		b.lines = b.lines[over:]
	}
}

// Lines returns a copy of the retained lines, oldest first.
func (b *Buffer) Lines() []core.LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.LogLine, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

func (b *Buffer) Cap() int { return b.capacity }

// Total is the number of lines ever appended, including evicted ones.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Reset discards all lines.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = make([]core.LogLine, 0, b.capacity)
	b.total = 0
}
