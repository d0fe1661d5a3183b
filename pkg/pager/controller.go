// Package pager owns the filter values and page cursor behind a paginated
// listing and derives the query key from them.
package pager

import (
	"github.com/modoterra/provdash/pkg/core"
	"github.com/modoterra/provdash/pkg/query"
)

// DefaultPageSize is used when a non-positive page size is configured.
const DefaultPageSize = 10

// Controller is a state machine over (FilterSet, PageCursor). It is owned
// by a single goroutine, normally the TUI event loop, and never blocks.
type Controller struct {
	endpoint string
	filters  core.FilterSet
	cursor   core.PageCursor

	// row count of the last completed fetch for observedKey
	observedKey query.Key
	observed    bool
	lastRows    int
}

// New returns a controller on page 1 with no filters.
func New(endpoint string, pageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		endpoint: endpoint,
		filters:  core.FilterSet{},
		cursor:   core.PageCursor{Page: 1, Size: pageSize},
	}
}

func (c *Controller) Filters() core.FilterSet {
	out := make(core.FilterSet, len(c.filters))
	for k, v := range c.filters {
		out[k] = v
	}
	return out
}

func (c *Controller) Cursor() core.PageCursor { return c.cursor }

// Key returns the cache key for the current state.
func (c *Controller) Key() query.Key {
	return query.NewKey(c.endpoint, c.filters, c.cursor)
}

// SubmitFilters replaces the filter set wholesale and resets to page 1.
// It reports whether the effective key changed.
func (c *Controller) SubmitFilters(raw map[string]string) bool {
	before := c.Key()
	c.filters = core.NewFilterSet(raw)
	c.cursor.Page = 1
	c.observed = false
	c.lastRows = 0
	return c.Key() != before
}

// Observe records the row count of a completed fetch. Counts for keys that
// are no longer current are ignored.
func (c *Controller) Observe(key query.Key, rows int) {
	if key != c.Key() {
		return
	}
	c.observedKey = key
	c.observed = true
	c.lastRows = rows
}

// HasNext reports whether the last fetch for the current key filled a page.
func (c *Controller) HasNext() bool {
	return c.observed && c.observedKey == c.Key() && c.lastRows >= c.cursor.Size
}

func (c *Controller) HasPrev() bool { return c.cursor.Page > 1 }

// NextPage advances one page if the current page was full.
func (c *Controller) NextPage() bool {
	if !c.HasNext() {
		return false
	}
	c.cursor.Page++
	c.observed = false
	return true
}

// PrevPage goes back one page, never below page 1.
func (c *Controller) PrevPage() bool {
	if !c.HasPrev() {
		return false
	}
	c.cursor.Page--
	c.observed = false
	return true
}
