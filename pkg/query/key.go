package query

import (
	"strconv"
	"strings"

	"github.com/modoterra/provdash/pkg/core"
)

// Key identifies one query instance: endpoint, filter set and page cursor.
// Keys are comparable, so views can hold the current one and check
// incoming results against it.
type Key struct {
	Endpoint string
	Filters  string
	Page     int
	PageSize int
}

// NewKey builds the cache key for endpoint under fs and cursor.
func NewKey(endpoint string, fs core.FilterSet, cursor core.PageCursor) Key {
	return Key{
		Endpoint: endpoint,
		Filters:  fs.Canonical(),
		Page:     cursor.Page,
		PageSize: cursor.Size,
	}
}

// String is the singleflight group key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Endpoint)
	b.WriteByte('?')
	b.WriteString(k.Filters)
	b.WriteByte('#')
	b.WriteString(strconv.Itoa(k.Page))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(k.PageSize))
	return b.String()
}

// Result is a completed fetch tagged with the key it was issued for.
type Result[T any] struct {
	Key  Key
	Data T
	Err  error
}

// Current reports whether r answers the key the view currently shows.
// Results for abandoned keys must be dropped, not rendered.
func (r Result[T]) Current(k Key) bool {
	return r.Key == k
}
