package core

import (
	"net/url"
	"strings"
)

// Filter names accepted by the interfaces endpoint.
const (
	FilterMSISDN    = "msisdn"
	FilterStatus    = "status"
	FilterErrorCode = "error_code"
	FilterNEService = "ne_service"
)

// FilterNames lists the known filters in display order.
var FilterNames = []string{FilterMSISDN, FilterStatus, FilterErrorCode, FilterNEService}

// FilterSet maps filter name to value. A missing or empty value means no constraint.
type FilterSet map[string]string

// NewFilterSet normalizes raw filter input: values are trimmed, unknown
// names and empty values are dropped.
func NewFilterSet(raw map[string]string) FilterSet {
	fs := make(FilterSet, len(raw))
	for _, name := range FilterNames {
		if v := strings.TrimSpace(raw[name]); v != "" {
			fs[name] = v
		}
	}
	return fs
}

// Get returns the value for name, or "".
func (fs FilterSet) Get(name string) string {
	return fs[name]
}

// Empty reports whether no filter is set.
func (fs FilterSet) Empty() bool {
	for _, v := range fs {
		if v != "" {
			return false
		}
	}
	return true
}

// Values encodes the non-empty filters as query parameters.
func (fs FilterSet) Values() url.Values {
	v := url.Values{}
	for name, value := range fs {
		if value != "" {
			v.Set(name, value)
		}
	}
	return v
}

// Canonical returns a stable string form, sorted by filter name.
func (fs FilterSet) Canonical() string {
	return fs.Values().Encode()
}

// Equal reports whether two filter sets constrain the same fields identically.
func (fs FilterSet) Equal(other FilterSet) bool {
	return fs.Canonical() == other.Canonical()
}

// PageCursor is a 1-based page number plus a fixed page size.
type PageCursor struct {
	Page int `json:"page"`
	Size int `json:"page_size"`
}

// Offset returns the zero-based index of the first row on the page.
func (c PageCursor) Offset() int {
	if c.Page < 1 {
		return 0
	}
	return (c.Page - 1) * c.Size
}
