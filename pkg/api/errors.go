package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when the backend answers a lookup with no record.
var ErrNotFound = errors.New("not found")

// NetworkError means no HTTP response was obtained.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError carries a non-2xx response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("api %s %s: status %d: %s", e.Method, e.Path, e.Status, detail)
	}
	return fmt.Sprintf("api %s %s failed with status %d", e.Method, e.Path, e.Status)
}

// Detail extracts the backend's error message from the body, if any.
func (e *HTTPError) Detail() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return ""
	}
	if gjson.Valid(body) {
		for _, path := range []string{"detail", "error", "message"} {
			if r := gjson.Get(body, path); r.Type == gjson.String {
				return r.String()
			}
		}
		return ""
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

// Unauthorized reports whether the backend rejected the credentials.
func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// DecodeError means the response body did not have the expected shape.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err wraps a 401 HTTPError.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Unauthorized()
}
