package logstream

import (
	"fmt"
	"net/http"
)

// StreamError reports a dropped or refused live connection.
type StreamError struct {
	URL     string
	Attempt int
	// Status is the HTTP status of a refused handshake, or 0.
	Status int
	Err    error
}

func (e *StreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("log stream %s: handshake status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("log stream %s: %v", e.URL, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Unauthorized reports whether the server refused the handshake with 401.
func (e *StreamError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }
