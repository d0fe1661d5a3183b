// Package buildinfo holds version metadata injected at link time.
package buildinfo

// Set via -ldflags "-X github.com/modoterra/provdash/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent returns the User-Agent sent with API requests.
func UserAgent() string {
	return "provdash/" + Version
}
