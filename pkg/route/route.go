// Package route decides which view a navigation lands on.
package route

import "strings"

// Route names a top-level view.
type Route int

const (
	Login Route = iota
	Dashboard
	Interfaces
	Logs
)

// Root is where a fresh session lands after login.
const Root = Dashboard

// Protected lists the routes that require a session, in tab order.
var Protected = []Route{Dashboard, Interfaces, Logs}

func (r Route) String() string {
	switch r {
	case Login:
		return "login"
	case Dashboard:
		return "dashboard"
	case Interfaces:
		return "interfaces"
	case Logs:
		return "logs"
	default:
		return "unknown"
	}
}

// IsProtected reports whether r needs a token. Login never does.
func (r Route) IsProtected() bool {
	return r != Login
}

// TokenSource is the read side of the session store.
type TokenSource interface {
	Token() (string, bool)
}

// Resolve returns the view to render for requested. Without a token every
// protected route resolves to Login.
func Resolve(requested Route, tokens TokenSource) Route {
	if !requested.IsProtected() {
		return requested
	}
	if tokens == nil {
		return Login
	}
	if _, ok := tokens.Token(); !ok {
		return Login
	}
	return requested
}

// Parse maps a route name to a Route. The empty name is the root view.
func Parse(name string) (Route, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "/", "dashboard":
		return Dashboard, true
	case "login":
		return Login, true
	case "interfaces":
		return Interfaces, true
	case "logs":
		return Logs, true
	default:
		return Login, false
	}
}
