package route

import (
	"testing"

	"github.com/modoterra/provdash/pkg/session"
)

type fixedToken string

func (f fixedToken) Token() (string, bool) { return string(f), f != "" }

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested Route
		token     fixedToken
		want      Route
	}{
		{"dashboard without token", Dashboard, "", Login},
		{"interfaces without token", Interfaces, "", Login},
		{"logs without token", Logs, "", Login},
		{"login without token", Login, "", Login},
		{"dashboard with token", Dashboard, "abc", Dashboard},
		{"interfaces with token", Interfaces, "abc", Interfaces},
		{"logs with token", Logs, "abc", Logs},
		{"login with token", Login, "abc", Login},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.requested, tt.token); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveFollowsSessionStore(t *testing.T) {
	s := session.NewMemory()
	if got := Resolve(Interfaces, s); got != Login {
		t.Errorf("empty store: got %s, want login", got)
	}
	if err := s.SetToken("abc"); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(Interfaces, s); got != Interfaces {
		t.Errorf("with token: got %s, want interfaces", got)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(Interfaces, s); got != Login {
		t.Errorf("after clear: got %s, want login", got)
	}
}

func TestResolveNilSource(t *testing.T) {
	if got := Resolve(Logs, nil); got != Login {
		t.Errorf("got %s, want login", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Route
		ok   bool
	}{
		{"", Dashboard, true},
		{"Logs", Logs, true},
		{" interfaces ", Interfaces, true},
		{"login", Login, true},
		{"admin", Login, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Parse(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
