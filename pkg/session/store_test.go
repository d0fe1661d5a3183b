package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Present() {
		t.Fatal("new store should be empty")
	}
	if err := s.SetToken("abc"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tok, ok := reopened.Token()
	if !ok || tok != "abc" {
		t.Errorf("token after reopen: got %q (present=%v), want abc", tok, ok)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "token: abc") {
		t.Errorf("session file missing token key: %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("session file mode: got %v, want 0600", info.Mode().Perm())
	}
}

func TestStoreClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetToken("abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Present() {
		t.Error("token still present after clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("session file should be gone, stat err: %v", err)
	}
	// Clearing twice is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestSetEmptyTokenClears(t *testing.T) {
	s := NewMemory()
	if err := s.SetToken("abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetToken("   "); err != nil {
		t.Fatal(err)
	}
	if s.Present() {
		t.Error("blank token should clear the session")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("token: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestConcurrentReaders(t *testing.T) {
	s := NewMemory()
	if err := s.SetToken("abc"); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if tok, ok := s.Token(); !ok || tok != "abc" {
					t.Errorf("unexpected token %q", tok)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestClearIfOnlyMatchingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetToken("new"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		cleared bool
	}{
		{"older token", "old", false},
		{"empty token", "", false},
		{"current token", "new", true},
		{"already cleared", "new", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleared, err := s.ClearIf(tt.token)
			if err != nil {
				t.Fatalf("clear if: %v", err)
			}
			if cleared != tt.cleared {
				t.Errorf("cleared: got %v, want %v", cleared, tt.cleared)
			}
		})
	}

	if s.Present() {
		t.Error("token should be gone after matching ClearIf")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("session file should be removed, stat err = %v", err)
	}
}
