// Package session holds the bearer token that gates the console.
//
// A Store is the single owner of the token. Readers (the API client, the
// route guard) call Token or Present; only login, logout and the
// unauthorized-response handler write.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileName = "session.yaml"

// Store is a durable, concurrency-safe token holder.
type Store struct {
	path   string
	mu     sync.RWMutex
	token  string
	logger *slog.Logger
}

// state is the on-disk layout. The token lives under the fixed key "token".
type state struct {
	Token string `yaml:"token,omitempty"`
}

// DefaultPath returns the session file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(dir, "provdash", fileName), nil
}

// Open loads the session stored at path. A missing file yields an empty session.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}

	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	s.token = strings.TrimSpace(st.Token)
	return s, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory() *Store {
	return &Store{logger: slog.Default()}
}

// Path returns the backing file path, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Token returns the current token and whether one is present.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Present reports whether a token is stored.
func (s *Store) Present() bool {
	_, ok := s.Token()
	return ok
}

// SetToken stores and persists t. An empty token clears the session.
func (s *Store) SetToken(t string) error {
	t = strings.TrimSpace(t)
	if t == "" {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(state{Token: t}); err != nil {
		return err
	}
	s.token = t
	s.logger.Info("session stored", "path", s.path)
	return nil
}

// Clear forgets the token and removes the session file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear()
}

// ClearIf clears the session only while it still holds t, and reports
// whether it did. A rejection of an older token must not end a newer session.
func (s *Store) ClearIf(t string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.token != strings.TrimSpace(t) {
		return false, nil
	}
	return true, s.clear()
}

// clear must be called with s.mu held.
func (s *Store) clear() error {
	had := s.token != ""
	s.token = ""
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session %s: %w", s.path, err)
		}
	}
	if had {
		s.logger.Info("session cleared", "path", s.path)
	}
	return nil
}

// persist must be called with s.mu held.
func (s *Store) persist(st state) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
