// Package logstream subscribes to the backend's live log feed over a
// WebSocket and keeps a bounded tail of what it receives.
package logstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modoterra/provdash/pkg/core"
)

// State is the connection state reported through Options.OnState.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRetrying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "live"
	case StateRetrying:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultBackoff    = time.Second
	DefaultMaxBackoff = 30 * time.Second
	closeGrace        = time.Second
)

// Options tunes a subscription. The zero value connects once and never
// reconnects.
type Options struct {
	Reconnect  bool
	Backoff    time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *slog.Logger

	// OnError receives every *StreamError. Called from the read goroutine.
	OnError func(error)
	// OnState receives connection state changes. Called from the read goroutine.
	OnState func(State)
}

// Subscription is one live log connection. Close releases it; the read
// goroutine also closes the socket on every exit path.
type Subscription struct {
	url    string
	header http.Header
	onLine func(core.LogLine)
	opts   Options
	logger *slog.Logger

	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	closes atomic.Int32
}

// Subscribe starts reading url in the background and calls onLine for each
// message received. header is sent with the handshake.
func Subscribe(ctx context.Context, url string, header http.Header, onLine func(core.LogLine), opts Options) *Subscription {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		url:    url,
		header: header.Clone(),
		onLine: onLine,
		opts:   opts,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(subCtx)
	return s
}

// Close stops the subscription. It is safe to call more than once and
// before the connection is established.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.closeConn()
	})
}

// Done is closed once the read goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) URL() string { return s.url }

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateClosed)

	backoff := s.opts.Backoff
	for attempt := 1; ; attempt++ {
		s.setState(StateConnecting)
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}

		serr := toStreamError(s.url, attempt, err)
		s.logger.Warn("log stream dropped", "url", s.url, "attempt", attempt, "err", err)
		if s.opts.OnError != nil {
			s.opts.OnError(serr)
		}
		if !s.opts.Reconnect || serr.Unauthorized() {
			return
		}

		if connected {
			backoff = s.opts.Backoff
		}
		s.setState(StateRetrying)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

// session dials, then reads until the connection fails. It reports whether
// the handshake succeeded.
func (s *Subscription) session(ctx context.Context) (bool, error) {
	conn, resp, err := s.opts.Dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return false, &handshakeError{status: resp.StatusCode, err: err}
		}
		return false, err
	}
	if !s.attach(conn) {
		return false, context.Canceled
	}
	defer s.closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-stop:
		}
	}()

	s.setState(StateOpen)
	s.logger.Info("log stream open", "url", s.url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if s.onLine != nil {
			s.onLine(core.LogLine{
				TsUnixMs: time.Now().UnixMilli(),
				Line:     strings.TrimRight(string(data), "\r\n"),
			})
		}
	}
}

// attach records conn unless Close already ran, in which case conn is
// closed immediately.
func (s *Subscription) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		s.closes.Add(1)
		return false
	}
	s.conn = conn
	return true
}

func (s *Subscription) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	conn.Close()
	s.closes.Add(1)
}

func (s *Subscription) setState(st State) {
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string { return e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

func toStreamError(url string, attempt int, err error) *StreamError {
	serr := &StreamError{URL: url, Attempt: attempt, Err: err}
	var he *handshakeError
	if errors.As(err, &he) {
		serr.Status = he.status
		serr.Err = he.err
	}
	return serr
}
