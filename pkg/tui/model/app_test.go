package model

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/modoterra/provdash/pkg/api"
	"github.com/modoterra/provdash/pkg/core"
	"github.com/modoterra/provdash/pkg/logstream"
	"github.com/modoterra/provdash/pkg/query"
	"github.com/modoterra/provdash/pkg/route"
	"github.com/modoterra/provdash/pkg/session"
)

type backend struct {
	srv        *httptest.Server
	listCalls  atomic.Int32
	statsCalls atomic.Int32
	lastQuery  atomic.Value
	// reject makes every token invalid, as after a server-side expiry.
	reject atomic.Bool
	// dropStream closes the log stream after its first line.
	dropStream atomic.Bool
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newBackend serves a fake provisioning API. Token "abc" is valid, any
// other token is rejected with 401. Listings return two rows on page 1 and
// one row on page 2.
func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	authed := func(r *http.Request) bool {
		return !b.reject.Load() && r.Header.Get("Authorization") == "Bearer abc"
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "admin" || body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "abc"})
	})
	r.Get("/api/provisioning/interfaces/stats", func(w http.ResponseWriter, r *http.Request) {
		b.statsCalls.Add(1)
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"group_key": "ACTIVE", "total": 5},
			{"group_key": "FAILED", "total": 2},
		})
	})
	r.Get("/api/provisioning/interfaces", func(w http.ResponseWriter, r *http.Request) {
		b.listCalls.Add(1)
		b.lastQuery.Store(r.URL.Query())
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		rows := []map[string]any{
			{"id": 1, "cellular_number": "5550001", "status": "ACTIVE"},
			{"id": 2, "cellular_number": "5550002", "status": "FAILED"},
		}
		if page > 1 {
			rows = rows[:1]
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rows})
	})
	r.Get("/api/provisioning/interfaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id": id, "cellular_number": "5550001", "status": "ACTIVE", "ne_service": "HLR",
		})
	})
	upgrader := websocket.Upgrader{}
	r.Get("/api/logs/stream", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte("provisioning started"))
		if b.dropStream.Load() {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func newTestApp(t *testing.T, b *backend, token string) (App, *session.Store) {
	t.Helper()
	store := session.NewMemory()
	if token != "" {
		if err := store.SetToken(token); err != nil {
			t.Fatal(err)
		}
	}
	client, err := api.New(api.Options{BaseURL: b.srv.URL + "/api", Logger: testLogger()}, store)
	if err != nil {
		t.Fatal(err)
	}
	a := New(client, Options{
		Start:    route.Dashboard,
		PageSize: 2,
		CacheTTL: time.Minute,
		Stream:   logstream.Options{Backoff: 10 * time.Millisecond},
		Logger:   testLogger(),
	})
	a = update(t, a, tea.WindowSizeMsg{Width: 120, Height: 40})
	return a, store
}

func update(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	m, _ := a.Update(msg)
	return m.(App)
}

// isAppMsg reports whether msg is one of the model's own messages, as
// opposed to spinner, cursor blink or window title commands.
func isAppMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case navigateMsg, loginMsg, statsMsg, pageMsg, detailMsg,
		logLineMsg, streamStateMsg, streamErrMsg, streamClosedMsg:
		return true
	}
	return false
}

// collect runs cmd and returns the messages it produced. Commands that do
// not return within the wait are abandoned.
func collect(cmd tea.Cmd, wait time.Duration) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			var out []tea.Msg
			for _, c := range batch {
				out = append(out, collect(c, wait)...)
			}
			return out
		}
		if msg == nil {
			return nil
		}
		return []tea.Msg{msg}
	case <-time.After(wait):
		return nil
	}
}

// settle feeds msg to the model and keeps running the resulting commands
// until no app messages remain. Log stream commands are left pending.
func settle(t *testing.T, a App, msg tea.Msg) App {
	t.Helper()
	queue := []tea.Msg{msg}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 50 {
			t.Fatal("model did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		m, cmd := a.Update(next)
		a = m.(App)
		for _, out := range collect(cmd, 200*time.Millisecond) {
			switch out.(type) {
			case logLineMsg, streamStateMsg, streamErrMsg, streamClosedMsg:
				continue
			}
			if isAppMsg(out) {
				queue = append(queue, out)
			}
		}
	}
	return a
}

// pump feeds stream messages produced by cmd back into the model until
// done reports true.
func pump(t *testing.T, a App, cmd tea.Cmd, done func(App) bool) App {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done(a) {
		if time.Now().After(deadline) {
			t.Fatal("stream did not reach the expected state")
		}
		var next tea.Cmd
		for _, msg := range collect(cmd, time.Second) {
			if !isAppMsg(msg) {
				continue
			}
			m, c := a.Update(msg)
			a = m.(App)
			if c != nil {
				next = c
			}
		}
		if next != nil {
			cmd = next
		}
	}
	return a
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStartWithoutTokenShowsLogin(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "")
	a = settle(t, a, navigateMsg{to: route.Dashboard})
	if a.route != route.Login {
		t.Fatalf("route: got %s, want login", a.route)
	}
	if got := b.statsCalls.Load(); got != 0 {
		t.Errorf("stats fetched without a session: %d calls", got)
	}
	if !strings.Contains(a.View(), "Sign in") {
		t.Error("login view not rendered")
	}
}

func TestLoginLandsOnDashboard(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "")
	a = settle(t, a, navigateMsg{to: route.Interfaces})

	a.login.Set("username", "admin")
	a.login.Set("password", "secret")
	a = settle(t, a, tea.KeyMsg{Type: tea.KeyEnter})

	if a.route != route.Dashboard {
		t.Fatalf("route: got %s, want dashboard", a.route)
	}
	if tok, _ := store.Token(); tok != "abc" {
		t.Errorf("token: got %q, want abc", tok)
	}
	if len(a.stats) != 2 {
		t.Fatalf("stats: got %d, want 2", len(a.stats))
	}
	if a.stats[0].Label != "ACTIVE" || a.stats[0].Value != 5 || a.stats[1].Label != "FAILED" || a.stats[1].Value != 2 {
		t.Errorf("stats: got %+v", a.stats)
	}
	view := a.View()
	for _, want := range []string{"ACTIVE", "FAILED", "█"} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard view missing %q", want)
		}
	}
}

func TestLoginFailureStaysOnLogin(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "")
	a = settle(t, a, navigateMsg{to: route.Dashboard})
	a.login.Set("username", "admin")
	a.login.Set("password", "wrong")
	a = settle(t, a, tea.KeyMsg{Type: tea.KeyEnter})

	if a.route != route.Login {
		t.Errorf("route: got %s, want login", a.route)
	}
	if store.Present() {
		t.Error("no token should be stored")
	}
	if !strings.HasPrefix(a.statusMsg, "login failed") {
		t.Errorf("status: got %q", a.statusMsg)
	}
}

func TestPagingAndFilters(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})
	if len(a.page.Items) != 2 {
		t.Fatalf("rows: got %d, want 2", len(a.page.Items))
	}

	a = settle(t, a, keyRunes("n"))
	if got := a.pager.Cursor().Page; got != 2 {
		t.Fatalf("page: got %d, want 2", got)
	}
	if len(a.page.Items) != 1 {
		t.Fatalf("rows on page 2: got %d, want 1", len(a.page.Items))
	}

	a = settle(t, a, keyRunes("n"))
	if got := a.pager.Cursor().Page; got != 2 {
		t.Errorf("next after a short page moved to %d", got)
	}

	a = settle(t, a, keyRunes("/"))
	if a.filter == nil {
		t.Fatal("filter bar did not open")
	}
	a.filter.Set("msisdn", "5550001")
	before := b.listCalls.Load()
	a = settle(t, a, tea.KeyMsg{Type: tea.KeyEnter})

	if got := a.pager.Cursor().Page; got != 1 {
		t.Errorf("page after filter: got %d, want 1", got)
	}
	if got := b.listCalls.Load() - before; got != 1 {
		t.Errorf("fetches after filter submit: got %d, want 1", got)
	}
	q, _ := b.lastQuery.Load().(url.Values)
	if q.Get("msisdn") != "5550001" || q.Get("page") != "1" {
		t.Errorf("query: got %v", q)
	}

	a = settle(t, a, keyRunes("p"))
	if got := a.pager.Cursor().Page; got != 1 {
		t.Errorf("prev on page 1 moved to %d", got)
	}
}

func TestCachedPageIsNotRefetched(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})
	a = settle(t, a, keyRunes("n"))
	a = settle(t, a, keyRunes("p"))
	if got := b.listCalls.Load(); got != 2 {
		t.Errorf("list calls: got %d, want 2", got)
	}
}

func TestStaleResultIsDropped(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})
	current := a.page

	stale := query.Key{Endpoint: api.PathInterfaces, Filters: "msisdn=999", Page: 1, PageSize: 2}
	a = update(t, a, pageMsg{query.Result[core.InterfacePage]{
		Key:  stale,
		Data: core.InterfacePage{Items: []core.Interface{{ID: 99}}},
	}})
	if len(a.page.Items) != len(current.Items) || a.page.Items[0].ID != current.Items[0].ID {
		t.Errorf("stale result replaced the current page: %+v", a.page.Items)
	}
}

func TestUnauthorizedReturnsToLogin(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "expired-token")
	a = settle(t, a, navigateMsg{to: route.Dashboard})

	if a.route != route.Login {
		t.Fatalf("route: got %s, want login", a.route)
	}
	if store.Present() {
		t.Error("session should be cleared after 401")
	}
	if a.statusMsg != "session expired" {
		t.Errorf("status: got %q", a.statusMsg)
	}
}

func TestErrorStateIsShown(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})
	a = update(t, a, pageMsg{query.Result[core.InterfacePage]{
		Key: a.pageKey,
		Err: &api.HTTPError{Status: 500, Body: `{"detail":"db down"}`},
	}})
	view := a.View()
	if !strings.Contains(view, "error") || !strings.Contains(view, "db down") {
		t.Errorf("error state not rendered:\n%s", view)
	}
}

func TestDetailOpens(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})
	a = settle(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	if !a.detailOpen || a.detail == nil {
		t.Fatal("detail not open")
	}
	if a.detail.NEService != "HLR" {
		t.Errorf("detail: got %+v", a.detail)
	}
	a = settle(t, a, tea.KeyMsg{Type: tea.KeyEsc})
	if a.detailOpen {
		t.Error("esc should close the detail")
	}
}

func TestLeavingLogsClosesStream(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	m, cmd := a.Update(navigateMsg{to: route.Logs})
	a = m.(App)
	sub := a.sub
	if sub == nil {
		t.Fatal("no subscription started")
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.logBuf.Len() == 0 && time.Now().Before(deadline) {
		for _, msg := range collect(cmd, time.Second) {
			if isAppMsg(msg) {
				m, cmd = a.Update(msg)
				a = m.(App)
			}
		}
	}
	if got := a.logBuf.Lines(); len(got) != 1 || got[0].Line != "provisioning started" {
		t.Fatalf("log lines: got %+v", got)
	}

	a = settle(t, a, keyRunes("1"))
	if a.sub != nil {
		t.Error("subscription should be released")
	}
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream still running after navigating away")
	}
	if a.logBuf.Len() != 0 {
		t.Error("buffer should be discarded with the stream")
	}
}

func TestQuitClosesStream(t *testing.T) {
	b := newBackend(t)
	a, _ := newTestApp(t, b, "abc")
	a = update(t, a, navigateMsg{to: route.Logs})
	sub := a.sub
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed on quit")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Dashboard})
	a = settle(t, a, keyRunes("L"))
	if store.Present() {
		t.Error("token still present after logout")
	}
	if a.route != route.Login {
		t.Errorf("route: got %s, want login", a.route)
	}
	if a.stats != nil {
		t.Error("stats from the old session should be dropped")
	}
}

func TestTabCyclesProtectedViews(t *testing.T) {
	tests := []struct {
		from, want route.Route
	}{
		{route.Dashboard, route.Interfaces},
		{route.Interfaces, route.Logs},
		{route.Logs, route.Dashboard},
		{route.Login, route.Dashboard},
	}
	for _, tt := range tests {
		if got := nextRoute(tt.from); got != tt.want {
			t.Errorf("nextRoute(%s) = %s, want %s", tt.from, got, tt.want)
		}
	}
}

func TestStaleUnauthorizedStillReturnsToLogin(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})

	// Page 2 goes out, then the user steps back to the cached page 1 before
	// it answers. The late answer is a 401.
	m, fetchPage2 := a.Update(keyRunes("n"))
	a = m.(App)
	a = settle(t, a, keyRunes("p"))
	if got := a.pager.Cursor().Page; got != 1 {
		t.Fatalf("page: got %d, want 1", got)
	}

	b.reject.Store(true)
	var late []tea.Msg
	for _, msg := range collect(fetchPage2, 5*time.Second) {
		if _, ok := msg.(pageMsg); ok {
			late = append(late, msg)
		}
	}
	if len(late) != 1 {
		t.Fatalf("expected one page result, got %d", len(late))
	}
	a = settle(t, a, late[0])

	if a.route != route.Login {
		t.Errorf("route: got %s, want login", a.route)
	}
	if store.Present() {
		t.Error("session should be cleared")
	}
	if a.statusMsg != "session expired" {
		t.Errorf("status: got %q", a.statusMsg)
	}
}

func TestUnauthorizedForReplacedSessionIsDropped(t *testing.T) {
	b := newBackend(t)
	a, store := newTestApp(t, b, "abc")
	a = settle(t, a, navigateMsg{to: route.Interfaces})

	old := query.Key{Endpoint: api.PathInterfaces, Page: 3, PageSize: 2}
	a = update(t, a, pageMsg{query.Result[core.InterfacePage]{
		Key: old,
		Err: &api.HTTPError{Status: 401, Body: `{"detail":"expired"}`},
	}})

	if a.route != route.Interfaces {
		t.Errorf("route: got %s, want interfaces", a.route)
	}
	if tok, _ := store.Token(); tok != "abc" {
		t.Errorf("token: got %q, want abc", tok)
	}
	if len(a.page.Items) != 2 {
		t.Errorf("current page should be kept, got %d rows", len(a.page.Items))
	}
}

func TestClosedStreamRestartsOnNextVisit(t *testing.T) {
	b := newBackend(t)
	b.dropStream.Store(true)
	a, _ := newTestApp(t, b, "abc")

	m, cmd := a.Update(navigateMsg{to: route.Logs})
	a = m.(App)
	first := a.sub
	if first == nil {
		t.Fatal("no subscription started")
	}
	a = pump(t, a, cmd, func(a App) bool { return a.sub == nil })

	if a.streamState != logstream.StateClosed {
		t.Errorf("state: got %s, want closed", a.streamState)
	}
	if a.logBuf.Len() != 1 {
		t.Errorf("lines from the closed stream should stay visible, got %d", a.logBuf.Len())
	}
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("first subscription still running")
	}

	b.dropStream.Store(false)
	a = update(t, a, keyRunes("3"))
	if a.sub == nil || a.sub == first {
		t.Fatal("revisiting logs should start a new subscription")
	}
	a.stopStream()
}
