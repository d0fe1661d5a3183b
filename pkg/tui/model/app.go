package model

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	btable "github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/provdash/pkg/api"
	"github.com/modoterra/provdash/pkg/core"
	"github.com/modoterra/provdash/pkg/dashboard"
	"github.com/modoterra/provdash/pkg/logstream"
	"github.com/modoterra/provdash/pkg/pager"
	"github.com/modoterra/provdash/pkg/query"
	"github.com/modoterra/provdash/pkg/route"
	"github.com/modoterra/provdash/pkg/table"
)

// Options configures the TUI.
type Options struct {
	Start     route.Route
	PageSize  int
	Refresh   time.Duration
	CacheTTL  time.Duration
	LogBuffer int
	Stream    logstream.Options
	Stats     api.StatsQuery
	Logger    *slog.Logger
}

// App is the root Bubble Tea model.
type App struct {
	client *api.Client
	opts   Options
	logger *slog.Logger

	route route.Route

	// Login
	login     *FormModel
	loggingIn bool

	// Dashboard
	statsCache   *query.Cache[[]core.StatBucket]
	statsKey     query.Key
	stats        []dashboard.Stat
	statsErr     error
	statsLoading bool
	statsAt      time.Time

	// Interfaces
	pageCache     *query.Cache[core.InterfacePage]
	pager         *pager.Controller
	pageKey       query.Key
	page          core.InterfacePage
	pageErr       error
	pageLoading   bool
	grid          btable.Model
	filter        *FormModel
	detailOpen    bool
	detailID      int64
	detail        *core.Interface
	detailErr     error
	detailLoading bool

	// Logs
	logBuf       *logstream.Buffer
	sub          *logstream.Subscription
	streamCancel context.CancelFunc
	streamCh     chan tea.Msg
	streamID     int64
	streamState  logstream.State
	streamErr    error
	logView      viewport.Model
	logPaused    bool

	// UI
	spinner   spinner.Model
	help      help.Model
	showHelp  bool
	width     int
	height    int
	statusMsg string
}

// New creates the TUI model. Nothing touches the network until Init.
func New(client *api.Client, opts Options) App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = pager.DefaultPageSize
	}

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	grid := btable.New(btable.WithFocused(true), btable.WithHeight(opts.PageSize))
	styles := btable.DefaultStyles()
	styles.Selected = selectedStyle
	styles.Header = styles.Header.Foreground(lipglossTitle).Bold(true)
	grid.SetStyles(styles)

	return App{
		client:      client,
		opts:        opts,
		logger:      opts.Logger,
		route:       route.Login,
		statsCache:  query.New[[]core.StatBucket](opts.CacheTTL, opts.Logger),
		pageCache:   query.New[core.InterfacePage](opts.CacheTTL, opts.Logger),
		pager:       pager.New(api.PathInterfaces, opts.PageSize),
		grid:        grid,
		logBuf:      logstream.NewBuffer(opts.LogBuffer),
		streamState: logstream.StateClosed,
		logView:     viewport.New(80, 20),
		spinner:     spin,
		help:        help.New(),
	}
}

// Init lands on the start route, subject to the route guard.
func (a App) Init() tea.Cmd {
	start := a.opts.Start
	return tea.Batch(
		func() tea.Msg { return navigateMsg{to: start} },
		tea.SetWindowTitle("provdash"),
		tickCmd(a.opts.Refresh),
	)
}

// navigateMsg requests a route change.
type navigateMsg struct{ to route.Route }

// tickMsg triggers the dashboard auto refresh.
type tickMsg time.Time

// loginMsg carries the outcome of a login attempt.
type loginMsg struct{ err error }

type statsMsg struct {
	query.Result[[]core.StatBucket]
}

type pageMsg struct {
	query.Result[core.InterfacePage]
}

type detailMsg struct {
	id  int64
	rec *core.Interface
	err error
}

// Stream messages carry the id of the subscription that produced them so
// messages from a closed subscription can be dropped.
type (
	logLineMsg struct {
		streamID int64
		line     core.LogLine
	}
	streamStateMsg struct {
		streamID int64
		state    logstream.State
	}
	streamErrMsg struct {
		streamID int64
		err      error
	}
	streamClosedMsg struct{ streamID int64 }
)

func tickCmd(every time.Duration) tea.Cmd {
	if every <= 0 {
		return nil
	}
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loginCmd(client *api.Client, username, password string) tea.Cmd {
	return func() tea.Msg {
		_, err := client.Login(context.Background(), username, password)
		return loginMsg{err: err}
	}
}

func fetchStatsCmd(client *api.Client, cache *query.Cache[[]core.StatBucket], key query.Key, q api.StatsQuery) tea.Cmd {
	return func() tea.Msg {
		return statsMsg{cache.Load(context.Background(), key, func(ctx context.Context) ([]core.StatBucket, error) {
			return client.Stats(ctx, q)
		})}
	}
}

func fetchPageCmd(client *api.Client, cache *query.Cache[core.InterfacePage], key query.Key, q api.InterfaceQuery) tea.Cmd {
	return func() tea.Msg {
		return pageMsg{cache.Load(context.Background(), key, func(ctx context.Context) (core.InterfacePage, error) {
			return client.ListInterfaces(ctx, q)
		})}
	}
}

func fetchDetailCmd(client *api.Client, id int64) tea.Cmd {
	return func() tea.Msg {
		rec, err := client.GetInterface(context.Background(), id)
		return detailMsg{id: id, rec: rec, err: err}
	}
}

func waitForStreamCmd(id int64, ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamClosedMsg{streamID: id}
		}
		return msg
	}
}

// statsKeyFor identifies a stats query in the cache.
func statsKeyFor(q api.StatsQuery) query.Key {
	return query.Key{Endpoint: api.PathStats, Filters: q.Values().Encode()}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.layout()
		return a, nil

	case navigateMsg:
		return a.navigate(msg.to)

	case tickMsg:
		cmd := tickCmd(a.opts.Refresh)
		if a.route == route.Dashboard && !a.statsLoading {
			a.statsCache.Invalidate()
			var load tea.Cmd
			a, load = a.loadStats()
			return a, tea.Batch(cmd, load)
		}
		return a, cmd

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case loginMsg:
		a.loggingIn = false
		if msg.err != nil {
			a.statusMsg = "login failed: " + errText(msg.err)
			return a, nil
		}
		a.statsCache.Invalidate()
		a.pageCache.Invalidate()
		a.login = nil
		a.statusMsg = "signed in"
		return a.navigate(route.Root)

	case statsMsg:
		if api.IsUnauthorized(msg.Err) {
			return a.unauthorized()
		}
		if !msg.Current(a.statsKey) {
			a.logger.Debug("dropping stale result", "key", msg.Key.String())
			return a, nil
		}
		a.statsLoading = false
		if msg.Err != nil {
			a.stats = nil
			a.statsErr = msg.Err
			a.statusMsg = "stats: " + errText(msg.Err)
			return a, nil
		}
		a.stats = dashboard.Summarize(msg.Data)
		a.statsErr = nil
		a.statsAt = time.Now()
		return a, nil

	case pageMsg:
		if api.IsUnauthorized(msg.Err) {
			return a.unauthorized()
		}
		if !msg.Current(a.pageKey) {
			a.logger.Debug("dropping stale result", "key", msg.Key.String())
			return a, nil
		}
		a.pageLoading = false
		if msg.Err != nil {
			a.page = core.InterfacePage{}
			a.pageErr = msg.Err
			a.grid.SetRows(nil)
			a.statusMsg = "interfaces: " + errText(msg.Err)
			return a, nil
		}
		a = a.applyPage(msg.Key, msg.Data)
		return a, nil

	case detailMsg:
		if api.IsUnauthorized(msg.err) {
			return a.unauthorized()
		}
		if !a.detailOpen || msg.id != a.detailID {
			return a, nil
		}
		a.detailLoading = false
		if msg.err != nil {
			a.detail = nil
			a.detailErr = msg.err
			return a, nil
		}
		a.detail = msg.rec
		a.detailErr = nil
		return a, nil

	case logLineMsg:
		if msg.streamID != a.streamID {
			return a, nil
		}
		a.logBuf.Append(msg.line)
		if !a.logPaused {
			a.refreshLogView()
		}
		return a, waitForStreamCmd(a.streamID, a.streamCh)

	case streamStateMsg:
		if msg.streamID != a.streamID {
			return a, nil
		}
		a.streamState = msg.state
		if msg.state == logstream.StateOpen {
			a.streamErr = nil
		}
		cmds := []tea.Cmd{waitForStreamCmd(a.streamID, a.streamCh)}
		if a.busy() {
			cmds = append(cmds, a.spinner.Tick)
		}
		return a, tea.Batch(cmds...)

	case streamErrMsg:
		if msg.streamID != a.streamID {
			return a, nil
		}
		var serr *logstream.StreamError
		if errors.As(msg.err, &serr) && serr.Unauthorized() {
			return a.expireSession()
		}
		a.streamErr = msg.err
		a.statusMsg = "log stream: " + errText(msg.err)
		return a, waitForStreamCmd(a.streamID, a.streamCh)

	case streamClosedMsg:
		if msg.streamID != a.streamID {
			return a, nil
		}
		// The subscription is finished; keep its lines on screen but let the
		// next visit to Logs start a new one.
		if a.streamCancel != nil {
			a.streamCancel()
		}
		a.sub = nil
		a.streamCancel = nil
		a.streamCh = nil
		a.streamState = logstream.StateClosed
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a.quit()
	}

	if a.route == route.Login {
		return a.handleLoginKey(msg)
	}

	// Filter bar
	if a.filter != nil {
		res, cmd := a.filter.HandleKey(msg)
		switch res {
		case FormSubmitted:
			values := a.filter.Values()
			a.filter = nil
			if a.pager.SubmitFilters(values) {
				a.statusMsg = "filters applied"
			}
			return a.loadPage()
		case FormCancelled:
			a.filter = nil
			return a, nil
		}
		return a, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a.quit()
	case key.Matches(msg, keys.Help):
		a.showHelp = !a.showHelp
		a.help.ShowAll = a.showHelp
		return a, nil
	case key.Matches(msg, keys.Logout):
		return a.logout()
	case key.Matches(msg, keys.Dashboard):
		return a.navigate(route.Dashboard)
	case key.Matches(msg, keys.Interfaces):
		return a.navigate(route.Interfaces)
	case key.Matches(msg, keys.Logs):
		return a.navigate(route.Logs)
	case key.Matches(msg, keys.Tab):
		return a.navigate(nextRoute(a.route))
	}

	switch a.route {
	case route.Dashboard:
		if key.Matches(msg, keys.Refresh) {
			a.statsCache.Invalidate()
			return a.loadStats()
		}
	case route.Interfaces:
		return a.handleInterfacesKey(msg)
	case route.Logs:
		return a.handleLogsKey(msg)
	}
	return a, nil
}

func (a App) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.login == nil {
		a.login = newLoginForm()
	}
	res, cmd := a.login.HandleKey(msg)
	switch res {
	case FormCancelled:
		return a.quit()
	case FormSubmitted:
		if a.loggingIn {
			return a, nil
		}
		v := a.login.Values()
		user, pass := strings.TrimSpace(v["username"]), v["password"]
		if len(user) < 3 || len(pass) < 3 {
			a.statusMsg = "username and password must be at least 3 characters"
			return a, nil
		}
		a.loggingIn = true
		a.statusMsg = "signing in..."
		return a, tea.Batch(loginCmd(a.client, user, pass), a.spinner.Tick)
	}
	return a, cmd
}

func (a App) handleInterfacesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.detailOpen {
		switch {
		case key.Matches(msg, keys.Back):
			a.detailOpen = false
			a.detail = nil
			a.detailErr = nil
			a.detailLoading = false
		case key.Matches(msg, keys.Refresh):
			a.detailLoading = true
			return a, tea.Batch(fetchDetailCmd(a.client, a.detailID), a.spinner.Tick)
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, keys.Filter):
		a.filter = newFilterForm(core.FilterNames, a.pager.Filters())
		return a, textinput.Blink
	case key.Matches(msg, keys.Next):
		if !a.pager.NextPage() {
			a.statusMsg = "no next page"
			return a, nil
		}
		return a.loadPage()
	case key.Matches(msg, keys.Prev):
		if !a.pager.PrevPage() {
			a.statusMsg = "already on the first page"
			return a, nil
		}
		return a.loadPage()
	case key.Matches(msg, keys.Refresh):
		a.pageCache.Invalidate()
		return a.loadPage()
	case key.Matches(msg, keys.Open):
		idx := a.grid.Cursor()
		if idx < 0 || idx >= len(a.page.Items) {
			return a, nil
		}
		a.detailOpen = true
		a.detailID = a.page.Items[idx].ID
		rec := a.page.Items[idx]
		a.detail = &rec
		a.detailErr = nil
		a.detailLoading = true
		return a, tea.Batch(fetchDetailCmd(a.client, a.detailID), a.spinner.Tick)
	}

	var cmd tea.Cmd
	a.grid, cmd = a.grid.Update(msg)
	return a, cmd
}

func (a App) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Pause) {
		a.logPaused = !a.logPaused
		if !a.logPaused {
			a.refreshLogView()
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.logView, cmd = a.logView.Update(msg)
	return a, cmd
}

// navigate runs the route guard and starts whatever the landing view needs.
// Leaving the logs view always closes its subscription.
func (a App) navigate(requested route.Route) (App, tea.Cmd) {
	target := route.Resolve(requested, a.client.Tokens())
	if target != route.Logs {
		a = a.stopStream()
	}
	a.route = target
	a.filter = nil
	a.detailOpen = false
	a.detailLoading = false

	switch target {
	case route.Login:
		a.login = newLoginForm()
		return a, textinput.Blink
	case route.Dashboard:
		return a.loadStats()
	case route.Interfaces:
		return a.loadPage()
	case route.Logs:
		if a.sub != nil {
			return a, nil
		}
		return a.startStream()
	}
	return a, nil
}

func nextRoute(r route.Route) route.Route {
	for i, p := range route.Protected {
		if p == r {
			return route.Protected[(i+1)%len(route.Protected)]
		}
	}
	return route.Root
}

func (a App) loadStats() (App, tea.Cmd) {
	q := a.opts.Stats
	key := statsKeyFor(q)
	a.statsKey = key
	if data, ok := a.statsCache.Peek(key); ok {
		a.stats = dashboard.Summarize(data)
		a.statsErr = nil
		a.statsLoading = false
		return a, nil
	}
	a.statsLoading = true
	return a, tea.Batch(fetchStatsCmd(a.client, a.statsCache, key, q), a.spinner.Tick)
}

func (a App) loadPage() (App, tea.Cmd) {
	key := a.pager.Key()
	a.pageKey = key
	if data, ok := a.pageCache.Peek(key); ok {
		return a.applyPage(key, data), nil
	}
	a.pageLoading = true
	q := api.InterfaceQuery{Filters: a.pager.Filters(), Cursor: a.pager.Cursor()}
	return a, tea.Batch(fetchPageCmd(a.client, a.pageCache, key, q), a.spinner.Tick)
}

func (a App) applyPage(key query.Key, page core.InterfacePage) App {
	a.pager.Observe(key, len(page.Items))
	a.page = page
	a.pageErr = nil
	a.pageLoading = false

	g := table.Build(table.InterfaceColumns, page.Items)
	widths := g.Widths()
	cols := make([]btable.Column, len(g.Headers))
	for i, h := range g.Headers {
		cols[i] = btable.Column{Title: h, Width: min(widths[i], maxColumnWidth)}
	}
	rows := make([]btable.Row, len(g.Rows))
	for i, r := range g.Rows {
		rows[i] = btable.Row(r)
	}
	a.grid.SetRows(nil)
	a.grid.SetColumns(cols)
	a.grid.SetRows(rows)
	a.grid.SetCursor(0)
	return a
}

func (a App) startStream() (App, tea.Cmd) {
	a = a.stopStream()
	id := a.streamID
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan tea.Msg, streamQueue)
	send := func(m tea.Msg) {
		select {
		case ch <- m:
		case <-ctx.Done():
		}
	}

	opts := a.opts.Stream
	opts.Logger = a.logger
	opts.OnError = func(err error) { send(streamErrMsg{streamID: id, err: err}) }
	opts.OnState = func(s logstream.State) { send(streamStateMsg{streamID: id, state: s}) }
	onLine := func(l core.LogLine) { send(logLineMsg{streamID: id, line: l}) }

	sub := logstream.Subscribe(ctx, a.client.StreamURL(), a.client.AuthHeader(), onLine, opts)
	go func() {
		<-sub.Done()
		close(ch)
	}()

	a.sub = sub
	a.streamCancel = cancel
	a.streamCh = ch
	a.streamState = logstream.StateConnecting
	a.streamErr = nil
	a.logBuf = logstream.NewBuffer(a.opts.LogBuffer)
	a.logPaused = false
	a.refreshLogView()
	return a, tea.Batch(waitForStreamCmd(id, ch), a.spinner.Tick)
}

// stopStream closes the live subscription, if any, and discards its buffer.
func (a App) stopStream() App {
	if a.sub != nil {
		a.sub.Close()
		a.streamCancel()
		a.logger.Debug("log stream closed", "stream", a.streamID)
	}
	a.sub = nil
	a.streamCancel = nil
	a.streamCh = nil
	a.streamID++
	a.streamState = logstream.StateClosed
	a.logBuf = logstream.NewBuffer(a.opts.LogBuffer)
	return a
}

func (a *App) refreshLogView() {
	lines := a.logBuf.Lines()
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Line)
	}
	a.logView.SetContent(b.String())
	a.logView.GotoBottom()
}

func (a App) logout() (tea.Model, tea.Cmd) {
	if err := a.client.Logout(); err != nil {
		a.statusMsg = "logout: " + err.Error()
		return a, nil
	}
	a = a.resetSessionState()
	a.statusMsg = "logged out"
	return a.navigate(route.Login)
}

// unauthorized handles a 401 from any fetch, current or stale. The client
// has already cleared the session that sent the request; if a token is
// still stored it belongs to a newer login and the result is dropped.
func (a App) unauthorized() (App, tea.Cmd) {
	if a.route == route.Login {
		return a, nil
	}
	if _, ok := a.client.Tokens().Token(); ok {
		a.logger.Debug("dropping 401 for a replaced session")
		return a, nil
	}
	return a.expireSession()
}

// expireSession handles a 401: the token is gone, cached data belongs to
// the old session, and the user has to sign in again.
func (a App) expireSession() (App, tea.Cmd) {
	if err := a.client.Logout(); err != nil {
		a.logger.Warn("clear session", "err", err)
	}
	a = a.resetSessionState()
	a.statusMsg = "session expired"
	return a.navigate(route.Login)
}

func (a App) resetSessionState() App {
	a = a.stopStream()
	a.statsCache.Invalidate()
	a.pageCache.Invalidate()
	a.statsKey = query.Key{}
	a.pageKey = query.Key{}
	a.stats = nil
	a.statsErr = nil
	a.statsLoading = false
	a.page = core.InterfacePage{}
	a.pageErr = nil
	a.pageLoading = false
	a.pager = pager.New(api.PathInterfaces, a.opts.PageSize)
	a.grid.SetRows(nil)
	a.detailOpen = false
	a.detail = nil
	return a
}

func (a App) quit() (tea.Model, tea.Cmd) {
	a = a.stopStream()
	return a, tea.Quit
}

func (a App) busy() bool {
	return a.loggingIn || a.statsLoading || a.pageLoading || a.detailLoading ||
		(a.sub != nil && (a.streamState == logstream.StateConnecting || a.streamState == logstream.StateRetrying))
}

func errText(err error) string {
	var (
		herr *api.HTTPError
		nerr *api.NetworkError
		derr *api.DecodeError
	)
	switch {
	case errors.As(err, &herr):
		if d := herr.Detail(); d != "" {
			return "HTTP " + strconv.Itoa(herr.Status) + ": " + d
		}
		return "HTTP " + strconv.Itoa(herr.Status)
	case errors.As(err, &nerr):
		return "backend unreachable"
	case errors.As(err, &derr):
		return "unexpected response from backend"
	case errors.Is(err, api.ErrNotFound):
		return "not found"
	default:
		return err.Error()
	}
}
