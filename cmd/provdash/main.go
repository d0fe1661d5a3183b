package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/modoterra/provdash/internal/buildinfo"
	"github.com/modoterra/provdash/pkg/api"
	"github.com/modoterra/provdash/pkg/config"
	"github.com/modoterra/provdash/pkg/core"
	"github.com/modoterra/provdash/pkg/dashboard"
	"github.com/modoterra/provdash/pkg/logging"
	"github.com/modoterra/provdash/pkg/logstream"
	"github.com/modoterra/provdash/pkg/route"
	"github.com/modoterra/provdash/pkg/session"
	"github.com/modoterra/provdash/pkg/table"
	tuimodel "github.com/modoterra/provdash/pkg/tui/model"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "provdash",
	Short: "Admin console for the provisioning backend",
	Long:  "provdash is a terminal console for browsing provisioning interfaces, dashboard stats and live backend logs.",
	RunE:  runTUI,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultFile()+")")
	pf.String("api", "", "API base URL, e.g. http://localhost:8000/api")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("session", "", "session file path")
	pf.Int("page-size", 0, "rows per page")

	rootCmd.Flags().StringVar(&startView, "view", "dashboard", "initial view: dashboard, interfaces, logs")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// env is everything a command needs to talk to the backend.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *session.Store
	client *api.Client
	closer io.Closer
}

func (e *env) Close() {
	if e.closer != nil {
		e.closer.Close()
	}
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Journal: cfg.Log.Journal,
	})
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.Session.Path, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}
	client, err := api.New(api.Options{
		BaseURL:            cfg.API.BaseURL,
		Timeout:            cfg.API.Timeout,
		InsecureSkipVerify: cfg.API.InsecureSkipVerify,
		Logger:             logger,
	}, store)
	if err != nil {
		closer.Close()
		return nil, err
	}
	logger.Debug("configured", "api", cfg.API.BaseURL, "config", cfg.Source, "session", cfg.Session.Path)
	return &env{cfg: cfg, logger: logger, store: store, client: client, closer: closer}, nil
}

func (e *env) streamOptions() logstream.Options {
	return logstream.Options{
		Reconnect: e.cfg.Logs.Reconnect,
		Backoff:   e.cfg.Logs.Backoff,
		Logger:    e.logger,
	}
}

func (e *env) statsQuery() api.StatsQuery {
	return api.StatsQuery{GroupBy: e.cfg.Stats.GroupBy, From: e.cfg.Stats.From, To: e.cfg.Stats.To}
}

// requireSession fails early instead of sending an unauthenticated request.
func (e *env) requireSession() error {
	if !e.store.Present() {
		return errors.New("not logged in (run provdash login)")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Root: TUI ---

var startView string

func runTUI(cmd *cobra.Command, _ []string) error {
	start, ok := route.Parse(startView)
	if !ok {
		return fmt.Errorf("unknown view %q", startView)
	}
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	app := tuimodel.New(e.client, tuimodel.Options{
		Start:     start,
		PageSize:  e.cfg.UI.PageSize,
		Refresh:   e.cfg.UI.Refresh,
		CacheTTL:  e.cfg.Cache.TTL,
		LogBuffer: e.cfg.Logs.Buffer,
		Stream:    e.streamOptions(),
		Stats:     e.statsQuery(),
		Logger:    e.logger,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
		return nil
	}
	return err
}

// --- Login / Logout / Status ---

var (
	loginUser string
	loginPass string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long:  "Signs in with username and password. Without -p the password is read from stdin.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		pass := loginPass
		if pass == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			pass = strings.TrimRight(line, "\r\n")
		}

		if _, err := e.client.Login(cmd.Context(), loginUser, pass); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", strings.TrimSpace(loginUser))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPass, "password", "p", "", "password (prompted from stdin if omitted)")
	loginCmd.MarkFlagRequired("username")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.client.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured backend and whether a session is stored",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api:     %s\n", e.client.BaseURL())
		if e.store.Present() {
			fmt.Fprintf(out, "session: present (%s)\n", e.store.Path())
		} else {
			fmt.Fprintln(out, "session: not logged in")
		}
		if e.cfg.Source != "" {
			fmt.Fprintf(out, "config:  %s\n", e.cfg.Source)
		}
		return nil
	},
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the backend is healthy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		if err := e.client.Health(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// --- Interfaces ---

var interfacesCmd = &cobra.Command{
	Use:     "interfaces",
	Aliases: []string{"if"},
	Short:   "Browse provisioning interface records",
}

var (
	listFilters = map[string]*string{}
	listPage    int
	listJSON    bool
	showJSON    bool
)

var interfacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of interface records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.requireSession(); err != nil {
			return err
		}

		raw := make(map[string]string, len(listFilters))
		for name, v := range listFilters {
			raw[name] = *v
		}
		q := api.InterfaceQuery{
			Filters: core.NewFilterSet(raw),
			Cursor:  core.PageCursor{Page: max(listPage, 1), Size: e.cfg.UI.PageSize},
		}
		page, err := e.client.ListInterfaces(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("list interfaces: %w", err)
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return writeJSON(out, page)
		}
		grid := table.Build(table.InterfaceColumns, page.Items)
		if grid.Empty() {
			fmt.Fprintln(out, "no interfaces match")
			return nil
		}
		fmt.Fprint(out, grid.Format())
		footer := fmt.Sprintf("page %d, %d rows", q.Cursor.Page, len(page.Items))
		if page.HasTotal {
			footer += fmt.Sprintf(" of %d", page.Total)
		}
		fmt.Fprintln(out, footer)
		return nil
	},
}

var interfacesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one interface record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid id %q", args[0])
		}
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.requireSession(); err != nil {
			return err
		}

		rec, err := e.client.GetInterface(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get interface %d: %w", id, err)
		}
		out := cmd.OutOrStdout()
		if showJSON {
			return writeJSON(out, rec)
		}
		labelW := 0
		for _, c := range table.InterfaceDetail {
			labelW = max(labelW, len(c.Header))
		}
		for _, c := range table.InterfaceDetail {
			fmt.Fprintf(out, "%-*s  %s\n", labelW, c.Header, rec.Field(c.Field))
		}
		return nil
	},
}

func init() {
	f := interfacesListCmd.Flags()
	for _, name := range core.FilterNames {
		listFilters[name] = f.String(strings.ReplaceAll(name, "_", "-"), "", "filter by "+name)
	}
	f.IntVar(&listPage, "page", 1, "page number")
	f.BoolVar(&listJSON, "json", false, "output as JSON")

	interfacesShowCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")

	interfacesCmd.AddCommand(interfacesListCmd)
	interfacesCmd.AddCommand(interfacesShowCmd)
}

// --- Stats ---

var (
	statsGroupBy string
	statsFrom    string
	statsTo      string
	statsJSON    bool
	statsPNG     string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated interface counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.requireSession(); err != nil {
			return err
		}

		q := e.statsQuery()
		if statsGroupBy != "" {
			q.GroupBy = statsGroupBy
		}
		if statsFrom != "" {
			q.From = statsFrom
		}
		if statsTo != "" {
			q.To = statsTo
		}
		buckets, err := e.client.Stats(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			return writeJSON(out, buckets)
		}
		stats := dashboard.Summarize(buckets)
		if statsPNG != "" {
			if err := writeChart(statsPNG, "interfaces by "+q.GroupBy, stats); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", statsPNG)
			return nil
		}
		if len(stats) == 0 {
			fmt.Fprintln(out, "no data for this period")
			return nil
		}
		fmt.Fprint(out, dashboard.FormatBars(stats, 40, lipgloss.NewStyle()))
		fmt.Fprintf(out, "total %d\n", dashboard.Total(stats))
		return nil
	},
}

func writeChart(path, title string, stats []dashboard.Stat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dashboard.WritePNG(f, title, stats); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}

func init() {
	f := statsCmd.Flags()
	f.StringVar(&statsGroupBy, "group-by", "", "group key: "+strings.Join(api.GroupByFields, ", "))
	f.StringVar(&statsFrom, "from", "", "start date (YYYY-MM-DD)")
	f.StringVar(&statsTo, "to", "", "end date (YYYY-MM-DD)")
	f.BoolVar(&statsJSON, "json", false, "output as JSON")
	f.StringVar(&statsPNG, "png", "", "write a bar chart PNG to this file")
}

// --- Logs ---

var logsLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail the live backend log stream",
	Long:  "Prints log lines as they arrive until interrupted, or until --lines lines have been received.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.requireSession(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var (
			seen    atomic.Int64
			mu      sync.Mutex
			lastErr error
		)
		out := cmd.OutOrStdout()
		onLine := func(l core.LogLine) {
			if logsLines > 0 && seen.Load() >= int64(logsLines) {
				return
			}
			fmt.Fprintln(out, l.Line)
			if n := seen.Add(1); logsLines > 0 && n >= int64(logsLines) {
				cancel()
			}
		}
		opts := e.streamOptions()
		opts.OnError = func(err error) {
			mu.Lock()
			lastErr = err
			mu.Unlock()
			e.logger.Warn("log stream", "err", err)
		}

		sub := logstream.Subscribe(ctx, e.client.StreamURL(), e.client.AuthHeader(), onLine, opts)
		defer sub.Close()
		<-sub.Done()

		if logsLines > 0 && seen.Load() >= int64(logsLines) {
			return nil
		}
		if cmd.Context().Err() != nil {
			return nil
		}
		mu.Lock()
		err = lastErr
		mu.Unlock()
		if err != nil {
			var serr *logstream.StreamError
			if errors.As(err, &serr) && serr.Unauthorized() {
				if cerr := e.client.Logout(); cerr != nil {
					e.logger.Warn("clear session", "err", cerr)
				}
				return fmt.Errorf("session expired: %w", err)
			}
			return fmt.Errorf("log stream: %w", err)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "exit after this many lines (0 = until interrupted)")
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the provdash config file",
}

var (
	configInitOutput string
	configInitForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		path := configInitOutput
		if path == "" {
			path = config.DefaultFile()
		}
		if err := config.Save(cfg, path, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) > 0 {
			path = args[0]
		}
		cfg, err := config.Load(path, nil)
		if err != nil {
			return err
		}
		name := cfg.Source
		if name == "" {
			name = "defaults"
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", name)
			return nil
		}
		stderr := cmd.ErrOrStderr()
		fmt.Fprintf(stderr, "%s: %d error(s)\n", name, len(errs))
		for _, e := range errs {
			fmt.Fprintf(stderr, "  • %s\n", e)
		}
		return fmt.Errorf("%s: invalid configuration", name)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if cfg.Source != "" {
			fmt.Fprintf(out, "# source: %s\n", cfg.Source)
		}
		_, err = out.Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "", "output file (default "+config.DefaultFile()+")")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "provdash %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
