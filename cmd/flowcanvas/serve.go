package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcanvas/internal/engine"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/panel"
	"github.com/rendis/flowcanvas/internal/scheduler"
	"github.com/rendis/flowcanvas/internal/session"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/pkg/mcp"
)

// serveFlags are the serve overrides; only flags set on the command line
// take precedence over the loaded configuration.
type serveFlags struct {
	listenAddr string
	dbPath     string
	logLevel   string
	autosave   string
	versioned  bool
	panel      bool
	stdio      bool
}

func (f serveFlags) apply(cmd *cobra.Command, cfg *Config) {
	changed := cmd.Flags().Changed
	if changed("listen-addr") {
		cfg.ListenAddr = f.listenAddr
	}
	if changed("db-path") {
		cfg.DBPath = f.dbPath
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("autosave") {
		cfg.Autosave = f.autosave
	}
	if changed("versioned") {
		cfg.Versioned = f.versioned
	}
	if changed("panel") {
		cfg.Panel = f.panel
	}
	if catalogFlag != "" {
		cfg.Catalog = catalogFlag
	}
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server, the HTTP API and autosave",
		Long: `Serve editing sessions to agents and browsers.

  flowcanvas serve                  # MCP over stdio, MCP over HTTP at /mcp
  flowcanvas serve --panel          # also serve the JSON API and SSE streams
  flowcanvas serve --stdio=false    # HTTP only
  flowcanvas serve --autosave off   # disable scheduled saves

Send SIGHUP to reload settings.json: the panel and the log level change in
place, other fields need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			flags.apply(cmd, &cfg)
			reload := func() Config {
				next := loadConfig()
				flags.apply(cmd, &next)
				return next
			}
			return runServe(cmd.Context(), cfg, reload, flags.stdio)
		},
	}

	def := defaultConfig()
	cmd.Flags().StringVar(&flags.listenAddr, "listen-addr", def.ListenAddr, "TCP listen address")
	cmd.Flags().StringVar(&flags.dbPath, "db-path", def.DBPath, "workflow database path")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", def.LogLevel, "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&flags.autosave, "autosave", def.Autosave, `autosave schedule (cron expression or descriptor), "off" to disable`)
	cmd.Flags().BoolVar(&flags.versioned, "versioned", false, "record a workflow version on every autosave")
	cmd.Flags().BoolVar(&flags.panel, "panel", false, "serve the JSON API and SSE streams")
	cmd.Flags().BoolVar(&flags.stdio, "stdio", true, "serve MCP over stdin/stdout")
	return cmd
}

// server bundles the long-lived components of a running process.
type server struct {
	sessions *session.Manager
	store    store.Store
	hub      streaming.EventHub
	executor *engine.Executor
	mcp      *mcp.FlowcanvasServer
	logger   *slog.Logger
}

// handler builds the HTTP mux for cfg.
func (s *server) handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.mcp.HTTPHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Panel {
		p := panel.NewPanelServer(panel.PanelDeps{
			Sessions: s.sessions,
			Store:    s.store,
			Hub:      s.hub,
			Executor: s.executor,
			Logger:   s.logger,
		})
		mux.Handle("/", p.Handler())
	}
	return mux
}

func runServe(ctx context.Context, cfg Config, reload func() Config, stdio bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveled(os.Stderr, level)

	reg, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	hub := streaming.NewMemoryHub()
	sessions := session.NewManager(reg, session.Options{Hub: hub, Logger: logger})
	ex, err := engine.NewExecutor(engine.Options{
		Catalog: reg,
		Log:     store.NewEventLog(st),
		Hub:     hub,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	srv := &server{
		sessions: sessions,
		store:    st,
		hub:      hub,
		executor: ex,
		logger:   logger,
		mcp: mcp.NewFlowcanvasServer(mcp.FlowcanvasServerDeps{
			Sessions: sessions,
			Store:    st,
			Hub:      hub,
			Executor: ex,
			Version:  version,
			Logger:   logger,
		}),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.autosaveEnabled() {
		saver, err := scheduler.New(sessions, st, scheduler.Config{Spec: cfg.Autosave, Versioned: cfg.Versioned}, logger)
		if err != nil {
			return err
		}
		if err := saver.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := saver.Stop(); err != nil {
				logger.Warn("autosave stop failed", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.mcp.RunNotifications(ctx); err != nil {
			logger.Warn("mcp notifications stopped", "error", err)
		}
	}()

	swapper := newHandlerSwapper(srv.handler(cfg))
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: swapper, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("http listening", "addr", cfg.ListenAddr, "panel", cfg.Panel)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		logger.Warn("pidfile not written", "path", pidPath(), "error", err)
	} else {
		defer os.Remove(pidPath())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchReload(ctx, hup, cfg, reload, func(next Config, d configDiff) {
		if d.LogLevelChanged {
			level.Set(logging.ParseLevel(next.LogLevel))
		}
		if d.PanelChanged {
			swapper.Swap(srv.handler(next))
		}
		logger.Info("configuration reloaded", "panel", next.Panel, "log_level", next.LogLevel, "restart_needed", d.RestartNeeded)
	})

	if stdio {
		logger.Info("mcp stdio ready", "catalog_types", reg.Len())
		if err := srv.mcp.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mcp stdio stopped", "error", err)
		}
		stop()
	}
	<-ctx.Done()

	// Runs still in flight end cancelled before their events stop flowing.
	ex.Shutdown()

	// SSE streams return once their subscriptions close.
	hub.Close()
	logger.Info("shutting down", "dropped_events", hub.Dropped())

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// watchReload applies a fresh configuration on every signal until ctx ends.
func watchReload(ctx context.Context, sig <-chan os.Signal, cfg Config, reload func() Config, apply func(Config, configDiff)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			next := reload()
			apply(next, diffConfigs(cfg, next))
			cfg = next
		}
	}
}
