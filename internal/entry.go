// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/strata/internal/api"
	"github.com/starford/strata/internal/comments"
	"github.com/starford/strata/internal/fsevents"
	"github.com/starford/strata/internal/mcpserver"
	"github.com/starford/strata/internal/sources"
	"github.com/starford/strata/internal/sse"
	"github.com/starford/strata/internal/timeline"
	pkgconfig "github.com/starford/strata/pkg/config"
)

var errShutdown = errors.New("shutdown")

// stack is the wired timeline: sources, presenter and controller.
type stack struct {
	db         *comments.DB
	registry   *sources.Registry
	comments   *comments.Source
	fsevents   *fsevents.Source
	broker     *sse.Broker
	controller *timeline.Controller
}

func (s *stack) close() {
	s.controller.Close()
	s.broker.Close()
	if err := s.db.Close(); err != nil {
		slog.Warn("comments db close failed", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage, registers the sources and starts the controller.
func build(cfg *Config, logger *slog.Logger) (*stack, error) {
	db, err := comments.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init comments: %w", err)
	}

	reg := sources.New(sources.Options{
		RatePerSecond: cfg.Timeline.FetchRatePerSecond,
		Burst:         cfg.Timeline.FetchBurst,
		Logger:        logger,
	})

	st := &stack{db: db, registry: reg}
	st.comments = comments.NewSource(db, reg, logger)
	if err := reg.Register(st.comments); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.Watch.Enabled {
		src, err := fsevents.NewSource(cfg.Watch.Root, fsevents.NewJournal(cfg.Watch.Capacity), reg, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init fsevents: %w", err)
		}
		if err := reg.Register(src); err != nil {
			db.Close()
			return nil, err
		}
		st.fsevents = src
	}

	st.broker = sse.NewBroker(logger)
	st.controller = timeline.NewController(reg, st.broker, cfg.Timeline.Options(logger))
	st.controller.SetVisible(true)
	return st, nil
}

// background starts the watchers that feed the stack.
func (a *application) background(ctx context.Context, g *errgroup.Group, st *stack, logger *slog.Logger) {
	if st.fsevents != nil {
		g.Go(func() error {
			if err := st.fsevents.Watch(ctx); err != nil {
				logger.Warn("fsevents watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if a.configPath != "" {
		g.Go(func() error {
			return pkgconfig.Watch(ctx, a.configPath, 250*time.Millisecond,
				func() *Config { return NewDefaultConfig() },
				func(c *Config) { st.controller.SetExcludedSources(c.Timeline.ExcludedSources) },
				logger)
		})
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.String("watch_root", cfg.Watch.Root),
		slog.Any("excluded_sources", cfg.Timeline.ExcludedSources),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	h := api.NewHandler(st.controller, st.registry, st.comments)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, st.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := st.controller.Snapshot(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api (includes GET /api/events).
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)
	app.background(gCtx, g, st, logger)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the watchers.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the timeline tools over stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	st, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	srv := mcpserver.New(st.controller, st.registry, st.comments)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	app.background(gCtx, g, st, logger)

	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server starting on stdio")
		return srv.ServeStdio()
	})

	return g.Wait()
}
