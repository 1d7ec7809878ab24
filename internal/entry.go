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

	"github.com/starford/rulesync/internal/api"
	"github.com/starford/rulesync/internal/index"
	"github.com/starford/rulesync/internal/models"
	"github.com/starford/rulesync/internal/resolver"
	"github.com/starford/rulesync/internal/ruleservice"
	"github.com/starford/rulesync/internal/sse"
	"github.com/starford/rulesync/internal/storage"
	"github.com/starford/rulesync/internal/watcher"
)

// NewLogger returns a JSON logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Components holds the wired pieces shared by every command.
type Components struct {
	Config   *Config
	Logger   *slog.Logger
	Store    *storage.FS
	Resolver *resolver.Resolver
	Catalog  *index.DB // nil when the catalog is disabled
	Service  *ruleservice.Service
}

// Close releases the catalog.
func (c *Components) Close() error {
	if c.Catalog == nil {
		return nil
	}
	return c.Catalog.Close()
}

// Open wires the store, resolver, optional catalog and service from the
// configured options.
func Open(ctx context.Context, opts ...Option) (*Components, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app.open(ctx)
}

func (a *application) open(ctx context.Context) (*Components, error) {
	cfg := a.config
	logger := a.logger
	if logger == nil {
		logger = NewLogger(os.Stderr, cfg.App.LogLevel)
	}

	sharedDir, err := cfg.Rules.ResolvedSharedDir()
	if err != nil {
		return nil, fmt.Errorf("resolve shared dir: %w", err)
	}
	store, err := storage.NewFS(sharedDir, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &Components{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Resolver: resolver.New(cfg.Rules.MarkerPath),
	}

	svcOpts := []ruleservice.Option{ruleservice.WithLogger(logger)}
	if a.notifier != nil {
		svcOpts = append(svcOpts, ruleservice.WithNotifier(a.notifier))
	}
	if a.publish != nil {
		svcOpts = append(svcOpts, ruleservice.WithPublisher(a.publish))
	}

	if cfg.SQLite.Enabled() {
		db, err := index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		c.Catalog = db
		svcOpts = append(svcOpts, ruleservice.WithCatalog(db))
	}

	c.Service = ruleservice.New(store, c.Resolver, svcOpts...)

	if c.Catalog != nil {
		if err := c.Service.Reindex(ctx); err != nil {
			logger.Warn("initial catalog sync failed", slog.String("error", err.Error()))
		}
	}
	return c, nil
}

// Run starts watch mode: rule folders under the configured roots are synced
// into the shared store as they change, and the HTTP API is served when
// enabled. It returns when ctx is cancelled or a signal is received.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	if app.logger == nil {
		app.logger = NewLogger(os.Stdout, cfg.App.LogLevel)
		slog.SetDefault(app.logger)
	}
	logger := app.logger

	roots, err := cfg.Rules.ResolvedWatchRoots()
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("shared_dir", cfg.Rules.SharedDir),
		slog.String("marker_path", cfg.Rules.MarkerPath),
		slog.Any("watch_roots", roots),
		slog.String("watch_glob", cfg.Rules.Glob()),
		slog.Bool("http_enabled", cfg.App.HTTP.Enabled),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	publish := app.publish
	app.publish = func(ev models.SyncEvent) {
		broker.PublishRuleEvent(ev)
		if publish != nil {
			publish(ev)
		}
	}

	comps, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer comps.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher.
	g.Go(func() error {
		return watcher.Watch(gCtx, watcher.Options{
			Roots:    roots,
			Glob:     cfg.Rules.Glob(),
			Debounce: cfg.Rules.Debounce,
		}, logger, comps.Service.OnWatchedFileChanged)
	})

	if cfg.App.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: newHTTPHandler(comps.Service, cfg, broker),
		}

		// Start HTTP server.
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		// Shut the server down once the group is done.
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watcher stopped successfully")
	return nil
}

// newHTTPHandler builds the chi router with health checks, the rules API and
// the SSE stream.
func newHTTPHandler(svc *ruleservice.Service, cfg *Config, broker *sse.Broker) http.Handler {
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
		if _, err := svc.List(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, including the SSE stream at /api/events.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	return r
}
