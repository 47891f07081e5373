// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/system"
	"github.com/starford/raido/internal/taskservice"
	"github.com/starford/raido/internal/watcher"
)

// LoadIdentity loads the configured identity. A missing identity is not an
// error: the repository is then opened read-only and nil is returned.
func LoadIdentity(cfg *Config, logger *slog.Logger) (*identity.Identity, error) {
	dir, err := cfg.Identity.Directory()
	if err != nil {
		return nil, err
	}
	id, err := identity.LoadCurrent(dir)
	if errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("no identity found, changes cannot be recorded", slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !id.CanSign() {
		logger.Warn("identity has no secret key, changes cannot be recorded", slog.String("identity", id.String()))
	}
	return id, nil
}

// Open finds the repository above cfg.Repo.Path, opens it with the configured
// identity and binds the task service. Close the service's system when done.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...taskservice.Option) (*taskservice.Service, error) {
	root, err := changestore.FindRoot(cfg.Repo.Path)
	if err != nil {
		return nil, fmt.Errorf("no raido repository at or above %s (run init first): %w", cfg.Repo.Path, err)
	}
	id, err := LoadIdentity(cfg, logger)
	if err != nil {
		return nil, err
	}
	sysOpts := append(cfg.Repo.SystemOptions(), system.WithLogger(logger))
	if id != nil && id.CanSign() {
		sysOpts = append(sysOpts, system.WithIdentity(id))
	}
	sys, err := system.Initialize(root, sysOpts...)
	if err != nil {
		return nil, err
	}
	opts = append([]taskservice.Option{taskservice.WithLogger(logger)}, opts...)
	svc, err := taskservice.New(ctx, sys, opts...)
	if err != nil {
		sys.Close()
		return nil, err
	}
	return svc, nil
}

// Run serves the HTTP API until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("repo_path", cfg.Repo.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Events.BoardThrottle)
	defer broker.Close()

	svc, err := Open(ctx, cfg, logger, taskservice.WithNotifier(broker.PublishTaskEvent))
	if err != nil {
		return err
	}
	defer svc.System().Close()

	if _, err := svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, app.version)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, _, err := svc.System().Repository().Store().Head(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return watcher.Watch(gCtx, svc.System().Root(), svc, logger, broker.PublishTaskEvent)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Unblocks the SSE handlers and the watcher.
		broker.Close()
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
