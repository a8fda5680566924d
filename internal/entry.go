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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/attune/internal/api"
	"github.com/starford/attune/internal/display"
	"github.com/starford/attune/internal/mcpserver"
	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/registry"
	"github.com/starford/attune/internal/rotationservice"
	"github.com/starford/attune/internal/scan"
	"github.com/starford/attune/internal/scheduler"
	"github.com/starford/attune/internal/sse"
	"github.com/starford/attune/internal/watch"
)

const shutdownTimeout = 10 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// stdout carries the MCP protocol in stdio mode.
	var out io.Writer = os.Stdout
	if app.mcp {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("registry_backend", cfg.Registry.Backend),
		slog.String("registry_path", cfg.Registry.Path),
		slog.Bool("mcp", app.mcp),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := openStore(cfg.Registry)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, err := registry.Open(ctx, store, scan.DirCounter{}, registry.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	if cfg.Registry.SeedFile != "" {
		inputs, err := registry.LoadSeed(cfg.Registry.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		n, err := reg.Seed(ctx, inputs)
		if err != nil {
			return fmt.Errorf("seed registry: %w", err)
		}
		if n > 0 {
			logger.Info("Registry seeded", slog.Int("targets", n))
		}
	}

	readings := reading.NewEngine(reading.WithHistorySize(cfg.Reading.HistorySize))

	managerOpts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithHeartbeat(cfg.Scheduler.Heartbeat),
		scheduler.WithDisplay(display.NewLocal(logger)),
	}
	var broker *sse.Broker
	if !app.mcp {
		broker = sse.NewBroker(cfg.SSE.Throttle)
		defer broker.Close()
		managerOpts = append(managerOpts, scheduler.WithObserver(broker))
	}
	mgr := scheduler.NewManager(reg, readings, managerOpts...)

	var svcOpts []rotationservice.Option
	if broker != nil {
		svcOpts = append(svcOpts, rotationservice.WithPublisher(func(eventType string, data any) {
			broker.Publish(sse.Event{Type: eventType, Data: data})
		}))
	}
	svc := rotationservice.New(reg, readings, mgr, cfg.RotationDefaults(), svcOpts...)

	if app.mcp {
		return serveMCP(svc, mgr, logger)
	}
	return serveHTTP(ctx, cfg, reg, svc, mgr, broker, logger)
}

func openStore(cfg RegistryConfig) (registry.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	switch cfg.Backend {
	case BackendSQLite:
		s, err := registry.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("init registry store: %w", err)
		}
		return s, nil
	default:
		s, err := registry.NewFileStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("init registry store: %w", err)
		}
		return s, nil
	}
}

func serveMCP(svc *rotationservice.Service, mgr *scheduler.Manager, logger *slog.Logger) error {
	logger.Info("Serving MCP over stdio")
	err := mcpserver.New(svc).ServeStdio()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if sErr := mgr.Shutdown(shutdownCtx); sErr != nil {
		logger.Error("Rotation shutdown error", slog.String("error", sErr.Error()))
	}
	return err
}

func serveHTTP(ctx context.Context, cfg *Config, reg *registry.Registry, svc *rotationservice.Service,
	mgr *scheduler.Manager, broker *sse.Broker, logger *slog.Logger) error {
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
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","targets":%d,"rotations":%d}`, reg.Len(), len(mgr.List()))
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
			opts := watch.Options{Debounce: cfg.Watch.Debounce, Resync: cfg.Watch.Resync}
			if err := watch.Run(gCtx, reg, logger, opts, svc.TargetRefreshed); err != nil {
				logger.Warn("locator watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Error("Rotation shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher exits once shutdown starts.
var errShutdown = errors.New("shutdown")
