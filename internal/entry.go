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

	"github.com/starford/collate/internal/api"
	"github.com/starford/collate/internal/mcpserver"
	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/sse"
	"github.com/starford/collate/internal/watcher"
	"github.com/starford/collate/internal/workspace"
)

const progressThrottle = 250 * time.Millisecond

func (a *application) newService(logger *slog.Logger, extra ...workspace.Option) *workspace.Service {
	cfg := a.config
	opts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithRespectGitignore(cfg.Source.RespectGitignore),
		workspace.WithCoordinatorOptions(merge.WithTeardownTimeout(cfg.Merge.TeardownTimeout)),
	}
	return workspace.NewService(cfg.Output.Dir, append(opts, extra...)...)
}

func (a *application) loadSource(ctx context.Context, svc *workspace.Service, logger *slog.Logger) {
	root := a.config.Source.Root
	if root == "" {
		return
	}
	report, err := svc.Scan(ctx, root)
	if err != nil {
		logger.Warn("initial scan failed", slog.String("root", root), slog.String("error", err.Error()))
		return
	}
	for _, d := range report.Diagnostics {
		logger.Warn("initial scan", slog.String("diagnostic", d))
	}
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_root", cfg.Source.Root),
		slog.String("output_dir", cfg.Output.Dir),
		slog.Bool("watch", cfg.Source.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SSE broker.
	broker := sse.NewBroker(progressThrottle)
	defer broker.Close()

	svc := app.newService(logger, workspace.WithNotifier(broker))
	defer svc.Close()

	app.loadSource(ctx, svc, logger)

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := os.Stat(cfg.Output.Dir); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"output directory unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Rescan the source directory on change, keeping the selection.
	if cfg.Source.Watch && cfg.Source.Root != "" {
		g.Go(func() error {
			err := watcher.Watch(gCtx, cfg.Source.Root, cfg.Source.Debounce, logger, func() {
				if err := svc.Rescan(gCtx); err != nil {
					logger.Warn("rescan failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut down once a signal arrives or another goroutine fails.
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

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	// stdout carries the protocol, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(app.stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc := app.newService(logger)
	defer svc.Close()
	app.loadSource(ctx, svc, logger)

	logger.Info("MCP server starting", slog.String("version", app.version))
	if err := mcpserver.New(svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
