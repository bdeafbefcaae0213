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

	"github.com/starford/yardmove/internal/api"
	"github.com/starford/yardmove/internal/classify"
	"github.com/starford/yardmove/internal/gateway"
	"github.com/starford/yardmove/internal/mcpserver"
	"github.com/starford/yardmove/internal/metrics"
	"github.com/starford/yardmove/internal/mygeotab"
	"github.com/starford/yardmove/internal/sse"
	"github.com/starford/yardmove/internal/zonestore"
)

var errConfigRequired = errors.New("config is required")

// backend is the opened zone gateway. store is set for the sandbox backend.
type backend struct {
	gw    gateway.Gateway
	store *zonestore.DB
}

func (b *backend) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// openBackend connects the configured gateway and applies the sandbox seed.
func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*backend, error) {
	if cfg.Gateway.Backend == BackendMyGeotab {
		mg := cfg.Gateway.MyGeotab
		return &backend{gw: mygeotab.New(mygeotab.Options{
			Server:    mg.Server,
			Database:  mg.Database,
			UserName:  mg.UserName,
			Password:  mg.Password,
			SessionID: mg.SessionID,
			Timeout:   mg.Timeout,
			Logger:    logger,
		})}, nil
	}

	db, err := zonestore.Open(cfg.Sandbox.Path)
	if err != nil {
		return nil, fmt.Errorf("init sandbox store: %w", err)
	}
	if cfg.Sandbox.SeedFile != "" {
		n, err := zonestore.SeedFile(ctx, db, cfg.Sandbox.SeedFile, logger)
		if err != nil {
			logger.Warn("initial seed failed", slog.String("error", err.Error()))
		} else {
			logger.Info("sandbox seeded", slog.Int("changed", n))
		}
	}
	return &backend{gw: db, store: db}, nil
}

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend", cfg.Gateway.Backend),
		slog.String("category", cfg.Category.Name),
		slog.String("log_level", cfg.App.LogLevel.String()))

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	broker := sse.NewBroker(cfg.Events.ListsThrottle)
	defer broker.Close()
	recorder := metrics.NewRecorder()

	sess := classify.NewSession(be.gw,
		classify.WithCategoryName(cfg.Category.Name),
		classify.WithNotifier(classify.Fanout(broker, recorder)),
		classify.WithLogger(logger),
	)

	// Initial load. The panel can retry through /api/zones/reload.
	if _, err := sess.LoadAll(ctx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(sess, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if !sess.Snapshot().Loaded {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", recorder.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-seed the sandbox and reload the lists when the seed file changes.
	if be.store != nil && cfg.Sandbox.Watch {
		g.Go(func() error {
			err := zonestore.WatchSeed(gCtx, be.store, cfg.Sandbox.SeedFile, logger, func(changed int) {
				logger.Info("seed file changed", slog.Int("changed", changed))
				if _, err := sess.LoadAll(gCtx); err != nil {
					logger.Warn("reload after seed failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("seed watcher stopped", slog.String("error", err.Error()))
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

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they do
// not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	sess := classify.NewSession(be.gw,
		classify.WithCategoryName(cfg.Category.Name),
		classify.WithLogger(logger),
	)

	logger.Info("MCP server starting", slog.String("backend", cfg.Gateway.Backend))
	return mcpserver.New(sess, app.version).ServeStdio()
}
