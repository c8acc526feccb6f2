/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance workflow server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Create API handler and load the seed document, if any
  5. Start the cutoff scheduler
  6. Start server with graceful shutdown

CONFIGURATION:
  APP_ENV                development | production (default: production)
  HTTP_PORT / -port      HTTP server port (default: 8080)
  DB_PATH / -db          SQLite database path (default: attendance.db)
                         Use ":memory:" for in-memory database
  SEED_FILE / -seed      Master document loaded at startup
  CUTOFF_CHECK_ENABLED   Run the periodic cutoff check (default: false)
  CUTOFF_CHECK_INTERVAL  How often to check (default: 1h)
  CORS_ORIGINS           Comma-separated allowed origins
  SHUTDOWN_TIMEOUT       Grace period for active requests (default: 30s)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the cutoff scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Close database connection

EXAMPLES:
  ./server -db=":memory:" -seed=./testdata/master.json
  APP_ENV=development CUTOFF_CHECK_ENABLED=true ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, logger.Named("api"))
	if cfg.SeedFile != "" {
		sum, err := handler.LoadSeedFile(context.Background(), cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed %s: %w", cfg.SeedFile, err)
		}
		logger.Info("seed loaded", zap.String("file", cfg.SeedFile), zap.Any("summary", sum))
	}

	handler.Scheduler.CheckInterval = cfg.CutoffCheckInterval
	handler.Scheduler.Enabled = cfg.CutoffCheckEnabled
	handler.Scheduler.Start()
	defer handler.Scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr()),
			zap.String("env", cfg.Environment),
			zap.String("db", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	handler.Scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
