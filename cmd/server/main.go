/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the school records engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, JSON file, RECORDS_* env, flags)
  2. Open the store (sqlite or postgres) and wire services
  3. Create API handler and router
  4. Start the billing scheduler and the redis listener (when enabled)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config       JSON config file (default: records.json, optional)
  -port         HTTP server port (default: 8080)
  -driver       sqlite or postgres
  -db           SQLite database path; ":memory:" for in-memory
  -postgres-url PostgreSQL connection string
  -redis-addr   Redis address for cross-instance invalidation
  -log-level    debug, info, warn, error
  -log-format   text or json
  -lang         Default language (en, id)
  -billing      Enable the monthly billing scheduler
  -demo         Mount the demo scenario endpoints

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and the listener
  4. Close store and redis connections

EXAMPLES:
  ./server -db="./data/records.db"
  ./server -db=":memory:" -demo
  RECORDS_JWT_SECRET=s3cret ./server -driver=postgres -postgres-url=postgres://...

SEE ALSO:
  - config/config.go: Settings and environment variables
  - app/app.go: Service wiring
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/records-engine/api"
	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/config"
)

func main() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "records.json", "JSON config file (optional)")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store and services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handler := api.NewHandler(a, api.IdentityFor(cfg.Server))
	router := api.NewRouter(handler, api.OptionsFor(cfg.Server))

	scheduler := a.Scheduler()
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		if err := a.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("invalidation_listener_stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server_starting",
			"port", cfg.Server.Port,
			"driver", cfg.Store.Driver,
			"redis", cfg.Redis.Enabled(),
			"billing", cfg.Billing.Enabled,
			"demo", cfg.Server.Demo,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_forced_shutdown", "error", err)
	}

	logger.Info("server_stopped")
}
