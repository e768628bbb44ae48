/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults -> YAML -> .env/environment -> flags)
  2. Initialize logger
  3. Open the store and apply migrations
  4. Wire ledger services, budget watcher and HTTP router
  5. Start the recurring scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     YAML config file (default: $FINANCE_CONFIG)
  -port       HTTP server port
  -db-driver  sqlite | postgres
  -db         SQLite path or Postgres DSN. Use ":memory:" for in-memory SQLite

SUBCOMMANDS:
  token -owner <id>   Print a signed bearer token for local testing

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (an in-flight pass finishes)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  FINANCE_JWT_SECRET=dev ./server -db="./data/finance.db"

  # Run against Postgres
  ./server -db-driver=postgres -db="postgres://localhost/finance?sslmode=disable"

  # Get a token
  FINANCE_JWT_SECRET=dev ./server token -owner alice

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlstore: Database implementation
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

	"github.com/warp/finance-engine/api"
	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/config"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
	"github.com/warp/finance-engine/store/sqlstore"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	configPath := fs.String("config", "", "YAML config file")
	port := fs.Int("port", 0, "HTTP server port")
	driver := fs.String("db-driver", "", "Database driver (sqlite or postgres)")
	dsn := fs.String("db", "", "SQLite database path or Postgres DSN")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *driver != "" {
		cfg.DB.Driver = *driver
	}
	if *dsn != "" {
		cfg.DB.DSN = *dsn
	}
	return cfg, cfg.Validate()
}

func run() error {
	cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	// Initialize store
	store, err := sqlstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Budget notifications are stored for the owner and logged
	watcher := budget.NewWatcher(store, budget.Multi{
		budget.StoreNotifier{Store: store},
		budget.LogNotifier{Logger: log.With("component", "budget")},
	}, cfg.Budget.WarningPercent, log)

	handler := api.NewHandler(store, cfg.Currency.Default, cfg.Recurring.CatchUp, log, ledger.Hook(watcher))
	router := api.NewRouter(handler, api.RouterOptions{JWTSecret: []byte(cfg.Auth.JWTSecret)})

	scheduler := api.NewRecurringScheduler(handler.Recurring, log)
	scheduler.Enabled = cfg.Recurring.Enabled
	scheduler.CheckInterval = cfg.Recurring.Interval
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", "port", cfg.Port, "db_driver", cfg.DB.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info(ctx, "shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped")
	return nil
}

// printToken issues a development token for -owner.
func printToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner id to embed in the token")
	ttl := fs.Duration("ttl", 0, "Token lifetime (default: auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *owner == "" {
		return errors.New("token: -owner is required")
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("token: FINANCE_JWT_SECRET is not set")
	}
	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	tok, err := auth.GenerateToken(ledger.OwnerID(*owner), []byte(cfg.Auth.JWTSecret), lifetime)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
