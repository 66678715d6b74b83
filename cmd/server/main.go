/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the duty ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env, then configuration (file + DUTY_* environment)
  2. Build the zap logger
  3. Open the store (SQLite by default, Postgres when configured)
  4. Wire metrics, the duty core and the report publisher
  5. Start the month rollover scheduler
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a yaml config file (default: ./config.yaml or ./config/config.yaml)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the rollover scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with the defaults (duty.db in the working directory)
  ./server

  # Run against Postgres
  DUTY_STORE_DRIVER=postgres DUTY_STORE_POSTGRES_HOST=db ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Every key and its default
  - rollover/scheduler.go: Month rollover
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/duty-ledger/api"
	"github.com/warp/duty-ledger/config"
	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/logger"
	"github.com/warp/duty-ledger/metrics"
	"github.com/warp/duty-ledger/report"
	"github.com/warp/duty-ledger/rollover"
	"github.com/warp/duty-ledger/store/postgres"
	"github.com/warp/duty-ledger/store/sqlite"
)

type backend interface {
	duty.TxStore
	api.Pinger
}

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()

	loc, err := cfg.Clock.Location()
	if err != nil {
		return err
	}
	clock := duty.Clock{Location: loc}

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg.Store, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	// Metrics
	var recorder *metrics.Recorder
	var observer duty.Observer
	if cfg.Metrics.Enabled {
		recorder, err = metrics.New(metrics.Options{})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		observer = recorder
	}

	core := duty.NewCore(store, clock, zl, observer)

	if recorder != nil {
		if roster, err := core.Sessions.ListActive(ctx); err == nil {
			recorder.SetOnDuty(len(roster))
		}
	}

	// Reports
	var names report.NameResolver
	deliverers := []report.Deliverer{report.DirectoryDeliverer{Dir: cfg.Report.Dir}}
	if cfg.Discord.Enabled() {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("create discord session: %w", err)
		}
		deliverers = append(deliverers, report.NewDiscordDeliverer(session, cfg.Discord.AdminChannelID))
		if cfg.Discord.GuildID != "" {
			names = report.NewDiscordNames(session, cfg.Discord.GuildID)
		}
		zl.Info("discord report delivery enabled", zap.String("channel_id", cfg.Discord.AdminChannelID))
	}
	publisher := report.NewPublisher(names, zl.Named("report"), deliverers...)

	// Rollover
	scheduler := rollover.NewScheduler(core.Queries, publisher, clock, zl.Named("rollover"))
	scheduler.Enabled = cfg.Rollover.Enabled
	scheduler.CheckInterval = cfg.Rollover.Interval
	scheduler.StartupDelay = cfg.Rollover.StartupDelay
	if recorder != nil {
		scheduler.Observer = recorder
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create handler and router
	handler := api.NewHandler(core, zl.Named("http"))
	handler.Rollover = scheduler
	handler.Names = names
	handler.Health = store

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CORS.AllowOrigins,
		Metrics:        recorder,
		MetricsPath:    cfg.Metrics.Path,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	zl.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, zl *zap.Logger) (backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		dsn := cfg.Postgres.DSN()
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(dsn, zl.Named("migrate")); err != nil {
				return nil, nil, err
			}
		}
		store, err := postgres.Open(ctx, dsn, postgres.PoolConfig{
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		}, zl.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				zl.Warn("close sqlite", zap.Error(err))
			}
		}, nil
	}
}
