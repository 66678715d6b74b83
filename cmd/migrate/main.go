package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/duty-ledger/config"
	"github.com/warp/duty-ledger/logger"
	"github.com/warp/duty-ledger/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Driver != config.DriverPostgres {
		log.Fatalf("Migrations apply to the postgres store only (store.driver=%s)", cfg.Store.Driver)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := postgres.Migrate(cfg.Store.Postgres.DSN(), zl); err != nil {
		zl.Fatal("migration failed", zap.Error(err))
	}
	zl.Info("migration completed")
}
