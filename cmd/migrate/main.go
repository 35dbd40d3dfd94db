package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"classroom-access/internal/config"
	"classroom-access/internal/migrations"
	"classroom-access/pkg/logger"
	"classroom-access/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// migrate applies the embedded schema to the configured Postgres database.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if cfg.Blocklist.Store != config.StorePostgres {
		log.Info("nothing to migrate", "token_store", cfg.Blocklist.Store)
		return
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied")
}
