package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom-access/internal/audit"
	"classroom-access/internal/auth"
	"classroom-access/internal/config"
	"classroom-access/internal/guard"
	"classroom-access/internal/httpapi"
	"classroom-access/internal/obs"
	"classroom-access/internal/rbac"
	"classroom-access/internal/session"
	"classroom-access/internal/tokenstore"
	"classroom-access/pkg/logger"
	"classroom-access/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app holds the wired dependencies handed to the route table.
type app struct {
	cfg         config.Config
	deps        guard.Deps
	httpOpts    guard.HTTPOptions
	handlers    httpapi.Handlers
	memberships rbac.MembershipSource
	registry    *prometheus.Registry
}

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	var (
		db  *sql.DB
		rdb *redis.Client
	)
	switch cfg.Blocklist.Store {
	case config.StorePostgres:
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
	case config.StoreRedis:
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	store, auditRepo, memberships := buildStores(cfg, db, rdb)
	auditSvc := audit.NewService(auditRepo, log)

	resolver, err := auth.NewResolver(authManager, store, auth.WithLogger(log))
	if err != nil {
		log.Error("resolver init failed", "err", err)
		os.Exit(1)
	}

	sessions := session.NewService(authManager, resolver, store,
		session.Retention{Access: cfg.Blocklist.AccessRetention, Refresh: cfg.Blocklist.RefreshRetention},
		session.WithAudit(auditSvc),
		session.WithMetrics(metrics),
		session.WithLogger(log),
	)

	sweeper := tokenstore.Sweeper{
		Store:            store,
		AccessRetention:  cfg.Blocklist.AccessRetention,
		RefreshRetention: cfg.Blocklist.RefreshRetention,
		Interval:         cfg.Blocklist.SweepInterval,
		Log:              log,
		Metrics:          metrics,
	}
	go sweeper.Run(rootCtx)

	// Denials are audited off the request path; the writer flushes its queue on shutdown.
	denials := audit.NewAsyncSink(auditSvc, audit.DefaultQueueSize, audit.DefaultWriteTimeout, metrics)
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		denials.Run(rootCtx)
	}()

	a := app{
		cfg: cfg,
		deps: guard.Deps{
			Resolver:  resolver,
			Audit:     denials,
			Metrics:   metrics,
			Log:       log,
			LoginURI:  cfg.Guard.LoginURI,
			VerifyURI: cfg.Guard.VerifyURI,
		},
		httpOpts: guard.HTTPOptions{Locations: auth.DefaultLocations(), APIPrefix: cfg.Guard.APIPrefix},
		handlers: httpapi.Handlers{
			Sessions:  sessions,
			Locations: auth.DefaultLocations(),
			DemoLogin: !cfg.IsProduction(),
		},
		memberships: memberships,
		registry:    reg,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, a)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "token_store", cfg.Blocklist.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	select {
	case <-auditDone:
	case <-shutdownCtx.Done():
		log.Warn("audit flush timed out")
	}
	log.Info("shutdown complete")
}

// buildStores picks the blocklist backend. Audit events and classroom
// membership need SQL, so non-Postgres deployments keep them in memory.
func buildStores(cfg config.Config, db *sql.DB, rdb *redis.Client) (tokenstore.Store, audit.Repository, rbac.MembershipSource) {
	switch cfg.Blocklist.Store {
	case config.StorePostgres:
		return tokenstore.NewPostgresStore(db), audit.NewPostgresRepo(db), rbac.NewPostgresSource(db)
	case config.StoreRedis:
		return tokenstore.NewRedisStore(rdb, fmt.Sprintf("blocklist:%s", cfg.App.Env)), audit.NewMemoryRepo(), rbac.NewMemorySource()
	default:
		return tokenstore.NewMemoryStore(), audit.NewMemoryRepo(), rbac.NewMemorySource()
	}
}
