// Command ashford-api serves the admin HTTP API (internal/api): rule and
// direction CRUD, action listing, and the approve/reject/undo endpoints.
// Bootstrap mirrors the teacher's cmd/server/main.go: load config, open the
// database, wire services, listen, then drain on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/dimfeld/ashford/internal/api"
	"github.com/dimfeld/ashford/internal/config"
	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/tracing"
)

func main() {
	configPath := os.Getenv("ASHFORD_CONFIG")
	if configPath == "" {
		configPath = "ashford.toml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logging.Error("api: failed to load config", "err", err.Error())
		os.Exit(1)
	}

	logging.Configure(cfg.Log.Level, cfg.Log.RedactPII)
	logging.Info("ashford-api: starting", "env", cfg.App.Env, "port", cfg.App.Port)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logging.Error("api: failed to open database", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logging.Error("api: failed to ping database", "err", err.Error())
		os.Exit(1)
	}
	logging.Info("api: connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logging.Warn("api: redis unavailable, priority-swap will fall back to PG advisory locks", "err", err.Error())
			redisClient = nil
		}
	}

	_, shutdownTracing, err := tracing.Init("ashford-api")
	if err != nil {
		logging.Error("api: failed to init tracing", "err", err.Error())
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	st := store.New(db)
	server := api.NewServer(st, redisClient, cfg.App.LockTTLSeconds, cfg.App.CORSOrigins)

	addr := ":" + strconv.Itoa(cfg.App.Port)
	go func() {
		logging.Info("api: listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logging.Error("api: server error", "err", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("api: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("api: graceful shutdown failed", "err", err.Error())
	}
	logging.Info("api: stopped")
}
