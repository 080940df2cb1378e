// Command authd runs the authentication service: the engine, its HTTP
// surface, and the Redis-backed rate limiter.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	authcore "github.com/opsdesk/authcore"
	"github.com/opsdesk/authcore/config"
	"github.com/opsdesk/authcore/httpapi"
	"github.com/opsdesk/authcore/rate"
	"github.com/opsdesk/authcore/store/memstore"
	"github.com/opsdesk/authcore/store/pgstore"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, cleanup, err := newAccountProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engineCfg := cfg.Engine()
	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithAccountProvider(accounts).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	limiter := rate.New(redisClient, engineCfg.RateLimits)

	srv, err := httpapi.New(httpapi.Deps{
		Engine:  engine,
		Limiter: limiter,
		Logger:  logger,
		Addr:    cfg.HTTPServer.Address,
	})
	if err != nil {
		return err
	}

	srv.Start()
	logger.Info("authd started", "env", cfg.Env, "addr", cfg.HTTPServer.Address)

	<-ctx.Done()
	logger.Info("shutting down")
	return srv.Close(context.Background())
}

func newAccountProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (authcore.AccountProvider, func(), error) {
	if cfg.Store.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory account store")
		return memstore.New(), func() {}, nil
	}

	store, err := pgstore.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "local":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
