package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tasks-api/internal/cache"
	"tasks-api/internal/config"
	"tasks-api/internal/database"
	"tasks-api/internal/logging"
	"tasks-api/internal/repositories"
	"tasks-api/internal/server"
	"tasks-api/internal/services"
	"tasks-api/internal/shipper"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := database.NewDatabasePool(poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repositories.NewTaskRepository(pool.DB)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	logs := shipper.New(shipper.Config{
		URL:     cfg.Shipper.URL,
		Token:   cfg.Shipper.Token,
		Timeout: cfg.Shipper.Timeout,
	})

	deps := server.Dependencies{
		Config:   cfg,
		Tasks:    services.NewTaskService(repo),
		Logs:     logs,
		Database: pool,
	}

	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(cacheConfig(cfg))
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			logging.Warn().Err(err).Str("addr", cfg.GetRedisAddr()).Msg("redis unreachable, serving from storage until it recovers")
		}
		deps.Tasks = services.NewCachedTaskService(deps.Tasks, redisCache, cfg.Redis.TaskTTL, cfg.Redis.ListTTL)
		deps.Cache = redisCache
	}

	srv := &http.Server{
		Handler:      server.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ln, err := net.Listen("tcp", cfg.GetServerAddr())
	if err != nil {
		return err
	}

	port := ln.Addr().(*net.TCPAddr).Port
	logging.Info().
		Str("addr", ln.Addr().String()).
		Int("port", port).
		Str("environment", cfg.Server.Environment).
		Msg("API listening")
	logs.Info("API started", shipper.Meta{"port": port})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logs.Close()
			return err
		}
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Err(err).Msg("forced shutdown")
	}
	logs.Close()

	logging.Info().Msg("server exited")
	return nil
}

func poolConfig(cfg *config.Config) *database.PoolConfig {
	level := logger.Warn
	if !cfg.IsProduction() && cfg.Logging.Level == "debug" {
		level = logger.Info
	}

	return &database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        level,
	}
}

func cacheConfig(cfg *config.Config) *cache.CacheConfig {
	cc := cache.DefaultCacheConfig()
	cc.Addr = cfg.GetRedisAddr()
	cc.Password = cfg.Redis.Password
	cc.DB = cfg.Redis.DB
	cc.PoolSize = cfg.Redis.PoolSize
	cc.MinIdleConns = cfg.Redis.MinIdleConns
	cc.MaxRetries = cfg.Redis.MaxRetries
	cc.DialTimeout = cfg.Redis.DialTimeout
	cc.ReadTimeout = cfg.Redis.ReadTimeout
	cc.WriteTimeout = cfg.Redis.WriteTimeout
	return cc
}
