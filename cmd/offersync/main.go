package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offersync/internal/app"
	"offersync/internal/config"
	"offersync/internal/database"
	"offersync/internal/domain"
	"offersync/internal/logging"
	"offersync/internal/metrics"
	"offersync/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	kv, closeKV, err := initStorage(cfg, &logger)
	if err != nil {
		return err
	}
	defer closeKV()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	application, err := app.New(cfg, app.Deps{KV: kv, Logger: &logger})
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return application.Stop(shutdownCtx)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, *baseLogger, closer, nil
}

func initStorage(cfg *config.Config, logger *zerolog.Logger) (domain.KVStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.Storage.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.Path).Msg("init database")
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil

	case config.StorageRedis:
		client := repository.NewRedisClient(cfg.Storage.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := repository.Ping(pingCtx, client); err != nil {
			logger.Warn().Err(err).Msg("redis connection failed, starting on memory fallback")
		} else {
			logger.Info().Str("addr", cfg.Storage.Redis.Address).Msg("redis connected")
		}
		kv := repository.NewFailoverStore(
			repository.NewRedisStore(client, cfg.Storage.Redis.KeyPrefix),
			repository.NewMemoryStore(),
			logging.Component(logger, "kv-failover"),
		)
		return kv, func() { _ = repository.Close(client) }, nil

	case config.StorageMemory:
		return repository.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
