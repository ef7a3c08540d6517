package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adspot/internal/api"
	"adspot/internal/config"
	"adspot/internal/database"
	"adspot/internal/domain"
	"adspot/internal/events"
	"adspot/internal/export"
	"adspot/internal/logging"
	"adspot/internal/metrics"
	"adspot/internal/models"
	"adspot/internal/repository"
	"adspot/internal/service"
	"adspot/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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
		defer closer.Close()
	}

	placements, err := loadPlacements(&logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	cache := buildCache(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	outbox := worker.NewOutboxWorker(redisClient, worker.RetryPolicy{}, &logger)
	outbox.Attach(eventBus)

	reservations := service.NewReservationService(db, cache, eventBus, placements, cfg.HoldTTL(), &logger)
	settlement := service.NewSettlementService(db, cache, eventBus, &logger)
	inventory := service.NewInventoryService(db, cache, placements, &logger)
	exporter := export.NewExporter(db, &logger)

	reclaimer := worker.NewLockExpiryReclaimer(db, cache, eventBus, cfg.ReclaimInterval(), &logger)
	httpServer := api.NewHTTPServer(cfg.API, inventory, reservations, settlement, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	go reclaimer.Start(ctx)
	go outbox.Start(ctx)

	return serveHTTP(ctx, httpServer, cfg, &logger)
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
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func loadPlacements(logger *zerolog.Logger) ([]models.Placement, error) {
	placementsPath := os.Getenv("PLACEMENTS_PATH")
	if placementsPath == "" {
		placementsPath = "configs/placements.yaml"
	}
	data, err := os.ReadFile(placementsPath)
	if err != nil {
		logger.Error().Err(err).Str("placements_path", placementsPath).Msg("read placements")
		return nil, err
	}

	var catalog struct {
		Placements []models.Placement `yaml:"placements"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("placements_path", placementsPath).Msg("parse placements")
		return nil, err
	}

	if err := config.ValidatePlacements(catalog.Placements); err != nil {
		logger.Error().Err(err).Msg("invalid placements catalog")
		return nil, err
	}

	return catalog.Placements, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func buildCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.AvailabilityCache {
	memory := repository.NewMemoryAvailabilityCache(cfg.CacheTTL())
	if redisClient == nil {
		return memory
	}

	primary := repository.NewRedisAvailabilityCache(redisClient, cfg.CacheTTL())
	return repository.NewFailoverAvailabilityCache(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serveHTTP(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
