package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"survey-export/internal/blob"
	"survey-export/internal/config"
	"survey-export/internal/events"
	"survey-export/internal/export"
	"survey-export/internal/metrics"
	"survey-export/internal/repository"
	"survey-export/internal/service"
	"survey-export/internal/store"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	// run owns all resources so their deferred closes execute before
	// the process exits.
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("worker failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := repository.NewSQLiteRepository(cfg.QueueDBPath)
	if err != nil {
		return fmt.Errorf("initialize job repository: %w", err)
	}
	defer repo.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	bus := events.NewBus(redisClient, cfg.EventsChannel, logger)

	surveyStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return fmt.Errorf("connect to survey store: %w", err)
	}
	defer surveyStore.Close(context.Background())

	uploader, err := blob.NewMinioUploader(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket, cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("initialize blob uploader: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure blob bucket: %w", err)
	}

	exporter := export.NewExporter(surveyStore, cfg.TempDir, logger)
	metricsInstance := metrics.NewMetrics()

	workerService := service.NewWorkerService(repo, exporter, uploader, bus, metricsInstance, logger, service.WorkerConfig{
		LeaseDuration:  cfg.LeaseDuration,
		PollInterval:   cfg.PollInterval,
		BackoffBase:    cfg.BackoffBase,
		ExportFolder:   cfg.ExportFolder,
		RetentionAge:   cfg.RetentionAge,
		RetentionCount: cfg.RetentionCount,
		PruneInterval:  cfg.PruneInterval,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down worker...")
		cancel()
	}()

	go workerService.RunPruner(ctx)

	logger.Info("worker started, polling for jobs...")
	if err := workerService.ProcessJobs(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("process jobs: %w", err)
	}

	logger.Info("worker stopped")
	return nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}
