package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"survey-export/internal/blob"
	"survey-export/internal/config"
	"survey-export/internal/events"
	"survey-export/internal/handler"
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
		logger.WithError(err).Error("api server failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job queue
	repo, err := repository.NewSQLiteRepository(cfg.QueueDBPath)
	if err != nil {
		return fmt.Errorf("initialize job repository: %w", err)
	}
	defer repo.Close()

	// Lifecycle event bus
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

	// Survey record store
	surveyStore, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return fmt.Errorf("connect to survey store: %w", err)
	}
	defer surveyStore.Close(context.Background())

	// Blob storage for submitted photos
	uploader, err := blob.NewMinioUploader(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket, cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("initialize blob uploader: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure blob bucket: %w", err)
	}

	metricsInstance := metrics.NewMetrics()
	rateLimiter := service.NewRateLimiter(cfg.SubmissionsPerMinute)

	exportService := service.NewExportService(repo, rateLimiter, metricsInstance, logger, cfg.MaxAttempts)
	surveyService := service.NewSurveyService(surveyStore, uploader, metricsInstance, logger, cfg.PhotoFolder)

	exportHandler := handler.NewExportHandler(exportService, bus, metricsInstance, logger)
	surveyHandler := handler.NewSurveyHandler(surveyService, logger)

	router := handler.NewRouter(exportHandler, surveyHandler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("API server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("serve: %w", err)
	case <-sigChan:
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
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
