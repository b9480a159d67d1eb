// @title Droplet Predictor API
// @version 1.0
// @description Droplet diameter predictions for microfluidic generator configurations.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OldStager01/droplet-predictor/api"
	"github.com/OldStager01/droplet-predictor/internal/artifact"
	"github.com/OldStager01/droplet-predictor/internal/events"
	"github.com/OldStager01/droplet-predictor/internal/history"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/manager"
	"github.com/OldStager01/droplet-predictor/internal/metrics"
	"github.com/OldStager01/droplet-predictor/internal/predictor"
	"github.com/OldStager01/droplet-predictor/internal/registry"
	"github.com/OldStager01/droplet-predictor/pkg/config"
	"github.com/OldStager01/droplet-predictor/pkg/database"
	"github.com/OldStager01/droplet-predictor/pkg/database/queries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	if cfg.App.LogFile != "" {
		closer := logger.EnableFileOutput(cfg.App.LogFile, cfg.App.LogMaxSizeMB, cfg.App.LogMaxBackups)
		defer closer.Close()
	}
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	db, err := database.New(cfg.Database.ToDBConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("Database connection established")

	migrationTimeout := cfg.Database.MigrationTimeout
	if migrationTimeout <= 0 {
		migrationTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	migrator := database.NewMigrator(db)
	if *migrate {
		logger.Info("Running database migrations")
		if err := migrator.Run(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	if pending, err := migrator.Pending(ctx); err != nil {
		logger.WithError(err).Warn("Could not check pending migrations")
	} else if len(pending) > 0 {
		logger.Warnf("%d migrations pending, run with -migrate: %v", len(pending), pending)
	}

	var metricsServer *http.Server
	if cfg.Prometheus.Enabled {
		metricsServer = metrics.StartServer(cfg.Prometheus.Port)
	}

	bus := events.NewEventBus(cfg.Events.BufferSize)
	defer bus.Close()
	eventLogger := events.NewEventLogger(bus.SubscribeAll())
	eventLogger.Start()
	defer eventLogger.Stop()
	publisher := events.NewPublisher(bus)

	reg := registry.Default(cfg.Models.ArtifactDir, cfg.Models.TrainingDir)
	models := manager.New(manager.Config{
		Registry:    reg,
		Store:       artifact.NewFileStore(),
		LoadTimeout: cfg.Predictor.LoadTimeout,
		Publisher:   publisher,
	})

	if cfg.Predictor.Warmup {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*cfg.Predictor.LoadTimeout)
		if err := models.Warm(warmCtx); err != nil {
			// a configuration that fails here is retried on its first request
			logger.WithError(err).Warn("Model warmup incomplete")
		}
		warmCancel()
	}

	pred := predictor.New(predictor.Config{
		Registry:  reg,
		Source:    models,
		Publisher: publisher,
	})

	recorder := history.NewRecorder(queries.NewPredictionRepository(db.DB), history.Config{
		MaxFailures: cfg.Predictor.History.MaxFailures,
		OpenTimeout: cfg.Predictor.History.Timeout,
	}, nil)

	server := api.NewServer(cfg.API, cfg.WebSocket, api.Dependencies{
		Health:    db,
		Users:     queries.NewUserRepository(db.DB),
		Predictor: pred,
		Models:    models,
		History:   recorder,
		Events:    bus,
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownTimeout := cfg.App.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown")
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}
