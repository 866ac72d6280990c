package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexusdrive/delivery-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/nexusdrive/delivery-etl/internal/adapter/kafka"
	"github.com/nexusdrive/delivery-etl/internal/adapter/objectstore"
	"github.com/nexusdrive/delivery-etl/internal/adapter/sqlite"
	"github.com/nexusdrive/delivery-etl/internal/align"
	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/observability"
	"github.com/nexusdrive/delivery-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	schemas := align.DefaultSchemas()
	if cfg.SchemaFile != "" {
		if schemas, err = align.LoadSchemaFile(cfg.SchemaFile); err != nil {
			return err
		}
		logger.Info("loaded schema mapping", "path", cfg.SchemaFile)
	}

	var loaders []pipeline.Loader
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer closeWith(logger, "kafka writer", writer.Close)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	if cfg.SQLitePath != "" {
		sink, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer closeWith(logger, "sqlite sink", sink.Close)
		loaders = append(loaders, sink)
	}

	transformer := pipeline.NewTransformer(schemas, cfg.MaxRows, metrics, logger)
	keys := pipeline.Keys{
		Delivery: cfg.DeliveryKeyPattern,
		Weather:  cfg.WeatherKeyPattern,
		Enriched: cfg.EnrichedKeyPattern,
		External: cfg.ExternalKey,
		Output:   cfg.OutputKey,
	}
	p := pipeline.New(store, transformer, loaders, cfg.Cities, keys, logger, metrics)

	if cfg.RunInterval == 0 {
		return runBatch(ctx, cfg, p, logger)
	}
	return serve(ctx, cfg, p, logger)
}

// runBatch executes a single run and pushes metrics when a Pushgateway is configured.
func runBatch(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	_, runErr := p.RunOnce(ctx)
	if cfg.PushgatewayURL != "" {
		if err := observability.Push(ctx, cfg.PushgatewayURL, prometheus.DefaultGatherer); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}
	return runErr
}

// serve runs the pipeline on an interval behind the health and metrics server.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := p.Run(ctx, cfg.RunInterval); err != nil {
		logger.Error("pipeline error", "error", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.ObjectStore, error) {
	if cfg.StorageBackend == config.StorageMinio {
		store, err := objectstore.NewMinioStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("using minio object store", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
		return store, nil
	}
	logger.Info("using filesystem object store", "dir", cfg.DataDir)
	return objectstore.NewFileStore(cfg.DataDir), nil
}

func closeWith(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("close error", "component", name, "error", err)
	}
}
