package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Brownie44l1/scan-triage/internal/config"
	"github.com/Brownie44l1/scan-triage/internal/logging"
	"github.com/Brownie44l1/scan-triage/internal/metrics"
	"github.com/Brownie44l1/scan-triage/internal/model"
	"github.com/Brownie44l1/scan-triage/internal/storage"
	"github.com/Brownie44l1/scan-triage/internal/triage"
)

// app holds everything built once at process start.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	bundle   *model.Bundle
	pipeline *triage.Pipeline
	// local is set when heatmaps are written to disk and served by us.
	local *storage.Local
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger.Info("loading models", zap.String("dir", cfg.Models.Dir))

	bundle, err := model.Load(model.Options{
		Dir:            cfg.Models.Dir,
		LibraryPath:    cfg.Models.LibraryPath,
		IntraOpThreads: cfg.Models.IntraOpThreads,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, bundle: bundle}

	registry, err := bundle.Registry()
	if err != nil {
		return nil, multierr.Append(err, a.Close())
	}

	var store triage.VisualizationStore
	switch cfg.Storage.Backend {
	case "minio":
		m := cfg.Storage.Minio
		store, err = storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  m.Endpoint,
			Region:    m.Region,
			Bucket:    m.BucketName,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Prefix:    m.Prefix,
		})
	default:
		a.local, err = storage.NewLocal(cfg.Storage.Local.Dir, cfg.Storage.Local.URLPrefix)
		store = a.local
	}
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to init %s storage: %w", cfg.Storage.Backend, err), a.Close())
	}
	logger.Info("heatmap storage ready", zap.String("backend", cfg.Storage.Backend))

	a.pipeline, err = triage.NewPipeline(registry,
		triage.WithLogger(logger),
		triage.WithStore(store),
		triage.WithRecorder(metrics.Recorder{}),
		triage.WithMaxPixels(cfg.Server.MaxImagePixels),
	)
	if err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *app) Close() error {
	var err error
	if a.bundle != nil {
		err = a.bundle.Close()
	}
	_ = a.logger.Sync()
	return err
}
