package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/database"
	"github.com/nao1215/scanpipe/internal/fanout"
	"github.com/nao1215/scanpipe/internal/metrics"
	"github.com/nao1215/scanpipe/internal/pipeline"
	"github.com/nao1215/scanpipe/internal/runner"
	"github.com/nao1215/scanpipe/internal/scan"
	"github.com/nao1215/scanpipe/internal/stages"
	"github.com/nao1215/scanpipe/internal/status"
	"github.com/nao1215/scanpipe/internal/storage"
)

// app holds the long lived components shared by serve and scan.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   database.Store
	metrics *metrics.Metrics
	pool    *fanout.Pool
	service *scan.Service
}

// appOptions lets tests replace collaborators.
type appOptions struct {
	store       database.Store
	toolRunner  runner.ToolRunner
	scanOptions []scan.Option
}

// newApp opens the store and wires the pipeline. The caller must Close it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	store := opts.store
	if store == nil {
		var err error
		store, err = database.OpenStore(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
		}
	}

	m := metrics.New()
	pool := fanout.NewPool(fanout.Config{
		Workers:   cfg.Pool.Workers,
		QueueSize: cfg.Pool.QueueSize,
	}, fanout.WithPoolLogger(logger))
	m.ObservePool(pool)

	tracker := status.NewTracker(store, status.WithLogger(logger))
	registry := pipeline.NewRegistry(
		pipeline.WithRecorder(tracker),
		pipeline.WithObserver(m),
	)

	toolRunner := opts.toolRunner
	if toolRunner == nil {
		toolRunner = runner.New(
			runner.WithTimeout(cfg.Timeouts.Tool),
			runner.WithLogger(logger),
		)
	}

	deps := stages.Deps{
		Runner:         toolRunner,
		Pool:           pool,
		Details:        tracker,
		Findings:       store,
		MaxConcurrency: cfg.Pool.MaxConcurrency,
		Hooks:          m.FanoutHooks(),
		Logger:         logger,
	}
	if cfg.Storage.Enabled() {
		archive, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			_ = pool.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect report storage: %w", err)
		}
		deps.Archive = archive
		logger.Info("report archiving enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	}

	if err := stages.Register(registry, cfg, deps); err != nil {
		_ = pool.Close()
		_ = store.Close()
		return nil, err
	}

	scanOpts := append([]scan.Option{
		scan.WithLogger(logger),
		scan.WithRunTimeout(cfg.Timeouts.Run),
		scan.WithObserver(m),
		scan.WithFindings(store),
	}, opts.scanOptions...)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: m,
		pool:    pool,
		service: scan.NewService(pipeline.New(registry, pipeline.WithLogger(logger)), tracker, scanOpts...),
	}, nil
}

// Close cancels runs still in flight, waits for their terminal status,
// then releases the pool and the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.service.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scan service shutdown: %w", err))
	}
	if err := a.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
