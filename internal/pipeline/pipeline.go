package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// Executor runs the stage list of a request as a sequential fold.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor over registry.
func New(registry *Registry, opts ...Option) *Executor {
	e := &Executor{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Registry returns the registry the executor resolves stages from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Run executes the stages registered for req.Technology in order.
//
// The output of stage i is the input of stage i+1, starting from an empty
// output. Stage i+1 is started only after stage i returned successfully.
// The first failing stage ends the run with its error and nothing after it
// executes. An unsupported technology fails before any stage runs.
func (e *Executor) Run(ctx context.Context, requestID uuid.UUID, req model.ScanRequest) (model.StageOutput, error) {
	stages, err := e.registry.Stages(req.Technology)
	if err != nil {
		return model.StageOutput{}, err
	}

	acc := model.EmptyOutput()
	for i, stage := range stages {
		// Checked between stages only; a running stage handles its own cancellation.
		if err := ctx.Err(); err != nil {
			e.logger.WarnContext(ctx, "pipeline cancelled",
				"stage", stage.Name(),
				"reason", context.Cause(ctx),
			)
			return model.StageOutput{}, fmt.Errorf("pipeline cancelled before %s: %w", stage.Name(), context.Cause(ctx))
		}

		e.logger.InfoContext(ctx, "executing stage",
			"stage", stage.Name(),
			"position", i+1,
			"total", len(stages),
			"items", len(acc.Items),
		)

		start := time.Now()
		out, err := stage.Execute(ctx, requestID, req, acc)
		if err != nil {
			e.logger.ErrorContext(ctx, "stage failed",
				"stage", stage.Name(),
				"duration", time.Since(start),
				"error", err,
			)
			return model.StageOutput{}, fmt.Errorf("%s: %w", stage.Name(), err)
		}

		e.logger.InfoContext(ctx, "stage completed",
			"stage", stage.Name(),
			"duration", time.Since(start),
			"items", len(out.Items),
		)
		acc = out
	}

	return acc, nil
}
