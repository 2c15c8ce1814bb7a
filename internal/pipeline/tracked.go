package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// StageRecorder persists stage boundaries. *status.Tracker implements it.
type StageRecorder interface {
	StageStarted(ctx context.Context, requestID uuid.UUID, stage string) error
	StageCompleted(ctx context.Context, requestID uuid.UUID, stage, notes string) error
	StageFailed(ctx context.Context, requestID uuid.UUID, stage string, cause error) error
}

// Observer receives the outcome of every tracked stage execution.
type Observer interface {
	ObserveStage(technology model.Technology, stage string, elapsed time.Duration, err error)
}

// trackedStage writes "<name> STARTED" before the wrapped stage runs and
// "<name> COMPLETED" or "ERROR" after it.
type trackedStage struct {
	Stage
	recorder StageRecorder
	observer Observer
}

func (t *trackedStage) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	name := t.Name()
	if err := t.recorder.StageStarted(ctx, requestID, name); err != nil {
		return model.StageOutput{}, fmt.Errorf("failed to record start of %s: %w", name, err)
	}

	start := time.Now()
	out, err := t.Stage.Execute(ctx, requestID, req, prev)
	if t.observer != nil {
		t.observer.ObserveStage(req.Technology, name, time.Since(start), err)
	}

	if err != nil {
		// The run context may already be cancelled; the ERROR row must still land.
		if recErr := t.recorder.StageFailed(context.WithoutCancel(ctx), requestID, name, err); recErr != nil {
			err = errors.Join(err, recErr)
		}
		return model.StageOutput{}, err
	}

	if err := t.recorder.StageCompleted(ctx, requestID, name, out.StatusMessage); err != nil {
		return model.StageOutput{}, fmt.Errorf("failed to record completion of %s: %w", name, err)
	}
	return out, nil
}

// Unwrap returns the stage without status tracking.
func (t *trackedStage) Unwrap() Stage {
	return t.Stage
}
