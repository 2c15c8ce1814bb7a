package status

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// Tracker is the single write path for run progress.
// Every write error is logged and returned; status is the only externally
// visible signal of a run, so failures are never masked.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger used for status writes.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a Tracker writing to store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// UpsertOption adds identity fields to an upsert.
type UpsertOption func(*model.StatusUpdate)

// WithWorkUnit sets the work unit id of the row.
func WithWorkUnit(workUnitID string) UpsertOption {
	return func(u *model.StatusUpdate) {
		u.WorkUnitID = &workUnitID
	}
}

// WithSPK sets the SPK of the row.
func WithSPK(spk string) UpsertOption {
	return func(u *model.StatusUpdate) {
		u.SPK = &spk
	}
}

// WithRequest sets both identity fields from req.
func WithRequest(req model.ScanRequest) UpsertOption {
	return func(u *model.StatusUpdate) {
		WithWorkUnit(req.WorkUnitID)(u)
		WithSPK(req.SPK)(u)
	}
}

// Upsert writes status and notes for requestID. Identity fields are only
// written when passed as options, so repeated calls never clear them.
func (t *Tracker) Upsert(ctx context.Context, requestID uuid.UUID, status, notes string, opts ...UpsertOption) error {
	u := model.StatusUpdate{RequestID: requestID, Status: status, Notes: notes}
	for _, opt := range opts {
		opt(&u)
	}

	if err := t.store.UpsertStatus(ctx, u); err != nil {
		t.logger.ErrorContext(ctx, "failed to write scan status",
			"request", requestID,
			"status", status,
			"error", err,
		)
		return fmt.Errorf("failed to write status %q for %s: %w", status, requestID, err)
	}

	t.logger.DebugContext(ctx, "scan status written", "request", requestID, "status", status)
	return nil
}

// StageStarted writes "<stage> STARTED".
func (t *Tracker) StageStarted(ctx context.Context, requestID uuid.UUID, stage string) error {
	return t.Upsert(ctx, requestID, model.StageStarted(stage), "")
}

// StageCompleted writes "<stage> COMPLETED" with the stage's status message.
func (t *Tracker) StageCompleted(ctx context.Context, requestID uuid.UUID, stage, notes string) error {
	return t.Upsert(ctx, requestID, model.StageCompleted(stage), notes)
}

// StageFailed writes "ERROR" with the cause as notes.
func (t *Tracker) StageFailed(ctx context.Context, requestID uuid.UUID, stage string, cause error) error {
	return t.Upsert(ctx, requestID, model.StageError, fmt.Sprintf("%s: %v", stage, cause))
}

// RecordDetail writes the per-artifact status of one item of a run.
func (t *Tracker) RecordDetail(ctx context.Context, requestID uuid.UUID, artifact, status string) error {
	d := model.StatusDetail{
		ID:              uuid.New(),
		ParentRequestID: requestID,
		Artifact:        artifact,
		Status:          status,
	}
	if err := t.store.UpsertDetail(ctx, d); err != nil {
		t.logger.ErrorContext(ctx, "failed to write artifact status",
			"request", requestID,
			"artifact", artifact,
			"status", status,
			"error", err,
		)
		return fmt.Errorf("failed to write status %q for artifact %s: %w", status, artifact, err)
	}
	return nil
}

// Get returns the status row of requestID or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, requestID uuid.UUID) (*model.RunStatus, error) {
	return t.store.GetStatus(ctx, requestID)
}

// Details returns the per-artifact rows of requestID.
func (t *Tracker) Details(ctx context.Context, requestID uuid.UUID) ([]model.StatusDetail, error) {
	return t.store.ListDetails(ctx, requestID)
}

// History returns every run of a work unit, newest first. An empty spk
// matches all SPKs.
func (t *Tracker) History(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	return t.store.ListStatuses(ctx, workUnitID, spk)
}

// Delete removes a run and, with it, its detail rows.
func (t *Tracker) Delete(ctx context.Context, requestID uuid.UUID) error {
	if err := t.store.DeleteStatus(ctx, requestID); err != nil {
		return fmt.Errorf("failed to delete status %s: %w", requestID, err)
	}
	return nil
}
