package status

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// ErrNotFound is returned when no status row exists for a request id.
var ErrNotFound = errors.New("scan status not found")

// Store persists run status rows and their detail rows.
//
// UpsertStatus must be atomic: insert the row when absent; otherwise
// update status and notes, and update WorkUnitID/SPK only when the update
// carries them. Implementations use a single conflict-handling statement or
// a transaction, never an unguarded read followed by a write.
type Store interface {
	UpsertStatus(ctx context.Context, u model.StatusUpdate) error
	GetStatus(ctx context.Context, requestID uuid.UUID) (*model.RunStatus, error)
	ListStatuses(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error)
	UpsertDetail(ctx context.Context, d model.StatusDetail) error
	ListDetails(ctx context.Context, requestID uuid.UUID) ([]model.StatusDetail, error)
	DeleteStatus(ctx context.Context, requestID uuid.UUID) error
}
