package model

import (
	"time"

	"github.com/google/uuid"
)

// Run level status values written by the entry service and its completion handler.
const (
	StatusInitiated = "Initiated"
	StatusCompleted = "Completed"
	StatusError     = "Error"
)

// StageError is the status a stage boundary writes when the stage fails.
const StageError = "ERROR"

// Per-artifact detail status values.
const (
	DetailDownloaded = "DOWNLOADED"
	DetailScanned    = "SCANNED"
	DetailArchived   = "ARCHIVED"
	DetailLoaded     = "LOADED"
	DetailFailed     = "FAILED"
)

// StageStarted returns the status written before a stage does any work.
func StageStarted(stage string) string {
	return stage + " STARTED"
}

// StageCompleted returns the status written after a stage succeeds.
func StageCompleted(stage string) string {
	return stage + " COMPLETED"
}

// IsTerminal reports whether status is a run level terminal value.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// RunStatus is the single mutable progress row of one pipeline run.
type RunStatus struct {
	RequestID  uuid.UUID `json:"requestId"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes"`
	WorkUnitID string    `json:"workUnitId,omitempty"`
	SPK        string    `json:"spk,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StatusDetail is a per-artifact sub-status owned by a RunStatus row.
// Rows are removed together with their parent.
type StatusDetail struct {
	ID              uuid.UUID `json:"id"`
	ParentRequestID uuid.UUID `json:"parentRequestId"`
	Artifact        string    `json:"artifact"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// StatusUpdate is the argument of a tracker upsert.
// WorkUnitID and SPK are pointers: nil leaves the stored value untouched.
type StatusUpdate struct {
	RequestID  uuid.UUID
	Status     string
	Notes      string
	WorkUnitID *string
	SPK        *string
}
