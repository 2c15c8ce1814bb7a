package findings

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// Store is the durable findings table.
type Store interface {
	// InsertFindings writes one batch atomically.
	InsertFindings(ctx context.Context, findings []model.Finding) error

	// ListFindings returns findings of a run; limit <= 0 means all.
	ListFindings(ctx context.Context, requestID uuid.UUID, limit int) ([]model.Finding, error)
}

// BatchWriter buffers findings and inserts them size at a time, bounding
// memory for large reports without a round trip per row.
type BatchWriter struct {
	store   Store
	size    int
	buf     []model.Finding
	written int
}

// NewBatchWriter creates a BatchWriter. A non-positive size writes one row
// per batch.
func NewBatchWriter(store Store, size int) *BatchWriter {
	size = max(size, 1)
	return &BatchWriter{
		store: store,
		size:  size,
		buf:   make([]model.Finding, 0, size),
	}
}

// Add buffers f and flushes when the batch is full.
func (w *BatchWriter) Add(ctx context.Context, f model.Finding) error {
	w.buf = append(w.buf, f)
	if len(w.buf) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes whatever is buffered.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.InsertFindings(ctx, w.buf); err != nil {
		return fmt.Errorf("failed to insert %d findings: %w", len(w.buf), err)
	}
	w.written += len(w.buf)
	w.buf = w.buf[:0]
	return nil
}

// Written returns the number of findings persisted so far.
func (w *BatchWriter) Written() int {
	return w.written
}

// LoadFile parses the CSV report at path and writes every row through a
// BatchWriter of the given size. Each finding starts as a copy of base, so
// run and artifact identity is filled in by the caller.
func LoadFile(ctx context.Context, store Store, path string, base model.Finding, batchSize int) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the previous stage's output
	if err != nil {
		return 0, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	w := NewBatchWriter(store, batchSize)
	if _, err := Parse(f, base, func(finding model.Finding) error {
		return w.Add(ctx, finding)
	}); err != nil {
		return w.Written(), fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := w.Flush(ctx); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}
