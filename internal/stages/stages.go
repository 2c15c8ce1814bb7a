package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/fanout"
	"github.com/nao1215/scanpipe/internal/findings"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/runner"
)

// Stage names. They prefix the STARTED and COMPLETED status values.
const (
	StageSearchArtifact   = "SEARCH ARTIFACT"
	StageDownloadArtifact = "DOWNLOAD ARTIFACT"
	StageMTAScan          = "MTA SCAN"
	StageArchiveReport    = "ARCHIVE REPORT"
	StageLoadMTAResult    = "LOAD MTA RESULT"
	StageDownloadCode     = "DOWNLOAD CODE"
	StageCSAScan          = "CSA SCAN"
	StageLoadCSAResult    = "LOAD CSA RESULT"
)

var (
	// ErrNoArtifacts is returned when the repository search selects nothing.
	ErrNoArtifacts = errors.New("no artifacts found")

	// ErrMissingOutput is returned when a tool exits cleanly without
	// producing the file it was asked for.
	ErrMissingOutput = errors.New("tool produced no output")
)

// DetailRecorder writes per-artifact status rows. *status.Tracker implements it.
type DetailRecorder interface {
	RecordDetail(ctx context.Context, requestID uuid.UUID, artifact, status string) error
}

// Uploader stores a local file under an object key and returns its location.
// *storage.Store implements it.
type Uploader interface {
	Upload(ctx context.Context, key, path string) (string, error)
}

// Deps are the collaborators shared by every stage.
type Deps struct {
	Runner   runner.ToolRunner
	Pool     fanout.Submitter
	Details  DetailRecorder
	Findings findings.Store

	// Archive enables the ARCHIVE REPORT stage when set.
	Archive Uploader

	// MaxConcurrency bounds the in-flight items of one fan-out.
	MaxConcurrency int

	// Hooks observe every fanned-out item.
	Hooks fanout.Hooks

	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func itemKey(item model.ItemResult) string {
	return item.Key
}

// forEach runs op for every item on the shared pool and joins the results
// by item key. Each item gets a detail row: done on success, FAILED otherwise.
func forEach[R any](
	ctx context.Context,
	d Deps,
	requestID uuid.UUID,
	items []model.ItemResult,
	done string,
	op func(context.Context, model.ItemResult) (R, error),
) (map[string]R, error) {
	return fanout.RunAll(ctx, d.Pool, items, itemKey,
		func(ctx context.Context, item model.ItemResult) (R, error) {
			out, err := op(ctx, item)
			if err != nil {
				d.recordDetail(context.WithoutCancel(ctx), requestID, item.Key, model.DetailFailed)
				var zero R
				return zero, err
			}
			if err := d.recordDetailErr(ctx, requestID, item.Key, done); err != nil {
				var zero R
				return zero, err
			}
			return out, nil
		},
		fanout.WithMaxConcurrency(d.MaxConcurrency),
		fanout.WithHooks(d.Hooks),
	)
}

// collectItems turns a keyed join back into an ordered item list.
func collectItems(items []model.ItemResult, results map[string]model.ItemResult) []model.ItemResult {
	return fanout.Collect(items, itemKey, results)
}

func (d Deps) recordDetailErr(ctx context.Context, requestID uuid.UUID, artifact, status string) error {
	if d.Details == nil {
		return nil
	}
	return d.Details.RecordDetail(ctx, requestID, artifact, status)
}

// recordDetail is used on paths that already fail; the write error is logged
// by the recorder and the original failure wins.
func (d Deps) recordDetail(ctx context.Context, requestID uuid.UUID, artifact, status string) {
	_ = d.recordDetailErr(ctx, requestID, artifact, status)
}

// ensureDir creates dir if absent. Several items may race on the same parent.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// requireFile fails with ErrMissingOutput when path does not exist.
func requireFile(tool, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s did not write %s", ErrMissingOutput, tool, path)
		}
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	return nil
}

// firstOrEmpty returns the first value of a multi-valued property.
func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
