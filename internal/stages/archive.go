package stages

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// ArchiveReport copies every report to object storage. Items pass through
// unchanged so the load stage still reads the local files.
type ArchiveReport struct {
	deps Deps
}

// NewArchiveReport creates the ARCHIVE REPORT stage. deps.Archive must be set.
func NewArchiveReport(deps Deps) *ArchiveReport {
	return &ArchiveReport{deps: deps}
}

// Name implements pipeline.Stage.
func (s *ArchiveReport) Name() string { return StageArchiveReport }

// ObjectKey returns where the report of item is stored.
func ObjectKey(spk string, requestID uuid.UUID, item model.ItemResult) string {
	return path.Join(spk, requestID.String(), item.Key, filepath.Base(item.Location))
}

// Execute implements pipeline.Stage.
func (s *ArchiveReport) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	_, err := forEach(ctx, s.deps, requestID, prev.Items, model.DetailArchived,
		func(ctx context.Context, item model.ItemResult) (string, error) {
			location, err := s.deps.Archive.Upload(ctx, ObjectKey(req.SPK, requestID, item), item.Location)
			if err != nil {
				return "", fmt.Errorf("failed to archive %s: %w", item.Key, err)
			}
			s.deps.logger().DebugContext(ctx, "report archived", "key", item.Key, "location", location)
			return location, nil
		})
	if err != nil {
		return model.StageOutput{}, err
	}

	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("archived %d reports", len(prev.Items)),
		Items:         prev.Items,
	}, nil
}
