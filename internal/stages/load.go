package stages

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/findings"
	"github.com/nao1215/scanpipe/internal/model"
)

// LoadResult parses every CSV report of the previous stage and writes the
// findings in batches. It is used by both technology tracks.
type LoadResult struct {
	name      string
	deps      Deps
	batchSize int
}

// NewLoadResult creates a load stage with the given name.
func NewLoadResult(name string, deps Deps, batchSize int) *LoadResult {
	return &LoadResult{name: name, deps: deps, batchSize: batchSize}
}

// Name implements pipeline.Stage.
func (s *LoadResult) Name() string { return s.name }

// Execute implements pipeline.Stage. The output is a single item keyed by
// SPK whose status summarizes the run.
func (s *LoadResult) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	counts, err := forEach(ctx, s.deps, requestID, prev.Items, model.DetailLoaded,
		func(ctx context.Context, item model.ItemResult) (int, error) {
			base := model.Finding{
				RequestID:         requestID,
				WorkUnitID:        req.WorkUnitID,
				SPK:               req.SPK,
				FileKey:           item.Key,
				ParentApplication: item.ParentKey,
			}
			n, err := findings.LoadFile(ctx, s.deps.Findings, item.Location, base, s.batchSize)
			if err != nil {
				return n, err
			}
			s.deps.logger().InfoContext(ctx, "findings loaded", "key", item.Key, "count", n)
			return n, nil
		})
	if err != nil {
		return model.StageOutput{}, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("loaded %d findings from %d reports", total, len(counts)),
		Items: []model.ItemResult{{
			Key:    req.SPK,
			Status: fmt.Sprintf("Scan Completed for AIT %s and SPK %s: %d findings", req.WorkUnitID, req.SPK, total),
		}},
	}, nil
}
