package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// Stage is one technology specific unit of pipeline work.
//
// Execute receives the output of the previous stage (an empty output for
// the first stage) and returns the output the next stage consumes. It must
// not modify req. A stage that fails returns an error and no partial output.
type Stage interface {
	// Name is the status prefix of the stage, such as "SEARCH ARTIFACT".
	Name() string

	Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error)
}

// Name implements Stage.
func (s StageFunc) Name() string {
	return s.StageName
}

// Execute implements Stage.
func (s StageFunc) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	return s.Fn(ctx, requestID, req, prev)
}
