package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/runner"
)

// MTAScan runs the migration analyzer against every downloaded artifact.
// The output of an item is the CSV report the analyzer exported.
type MTAScan struct {
	deps    Deps
	mta     config.MTAConfig
	scanDir string
	logDir  string
}

// NewMTAScan creates the MTA SCAN stage.
func NewMTAScan(deps Deps, mta config.MTAConfig, scanDir, logDir string) *MTAScan {
	return &MTAScan{deps: deps, mta: mta, scanDir: scanDir, logDir: logDir}
}

// Name implements pipeline.Stage.
func (s *MTAScan) Name() string { return StageMTAScan }

// Args returns the analyzer argument vector for one artifact.
func (s *MTAScan) Args(input, output string) []string {
	args := []string{"--batchMode", "--input", input, "--output", output}
	for _, t := range s.mta.Targets {
		args = append(args, "--target", t)
	}
	args = append(args, "--exportCSV")
	if len(s.mta.Packages) > 0 {
		args = append(args, "--packages")
		args = append(args, s.mta.Packages...)
	}
	return args
}

// Execute implements pipeline.Stage.
func (s *MTAScan) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	results, err := forEach(ctx, s.deps, requestID, prev.Items, model.DetailScanned,
		func(ctx context.Context, item model.ItemResult) (model.ItemResult, error) {
			name := filepath.Base(item.Location)
			output := filepath.Join(s.scanDir, req.SPK, name)
			if err := ensureDir(output); err != nil {
				return model.ItemResult{}, err
			}

			_, err := s.deps.Runner.Run(ctx, runner.Command{
				Name:    s.mta.Binary,
				Args:    s.Args(item.Location, output),
				LogPath: filepath.Join(s.logDir, strings.TrimSuffix(name, filepath.Ext(name))+"_scan.log"),
			})
			if err != nil {
				return model.ItemResult{}, fmt.Errorf("failed to scan %s: %w", name, err)
			}

			report := filepath.Join(output, s.mta.ReportFile)
			if err := requireFile(s.mta.Binary, report); err != nil {
				return model.ItemResult{}, err
			}

			s.deps.logger().InfoContext(ctx, "artifact scanned", "key", item.Key, "report", report)
			return model.ItemResult{Key: item.Key, Location: report, ParentKey: item.ParentKey}, nil
		})
	if err != nil {
		return model.StageOutput{}, err
	}

	items := collectItems(prev.Items, results)
	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("scanned %d artifacts", len(items)),
		Items:         items,
	}, nil
}
