package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/runner"
)

// DownloadCode fetches the source of an SPK with the configured fetch
// command into <downloadDir>/<spk>/<requestId>.
type DownloadCode struct {
	deps        Deps
	fetch       config.Command
	downloadDir string
	logDir      string
}

// NewDownloadCode creates the DOWNLOAD CODE stage.
func NewDownloadCode(deps Deps, fetch config.Command, downloadDir, logDir string) *DownloadCode {
	return &DownloadCode{deps: deps, fetch: fetch, downloadDir: downloadDir, logDir: logDir}
}

// Name implements pipeline.Stage.
func (s *DownloadCode) Name() string { return StageDownloadCode }

// Execute implements pipeline.Stage. It ignores prev.
func (s *DownloadCode) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, _ model.StageOutput) (model.StageOutput, error) {
	parent := filepath.Join(s.downloadDir, req.SPK)
	if err := ensureDir(parent); err != nil {
		return model.StageOutput{}, err
	}
	dest := filepath.Join(parent, requestID.String())

	_, err := s.deps.Runner.Run(ctx, runner.Command{
		Name: s.fetch.Binary,
		Args: s.fetch.Expand(map[string]string{
			"spk":        req.SPK,
			"workUnitId": req.WorkUnitID,
			"dest":       dest,
		}),
		LogPath: filepath.Join(s.logDir, req.SPK+"_fetch.log"),
	})
	if err != nil {
		s.deps.recordDetail(context.WithoutCancel(ctx), requestID, req.SPK, model.DetailFailed)
		return model.StageOutput{}, fmt.Errorf("failed to fetch source of %s: %w", req.SPK, err)
	}
	if err := requireFile(s.fetch.Binary, dest); err != nil {
		s.deps.recordDetail(context.WithoutCancel(ctx), requestID, req.SPK, model.DetailFailed)
		return model.StageOutput{}, err
	}
	if err := s.deps.recordDetailErr(ctx, requestID, req.SPK, model.DetailDownloaded); err != nil {
		return model.StageOutput{}, err
	}

	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: "source downloaded",
		Items:         []model.ItemResult{{Key: req.SPK, Location: dest, ParentKey: req.SPK}},
	}, nil
}

// CSAScan runs the code analyzer over every fetched source tree.
type CSAScan struct {
	deps       Deps
	analyze    config.Command
	reportFile string
	scanDir    string
	logDir     string
}

// NewCSAScan creates the CSA SCAN stage.
func NewCSAScan(deps Deps, dotnet config.DotNetConfig, scanDir, logDir string) *CSAScan {
	return &CSAScan{
		deps:       deps,
		analyze:    dotnet.Analyze,
		reportFile: dotnet.ReportFile,
		scanDir:    scanDir,
		logDir:     logDir,
	}
}

// Name implements pipeline.Stage.
func (s *CSAScan) Name() string { return StageCSAScan }

// Execute implements pipeline.Stage.
func (s *CSAScan) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	results, err := forEach(ctx, s.deps, requestID, prev.Items, model.DetailScanned,
		func(ctx context.Context, item model.ItemResult) (model.ItemResult, error) {
			output := filepath.Join(s.scanDir, req.SPK, item.Key)
			if err := ensureDir(output); err != nil {
				return model.ItemResult{}, err
			}

			_, err := s.deps.Runner.Run(ctx, runner.Command{
				Name: s.analyze.Binary,
				Args: s.analyze.Expand(map[string]string{
					"spk":        req.SPK,
					"workUnitId": req.WorkUnitID,
					"input":      item.Location,
					"output":     output,
				}),
				LogPath: filepath.Join(s.logDir, item.Key+"_csa.log"),
			})
			if err != nil {
				return model.ItemResult{}, fmt.Errorf("failed to analyze %s: %w", item.Key, err)
			}

			report := filepath.Join(output, s.reportFile)
			if err := requireFile(s.analyze.Binary, report); err != nil {
				return model.ItemResult{}, err
			}
			return model.ItemResult{Key: item.Key, Location: report, ParentKey: item.ParentKey}, nil
		})
	if err != nil {
		return model.StageOutput{}, err
	}

	items := collectItems(prev.Items, results)
	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("analyzed %d source trees", len(items)),
		Items:         items,
	}, nil
}
