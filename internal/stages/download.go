package stages

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/runner"
)

// DownloadArtifact fetches every selected artifact into <downloadDir>/<spk>/.
type DownloadArtifact struct {
	deps        Deps
	jfrog       config.JFrogConfig
	downloadDir string
}

// NewDownloadArtifact creates the DOWNLOAD ARTIFACT stage.
func NewDownloadArtifact(deps Deps, jfrog config.JFrogConfig, downloadDir string) *DownloadArtifact {
	return &DownloadArtifact{deps: deps, jfrog: jfrog, downloadDir: downloadDir}
}

// Name implements pipeline.Stage.
func (s *DownloadArtifact) Name() string { return StageDownloadArtifact }

// Execute implements pipeline.Stage.
func (s *DownloadArtifact) Execute(ctx context.Context, requestID uuid.UUID, req model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
	dir := filepath.Join(s.downloadDir, req.SPK)

	results, err := forEach(ctx, s.deps, requestID, prev.Items, model.DetailDownloaded,
		func(ctx context.Context, item model.ItemResult) (model.ItemResult, error) {
			if err := ensureDir(dir); err != nil {
				return model.ItemResult{}, err
			}
			file := path.Base(item.Location)
			dest := filepath.Join(dir, file)

			args := append([]string{"rt", "dl", item.Location, dest, "--flat=true"}, s.jfrog.ExtraArgs...)
			if _, err := s.deps.Runner.Run(ctx, runner.Command{Name: s.jfrog.Binary, Args: args}); err != nil {
				return model.ItemResult{}, fmt.Errorf("failed to download %s: %w", item.Location, err)
			}
			if err := requireFile(s.jfrog.Binary, dest); err != nil {
				return model.ItemResult{}, err
			}

			s.deps.logger().InfoContext(ctx, "artifact downloaded", "key", item.Key, "file", dest)
			return model.ItemResult{Key: item.Key, Location: dest, ParentKey: file}, nil
		})
	if err != nil {
		return model.StageOutput{}, err
	}

	items := collectItems(prev.Items, results)
	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("downloaded %d artifacts", len(items)),
		Items:         items,
	}, nil
}
