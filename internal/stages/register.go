package stages

import (
	"fmt"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/pipeline"
)

// JavaTrack returns the managed-runtime stage list. ARCHIVE REPORT is only
// included when deps.Archive is set.
func JavaTrack(cfg *config.Config, deps Deps) []pipeline.Stage {
	dirs := cfg.Directories
	track := []pipeline.Stage{
		NewSearchArtifact(deps, cfg.Tools.JFrog, dirs.Artifacts),
		NewDownloadArtifact(deps, cfg.Tools.JFrog, dirs.Downloads),
		NewMTAScan(deps, cfg.Tools.MTA, dirs.Scans, dirs.Logs),
	}
	if deps.Archive != nil {
		track = append(track, NewArchiveReport(deps))
	}
	return append(track, NewLoadResult(StageLoadMTAResult, deps, cfg.Findings.BatchSize))
}

// DotNetTrack returns the compiled-binary stage list.
func DotNetTrack(cfg *config.Config, deps Deps) []pipeline.Stage {
	dirs := cfg.Directories
	track := []pipeline.Stage{
		NewDownloadCode(deps, cfg.Tools.DotNet.Fetch, dirs.Downloads, dirs.Logs),
		NewCSAScan(deps, cfg.Tools.DotNet, dirs.Scans, dirs.Logs),
	}
	if deps.Archive != nil {
		track = append(track, NewArchiveReport(deps))
	}
	return append(track, NewLoadResult(StageLoadCSAResult, deps, cfg.Findings.BatchSize))
}

// Register adds both tracks to reg.
func Register(reg *pipeline.Registry, cfg *config.Config, deps Deps) error {
	if deps.MaxConcurrency == 0 {
		deps.MaxConcurrency = cfg.Pool.MaxConcurrency
	}
	if err := reg.Register(model.TechnologyJava, JavaTrack(cfg, deps)...); err != nil {
		return fmt.Errorf("failed to register %s track: %w", model.TechnologyJava, err)
	}
	if err := reg.Register(model.TechnologyDotNet, DotNetTrack(cfg, deps)...); err != nil {
		return fmt.Errorf("failed to register %s track: %w", model.TechnologyDotNet, err)
	}
	return nil
}
