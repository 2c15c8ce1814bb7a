package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/runner"
)

// fileKeyPattern splits an artifact file name into name, version and
// extension: app-1.2.3.ear, app_20240101.war and app.4.jar all map to
// the key app.<ext>.
var fileKeyPattern = regexp.MustCompile(`(.+?)(-\d+.*|_\d+.*|\.\d+.*)\.(ear|war|jar|zip)$`)

// FileKey returns the version independent key of a repository path, or
// false when the file is not a deployable archive.
func FileKey(repoPath string) (string, bool) {
	m := fileKeyPattern.FindStringSubmatch(path.Base(repoPath))
	if m == nil {
		return "", false
	}
	return m[1] + "." + m[3], true
}

// searchResult is one entry of the repository CLI's JSON search output.
type searchResult struct {
	Path    string `json:"path"`
	Created string `json:"created"`
	Props   struct {
		AITNumber   []string `json:"ait.number"`
		SCMLocation []string `json:"scm:location"`
		SPK         []string `json:"spk"`
	} `json:"props"`
}

func (r searchResult) createdAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Created)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SearchArtifact lists the released artifacts of an SPK and keeps the
// newest build per file key.
type SearchArtifact struct {
	deps        Deps
	jfrog       config.JFrogConfig
	artifactDir string
}

// NewSearchArtifact creates the SEARCH ARTIFACT stage.
func NewSearchArtifact(deps Deps, jfrog config.JFrogConfig, artifactDir string) *SearchArtifact {
	return &SearchArtifact{deps: deps, jfrog: jfrog, artifactDir: artifactDir}
}

// Name implements pipeline.Stage.
func (s *SearchArtifact) Name() string { return StageSearchArtifact }

// Execute implements pipeline.Stage. It ignores prev.
func (s *SearchArtifact) Execute(ctx context.Context, _ uuid.UUID, req model.ScanRequest, _ model.StageOutput) (model.StageOutput, error) {
	args := []string{
		"rt", "s", "--recursive", "--sort-by=created", "--sort-order=desc",
		s.jfrog.RepositoryPattern + "/" + req.SPK + "/",
	}
	args = append(args, s.jfrog.ExtraArgs...)

	res, err := s.deps.Runner.Run(ctx, runner.Command{Name: s.jfrog.Binary, Args: args, Capture: true})
	if err != nil {
		return model.StageOutput{}, fmt.Errorf("artifact search failed: %w", err)
	}

	var results []searchResult
	if err := json.Unmarshal(res.Stdout, &results); err != nil {
		return model.StageOutput{}, fmt.Errorf("failed to parse search output: %w", err)
	}

	latest := s.selectLatest(ctx, results)
	if len(latest) == 0 {
		return model.StageOutput{}, fmt.Errorf("%w for spk %s", ErrNoArtifacts, req.SPK)
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	items := make([]model.ItemResult, 0, len(keys))
	records := make([]model.ArtifactRecord, 0, len(keys))
	for _, k := range keys {
		r := latest[k]
		items = append(items, model.ItemResult{Key: k, Location: r.Path})
		records = append(records, model.ArtifactRecord{
			WorkUnitID:   firstOrEmpty(r.Props.AITNumber),
			BuildCreated: r.createdAt(),
			DownloadPath: r.Path,
			RepoURL:      firstOrEmpty(r.Props.SCMLocation),
			SPK:          firstOrEmpty(r.Props.SPK),
			FileKey:      k,
		})
	}

	if err := s.writeRecords(req.SPK, records); err != nil {
		return model.StageOutput{}, err
	}

	s.deps.logger().InfoContext(ctx, "artifacts selected", "spk", req.SPK, "found", len(results), "selected", len(items))
	return model.StageOutput{
		SubjectID:     req.SPK,
		StatusMessage: fmt.Sprintf("found %d artifacts", len(items)),
		Items:         items,
	}, nil
}

// selectLatest keeps the newest search result per file key. Paths that are
// not deployable archives are skipped.
func (s *SearchArtifact) selectLatest(ctx context.Context, results []searchResult) map[string]searchResult {
	latest := make(map[string]searchResult)
	for _, r := range results {
		key, ok := FileKey(r.Path)
		if !ok {
			s.deps.logger().DebugContext(ctx, "skipping non-archive path", "path", r.Path)
			continue
		}
		if existing, ok := latest[key]; !ok || r.createdAt().After(existing.createdAt()) {
			latest[key] = r
		}
	}
	return latest
}

// writeRecords stores the selection as <artifactDir>/<spk>.json.
func (s *SearchArtifact) writeRecords(spk string, records []model.ArtifactRecord) error {
	if err := ensureDir(s.artifactDir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact records: %w", err)
	}
	out := filepath.Join(s.artifactDir, spk+".json")
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}
