package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/database"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/report"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <request-id>",
		Short: "Render the report of a scan run",
		Long: `Report renders the status, artifacts and findings of a run.

Examples:
  # Text report on the terminal
  scanpipe report 0b8a4d1c-2f57-4e0e-9a65-3c1f1d2b7a10

  # Markdown report written to a file
  scanpipe report 0b8a4d1c-2f57-4e0e-9a65-3c1f1d2b7a10 --markdown -o report.md

  # JSON for tooling
  scanpipe report 0b8a4d1c-2f57-4e0e-9a65-3c1f1d2b7a10 --json`,
		Args: cobra.ExactArgs(1),
		RunE: runReportCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid request id %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cfg, cmd.ErrOrStderr())

	format := "text"
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		format = "json"
	}
	if asMarkdown, _ := cmd.Flags().GetBool("markdown"); asMarkdown {
		format = "markdown"
	}

	ctx := cmd.Context()
	store, err := database.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := report.Build(ctx, storeSource{store}, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := createReportFile(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w, err := newReportWriter(format, out)
	if err != nil {
		return err
	}
	_, err = w.Write(rep)
	return err
}

// newReportWriter returns the writer for format: text, markdown or json.
func newReportWriter(format string, out io.Writer) (report.Writer, error) {
	switch format {
	case "text":
		return report.NewSimpleWriter(out, report.WithVerbose(true)), nil
	case "markdown", "md":
		return report.NewMarkdownWriter(out), nil
	case "json":
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion())), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want text, markdown or json)", format)
	}
}

func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}

// storeSource reads a run straight from the store.
type storeSource struct {
	store database.Store
}

func (s storeSource) Status(ctx context.Context, id uuid.UUID) (*model.RunStatus, error) {
	return s.store.GetStatus(ctx, id)
}

func (s storeSource) Details(ctx context.Context, id uuid.UUID) ([]model.StatusDetail, error) {
	return s.store.ListDetails(ctx, id)
}

func (s storeSource) Findings(ctx context.Context, id uuid.UUID, limit int) ([]model.Finding, error) {
	return s.store.ListFindings(ctx, id, limit)
}
