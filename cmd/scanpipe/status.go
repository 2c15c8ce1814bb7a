package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/database"
	"github.com/nao1215/scanpipe/internal/model"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [request-id]",
		Short: "Show the status of scan runs",
		Long: `Status prints the status row of a run, or the run history of a work unit.

Examples:
  # Status of one run with its per-artifact rows
  scanpipe status 0b8a4d1c-2f57-4e0e-9a65-3c1f1d2b7a10 --details

  # Every run of a work unit, newest first
  scanpipe status --work-unit AIT1 --spk SPK1`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatusCmd,
	}

	cmd.Flags().BoolP("details", "d", false, "Include per-artifact rows")
	cmd.Flags().StringP("work-unit", "w", "", "List the runs of this work unit")
	cmd.Flags().StringP("spk", "s", "", "Restrict --work-unit to one SPK")

	return cmd
}

// runView is the JSON printed for one run.
type runView struct {
	*model.RunStatus
	Details []model.StatusDetail `json:"details,omitempty"`
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cfg, cmd.ErrOrStderr())

	workUnit, _ := cmd.Flags().GetString("work-unit")
	if len(args) == 0 && workUnit == "" {
		return fmt.Errorf("a request id or --work-unit is required")
	}

	ctx := cmd.Context()
	store, err := database.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		spk, _ := cmd.Flags().GetString("spk")
		runs, err := store.ListStatuses(ctx, workUnit, spk)
		if err != nil {
			return err
		}
		if runs == nil {
			runs = []model.RunStatus{}
		}
		return printJSON(cmd.OutOrStdout(), runs)
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid request id %q: %w", args[0], err)
	}
	details, _ := cmd.Flags().GetBool("details")
	view, err := loadRun(ctx, store, id, details)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), view)
}

func loadRun(ctx context.Context, store database.Store, id uuid.UUID, withDetails bool) (runView, error) {
	rs, err := store.GetStatus(ctx, id)
	if err != nil {
		return runView{}, err
	}
	view := runView{RunStatus: rs}
	if withDetails {
		view.Details, err = store.ListDetails(ctx, id)
		if err != nil {
			return runView{}, err
		}
	}
	return view, nil
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
