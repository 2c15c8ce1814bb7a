package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/report"
	"github.com/nao1215/scanpipe/internal/scan"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan request in this process",
		Long: `Scan runs a single request through the pipeline without the HTTP server.

The run executes in this process and the command returns when it ends. The
status is written to the configured store exactly as a served request would
be, so it can be inspected later with "scanpipe status".

Examples:
  # Scan the Java artifacts of a work unit
  scanpipe scan --technology JAVA --work-unit AIT1 --spk SPK1

  # Print a Markdown report when the run ends
  scanpipe scan -t DOTNET -w AIT1 -s SPK1 --report markdown`,
		Args: cobra.NoArgs,
		RunE: runScanCmd,
	}

	cmd.Flags().StringP("technology", "t", "", "Workload technology (JAVA, DOTNET)")
	cmd.Flags().StringP("work-unit", "w", "", "Work unit id (AIT number)")
	cmd.Flags().StringP("spk", "s", "", "Software package key")
	cmd.Flags().StringP("report", "r", "", "Print a report when the run ends (text, markdown, json)")
	_ = cmd.MarkFlagRequired("technology")
	_ = cmd.MarkFlagRequired("work-unit")
	_ = cmd.MarkFlagRequired("spk")

	return cmd
}

// errRunFailed makes the command exit non-zero after a failed run.
var errRunFailed = errors.New("scan run failed")

func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("report")
	if err != nil {
		return err
	}
	if format != "" {
		if _, err := newReportWriter(format, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	req := model.ScanRequest{}
	tech, _ := cmd.Flags().GetString("technology")
	req.Technology = model.Technology(tech)
	req.WorkUnitID, _ = cmd.Flags().GetString("work-unit")
	req.SPK, _ = cmd.Flags().GetString("spk")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cmd, format, func(opts ...scan.Option) (*app, error) {
		return newApp(ctx, cfg, logger, appOptions{scanOptions: opts})
	}, req)
}

// runScan starts req on a fresh app, waits for the run and prints the
// outcome. Cancelling ctx cancels the run.
func runScan(ctx context.Context, cmd *cobra.Command, format string, build func(...scan.Option) (*app, error), req model.ScanRequest) error {
	results := make(chan scan.Result, 1)
	a, err := build(scan.WithCompletionHandler(func(r scan.Result) { results <- r }))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	resp, err := a.service.Start(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}

	var res scan.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := a.service.Shutdown(closeCtx); err != nil {
			return err
		}
		res = <-results
	}

	if format != "" {
		rep, err := report.Build(context.WithoutCancel(ctx), a.service, resp.RequestID)
		if err != nil {
			return err
		}
		w, _ := newReportWriter(format, cmd.OutOrStdout())
		if _, err := w.Write(rep); err != nil {
			return err
		}
	}

	if res.Err != nil {
		return fmt.Errorf("%w: %s: %w", errRunFailed, resp.RequestID, res.Err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "scan %s completed: %s\n", resp.RequestID, res.Output.StatusMessage)
	return nil
}
