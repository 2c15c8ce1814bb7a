package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/config"
	scanlog "github.com/nao1215/scanpipe/internal/log"
)

// NewRootCmd creates the root command for scanpipe.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanpipe",
		Short: "Artifact scan pipeline orchestrator",
		Long: `scanpipe orchestrates multi-stage scans of software artifacts.

A scan request names a technology, a work unit and an SPK. The technology
selects an ordered list of stages (JAVA: search, download, MTA scan, load;
DOTNET: fetch code, CSA scan, load). Stages run in order, fan out per
artifact, and every transition is written to the status store so progress
can be polled while the run is in flight.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: scanpipe.yaml in current, XDG config or home directory)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewEncryptCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration selected by --config and applies
// the global flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		cfg.Log.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// newLogger creates the process logger and installs it as the default.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := scanlog.New(w, cfg.Log.Verbose, cfg.Log.JSON)
	slog.SetDefault(logger)
	return logger
}
