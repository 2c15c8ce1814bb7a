package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/scanpipe/internal/httpserver"
)

// shutdownGrace bounds how long in-flight runs get to record their
// terminal status after a shutdown signal.
const shutdownGrace = 30 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger and status API",
		Long: `Serve starts the HTTP endpoint that accepts scan requests.

POST /start-scan returns {requestId, status, workUnitId, spk} with status
"Initiated" and runs the pipeline in the background. Progress is polled on
GET /v1/scans/{requestId}.

Examples:
  # Serve with the discovered configuration file
  scanpipe serve

  # Listen on another address
  scanpipe serve --addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}

	router := httpserver.NewRouter(a.service,
		httpserver.WithReadiness(a.store),
		httpserver.WithMetricsHandler(a.metrics.Handler()),
		httpserver.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpserver.WithRouterLogger(logger),
	)
	srv := httpserver.NewServer(cfg.Server, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down, cancelling runs in flight")
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return a.Close(closeCtx)
	})

	return g.Wait()
}
