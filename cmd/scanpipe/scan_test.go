package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nao1215/scanpipe/internal/config"
	"github.com/nao1215/scanpipe/internal/database"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/pipeline"
	"github.com/nao1215/scanpipe/internal/runner"
	"github.com/nao1215/scanpipe/internal/scan"
)

const analysisCSV = "Rule Id,Issue,Category,Title,Description,Links,Application,File Name,File Path,Line,Story points,Parent Application\n" +
	"dotnet-00010,Legacy remoting,mandatory,System.Runtime.Remoting,Remoting is unavailable,,billing,Server.cs,src/Server.cs,42,5,billing\n" +
	"dotnet-00020,Registry access,optional,Microsoft.Win32.Registry,Windows only,,billing,Config.cs,src/Config.cs,7,1,billing\n"

// sourceTools simulates the source fetch and the code analyzer.
type sourceTools struct {
	fail bool
}

func (s sourceTools) Run(_ context.Context, c runner.Command) (runner.Result, error) {
	switch c.Name {
	case "git":
		return runner.Result{}, os.MkdirAll(c.Args[len(c.Args)-1], 0o750)
	case "csa":
		if s.fail {
			return runner.Result{}, &runner.ExitError{Name: "csa", Code: 3, Stderr: "license expired"}
		}
		i := slices.Index(c.Args, "--output")
		return runner.Result{}, os.WriteFile(filepath.Join(c.Args[i+1], "report.csv"), []byte(analysisCSV), 0o600)
	}
	return runner.Result{}, fmt.Errorf("unexpected command %s", c)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Database.Driver = config.DriverMemory
	cfg.Directories = config.DirectoryConfig{
		Artifacts: filepath.Join(dir, "artifacts"),
		Downloads: filepath.Join(dir, "downloads"),
		Scans:     filepath.Join(dir, "scans"),
		Logs:      filepath.Join(dir, "logs"),
	}
	return cfg
}

func testBuilder(t *testing.T, cfg *config.Config, tools runner.ToolRunner, store *database.MemoryDB) func(...scan.Option) (*app, error) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return func(opts ...scan.Option) (*app, error) {
		return newApp(context.Background(), cfg, logger, appOptions{
			store:       store,
			toolRunner:  tools,
			scanOptions: opts,
		})
	}
}

func TestRunScan(t *testing.T) {
	t.Parallel()

	req := model.ScanRequest{Technology: model.TechnologyDotNet, WorkUnitID: "AIT1", SPK: "billing"}

	t.Run("completed run with markdown report", func(t *testing.T) {
		t.Parallel()

		store := database.NewMemoryDB()
		var out, errOut bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)

		err := runScan(context.Background(), cmd, "markdown", testBuilder(t, testConfig(t), sourceTools{}, store), req)
		if err != nil {
			t.Fatalf("runScan() error = %v", err)
		}

		printed := out.String()
		var resp scan.Response
		if err := json.NewDecoder(strings.NewReader(printed)).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Status != model.StatusInitiated || resp.SPK != "billing" {
			t.Errorf("response = %+v", resp)
		}

		rs, err := store.GetStatus(context.Background(), resp.RequestID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if rs.Status != model.StatusCompleted {
			t.Errorf("final status = %q (%s)", rs.Status, rs.Notes)
		}

		findings, err := store.ListFindings(context.Background(), resp.RequestID, 0)
		if err != nil {
			t.Fatalf("ListFindings() error = %v", err)
		}
		if len(findings) != 2 {
			t.Errorf("findings = %d, want 2", len(findings))
		}

		if !strings.Contains(printed, "# Scan Report") {
			t.Errorf("report not printed:\n%s", printed)
		}
		if !strings.Contains(errOut.String(), "completed") {
			t.Errorf("stderr = %q", errOut.String())
		}
	})

	t.Run("failed run exits with an error", func(t *testing.T) {
		t.Parallel()

		store := database.NewMemoryDB()
		cmd := &cobra.Command{}
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))

		err := runScan(context.Background(), cmd, "", testBuilder(t, testConfig(t), sourceTools{fail: true}, store), req)
		if !errors.Is(err, errRunFailed) {
			t.Fatalf("runScan() error = %v, want errRunFailed", err)
		}
		var exitErr *runner.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 3 {
			t.Errorf("cause = %v, want the analyzer exit error", err)
		}
	})

	t.Run("unsupported technology", func(t *testing.T) {
		t.Parallel()

		cmd := &cobra.Command{}
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))

		bad := req
		bad.Technology = "COBOL"
		err := runScan(context.Background(), cmd, "", testBuilder(t, testConfig(t), sourceTools{}, database.NewMemoryDB()), bad)
		if !errors.Is(err, pipeline.ErrUnsupportedTechnology) {
			t.Errorf("runScan() error = %v, want ErrUnsupportedTechnology", err)
		}
	})
}

func TestNewApp_Registers(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler), appOptions{
		store:      database.NewMemoryDB(),
		toolRunner: sourceTools{},
	})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	if a.metrics.Handler() == nil {
		t.Error("metrics handler is nil")
	}
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"text", "markdown", "md", "json"} {
		if _, err := newReportWriter(format, new(bytes.Buffer)); err != nil {
			t.Errorf("newReportWriter(%q) error = %v", format, err)
		}
	}
	if _, err := newReportWriter("pdf", new(bytes.Buffer)); err == nil {
		t.Error("expected error for unknown format")
	}
}
