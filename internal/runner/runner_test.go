//go:build !windows

package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("captures stdout", func(t *testing.T) {
		t.Parallel()

		res, err := New().Run(context.Background(), Command{
			Name:    "sh",
			Args:    []string{"-c", "echo hello"},
			Capture: true,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if strings.TrimSpace(string(res.Stdout)) != "hello" {
			t.Errorf("Stdout = %q, want %q", res.Stdout, "hello")
		}
		if res.ExitCode != 0 {
			t.Errorf("ExitCode = %d, want 0", res.ExitCode)
		}
	})

	t.Run("non-zero exit returns ExitError with stderr", func(t *testing.T) {
		t.Parallel()

		res, err := New().Run(context.Background(), Command{
			Name: "sh",
			Args: []string{"-c", "echo broken >&2; exit 3"},
		})
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("Run() error = %v, want *ExitError", err)
		}
		if exitErr.Code != 3 || res.ExitCode != 3 {
			t.Errorf("exit code = %d/%d, want 3", exitErr.Code, res.ExitCode)
		}
		if exitErr.Stderr != "broken" {
			t.Errorf("Stderr = %q, want %q", exitErr.Stderr, "broken")
		}
	})

	t.Run("timeout kills the process group", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		_, err := New(WithTimeout(200*time.Millisecond)).Run(context.Background(), Command{
			Name: "sh",
			Args: []string{"-c", "sleep 30 & sleep 30; wait"},
		})
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Run() error = %v, want ErrTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			t.Errorf("Run() took %s after timeout", elapsed)
		}
	})

	t.Run("parent cancellation is not reported as timeout", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := New(WithTimeout(time.Minute)).Run(ctx, Command{Name: "sleep", Args: []string{"30"}})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
		if errors.Is(err, ErrTimeout) {
			t.Error("cancellation should not be ErrTimeout")
		}
	})

	t.Run("writes output to log file", func(t *testing.T) {
		t.Parallel()

		logPath := filepath.Join(t.TempDir(), "logs", "app_scan.log")
		_, err := New().Run(context.Background(), Command{
			Name:    "sh",
			Args:    []string{"-c", "echo out; echo err >&2"},
			LogPath: logPath,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("failed to read log: %v", err)
		}
		if !strings.Contains(string(data), "out") || !strings.Contains(string(data), "err") {
			t.Errorf("log = %q, want both streams", data)
		}
	})

	t.Run("logs every stdout line", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		_, err := New(WithLogger(logger)).Run(context.Background(), Command{
			Name: "sh",
			Args: []string{"-c", "X=downloaded; echo $X-app.jar; printf tail"},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		out := logs.String()
		for _, want := range []string{"downloaded-app.jar", "msg=tail", "command=sh"} {
			if !strings.Contains(out, want) {
				t.Errorf("log does not contain %q:\n%s", want, out)
			}
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()

		_, err := New().Run(context.Background(), Command{Name: "scanpipe-no-such-tool"})
		if !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("Run() error = %v, want exec.ErrNotFound", err)
		}
	})

	t.Run("runs in directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		res, err := New().Run(context.Background(), Command{
			Name:    "pwd",
			Dir:     dir,
			Capture: true,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(res.Stdout)))
		want, _ := filepath.EvalSymlinks(dir)
		if got != want {
			t.Errorf("pwd = %q, want %q", got, want)
		}
	})
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	tb := tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	if got := tb.String(); got != "defg" {
		t.Errorf("String() = %q, want %q", got, "defg")
	}
}

func TestLineLogger(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := newLineLogger(context.Background(), logger, "jfrog")

	_, _ = l.Write([]byte("first\r\nsec"))
	_, _ = l.Write([]byte("ond\nthi"))
	if got := strings.Count(logs.String(), "command=jfrog"); got != 2 {
		t.Fatalf("logged %d lines before Flush, want 2:\n%s", got, logs.String())
	}
	l.Flush()

	out := logs.String()
	for _, want := range []string{"msg=first ", "msg=second ", "msg=thi "} {
		if !strings.Contains(out, want) {
			t.Errorf("log does not contain %q:\n%s", want, out)
		}
	}
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	c := Command{Name: "jfrog", Args: []string{"rt", "s", "repo/"}}
	if got := c.String(); got != "jfrog rt s repo/" {
		t.Errorf("String() = %q", got)
	}
}
