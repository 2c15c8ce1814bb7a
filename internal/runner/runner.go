package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrTimeout is returned when a tool exceeds the per-invocation timeout.
var ErrTimeout = errors.New("tool timed out")

// stderrTail is how much of stderr an ExitError keeps.
const stderrTail = 4096

// waitDelay bounds how long Wait blocks on pipes after the process is killed.
const waitDelay = 5 * time.Second

// Command is one external tool invocation.
type Command struct {
	// Name is the binary, resolved through PATH.
	Name string
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env is appended to the inherited environment.
	Env []string

	// LogPath, when set, receives stdout and stderr. The file is appended to.
	LogPath string

	// Capture keeps stdout in Result.Stdout.
	Capture bool
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result describes a finished invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Duration time.Duration
}

// ExitError is returned when a tool exits with a non-zero code.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.Code, e.Stderr)
}

// ToolRunner runs external tools. Stages depend on this interface so that
// tests can replace the real processes.
type ToolRunner interface {
	Run(ctx context.Context, c Command) (Result, error)
}

// Runner runs tools as child processes.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run starts c and waits for it. On timeout or cancellation the whole
// process group is killed.
func (r *Runner) Run(parent context.Context, c Command) (Result, error) {
	ctx := parent
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	configureProcess(cmd)
	cmd.Cancel = func() error { return terminateProcess(cmd) }
	cmd.WaitDelay = waitDelay

	var (
		stdout bytes.Buffer
		stderr tailBuffer
	)
	stderr.max = stderrTail
	lines := newLineLogger(ctx, r.logger, c.Name)
	outWriters := []io.Writer{lines}
	errWriters := []io.Writer{&stderr}
	if c.Capture {
		outWriters = append(outWriters, &stdout)
	}
	if c.LogPath != "" {
		logFile, err := openLog(c.LogPath)
		if err != nil {
			return Result{}, err
		}
		defer logFile.Close()
		outWriters = append(outWriters, logFile)
		errWriters = append(errWriters, logFile)
	}
	cmd.Stdout = io.MultiWriter(outWriters...)
	cmd.Stderr = io.MultiWriter(errWriters...)

	r.logger.DebugContext(ctx, "running tool", "command", c.String(), "dir", c.Dir)

	start := time.Now()
	err := cmd.Run()
	lines.Flush()
	res := Result{Duration: time.Since(start)}
	if c.Capture {
		res.Stdout = stdout.Bytes()
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		r.logger.DebugContext(ctx, "tool finished", "command", c.Name, "duration", res.Duration)
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if parent.Err() == nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s after %s", ErrTimeout, c.Name, r.timeout)
		}
		return res, fmt.Errorf("%s: %w", c.Name, parent.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{
			Name:   c.Name,
			Code:   exitErr.ExitCode(),
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}
	return res, fmt.Errorf("failed to run %s: %w", c.Name, err)
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path built from configured log dir
	if err != nil {
		return nil, fmt.Errorf("failed to open tool log: %w", err)
	}
	return f, nil
}

// maxLine bounds a buffered partial line; longer lines are logged in pieces.
const maxLine = 64 * 1024

// lineLogger splits the output written to it into lines and logs each one
// at debug level. Write is called from a single copying goroutine.
type lineLogger struct {
	ctx     context.Context
	logger  *slog.Logger
	command string
	buf     []byte
}

func newLineLogger(ctx context.Context, logger *slog.Logger, command string) *lineLogger {
	return &lineLogger{ctx: ctx, logger: logger, command: command}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) > maxLine {
		l.emit(l.buf)
		l.buf = l.buf[:0]
	}
	return len(p), nil
}

// Flush logs a trailing line that had no newline. Call it after the
// process has exited.
func (l *lineLogger) Flush() {
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	l.logger.DebugContext(l.ctx, string(bytes.TrimRight(line, "\r")), "command", l.command)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
