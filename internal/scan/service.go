package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/findings"
	scanlog "github.com/nao1215/scanpipe/internal/log"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/pipeline"
	"github.com/nao1215/scanpipe/internal/status"
)

var (
	// ErrShuttingDown is returned by Start after Shutdown and is the
	// cancellation cause of runs still in flight at shutdown.
	ErrShuttingDown = errors.New("scan service is shutting down")

	// ErrRunTimeout is the cancellation cause of a run that exceeded the
	// run timeout.
	ErrRunTimeout = errors.New("run timed out")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Response is returned synchronously by Start.
type Response struct {
	RequestID  uuid.UUID `json:"requestId"`
	Status     string    `json:"status"`
	WorkUnitID string    `json:"workUnitId"`
	SPK        string    `json:"spk"`
}

// Result describes a finished run.
type Result struct {
	RequestID uuid.UUID
	Request   model.ScanRequest
	Output    model.StageOutput
	Err       error
	Duration  time.Duration
}

// RunObserver is told about every run. *metrics.Metrics implements it.
type RunObserver interface {
	RunStarted(technology model.Technology)
	RunFinished(technology model.Technology, elapsed time.Duration, err error)
}

// Service is the pipeline entry point. Start returns as soon as the
// request is recorded; the pipeline runs on its own goroutine.
type Service struct {
	executor *pipeline.Executor
	tracker  *status.Tracker
	findings findings.Store
	logger   *slog.Logger

	runTimeout time.Duration
	observer   RunObserver
	onDone     func(Result)

	baseCtx context.Context
	cancel  context.CancelCauseFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRunTimeout bounds every run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.runTimeout = d
	}
}

// WithObserver reports run starts and outcomes.
func WithObserver(o RunObserver) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithFindings enables Findings queries.
func WithFindings(store findings.Store) Option {
	return func(s *Service) {
		s.findings = store
	}
}

// WithCompletionHandler calls fn after the terminal status of a run is
// written. fn runs on the run's goroutine.
func WithCompletionHandler(fn func(Result)) Option {
	return func(s *Service) {
		s.onDone = fn
	}
}

// NewService creates a Service.
func NewService(executor *pipeline.Executor, tracker *status.Tracker, opts ...Option) *Service {
	s := &Service{executor: executor, tracker: tracker}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.baseCtx, s.cancel = context.WithCancelCause(context.Background())
	return s
}

// Start records a new run as "Initiated" and launches its pipeline.
//
// An invalid request fails before anything is written. An unsupported
// technology is written as "Error" right after "Initiated" and returned
// synchronously; no stage runs.
func (s *Service) Start(ctx context.Context, req model.ScanRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if tech, err := model.ParseTechnology(string(req.Technology)); err == nil {
		req.Technology = tech
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Response{}, ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	id := uuid.New()
	resp := Response{RequestID: id, Status: model.StatusInitiated, WorkUnitID: req.WorkUnitID, SPK: req.SPK}
	ctx = scanlog.WithRequestID(ctx, id.String())

	if err := s.tracker.Upsert(ctx, id, model.StatusInitiated, "", status.WithRequest(req)); err != nil {
		s.wg.Done()
		return Response{}, err
	}

	if !s.executor.Registry().Supports(req.Technology) {
		defer s.wg.Done()
		cause := fmt.Errorf("%w: %q", pipeline.ErrUnsupportedTechnology, req.Technology)
		if err := s.tracker.Upsert(ctx, id, model.StatusError, cause.Error()); err != nil {
			return resp, errors.Join(cause, err)
		}
		s.logger.WarnContext(ctx, "scan rejected", "technology", req.Technology, "error", cause)
		resp.Status = model.StatusError
		return resp, cause
	}

	s.logger.InfoContext(ctx, "scan initiated",
		"technology", req.Technology,
		"work_unit", req.WorkUnitID,
		"spk", req.SPK,
	)

	go s.run(id, req)

	return resp, nil
}

func (s *Service) run(id uuid.UUID, req model.ScanRequest) {
	defer s.wg.Done()

	ctx := scanlog.WithRequestID(s.baseCtx, id.String())
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.runTimeout, ErrRunTimeout)
		defer cancel()
	}

	if s.observer != nil {
		s.observer.RunStarted(req.Technology)
	}

	start := time.Now()
	out, err := s.execute(ctx, id, req)
	res := Result{RequestID: id, Request: req, Output: out, Err: err, Duration: time.Since(start)}

	s.complete(ctx, res)
}

func (s *Service) execute(ctx context.Context, id uuid.UUID, req model.ScanRequest) (out model.StageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
	}()
	return s.executor.Run(ctx, id, req)
}

// complete writes the terminal status. The write uses a context that is
// not cancelled with the run, so a timed out run still ends as "Error".
func (s *Service) complete(ctx context.Context, res Result) {
	wctx := context.WithoutCancel(ctx)

	var writeErr error
	if res.Err != nil {
		notes := res.Err.Error()
		if cause := context.Cause(ctx); cause != nil && !errors.Is(res.Err, cause) {
			notes = fmt.Sprintf("%s (%v)", notes, cause)
		}
		writeErr = s.tracker.Upsert(wctx, res.RequestID, model.StatusError, notes)
		s.logger.ErrorContext(wctx, "scan failed", "duration", res.Duration, "error", res.Err)
	} else {
		writeErr = s.tracker.Upsert(wctx, res.RequestID, model.StatusCompleted, res.Output.StatusMessage)
		if writeErr == nil {
			s.logger.InfoContext(wctx, "scan completed", "duration", res.Duration, "summary", res.Output.StatusMessage)
		}
	}
	if writeErr != nil {
		// The row still shows an intermediate status; the run must not be
		// reported as a success.
		res.Err = errors.Join(res.Err, fmt.Errorf("failed to record terminal status: %w", writeErr))
		s.logger.ErrorContext(wctx, "scan outcome not recorded", "duration", res.Duration, "error", writeErr)
	}

	if s.observer != nil {
		s.observer.RunFinished(res.Request.Technology, res.Duration, res.Err)
	}
	if s.onDone != nil {
		s.onDone(res)
	}
}

// Wait blocks until every started run has finished or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting runs, cancels those in flight and waits for
// their terminal status to be written or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel(ErrShuttingDown)
	return s.Wait(ctx)
}

// Status returns the status row of a run.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*model.RunStatus, error) {
	return s.tracker.Get(ctx, id)
}

// Details returns the per-artifact rows of a run.
func (s *Service) Details(ctx context.Context, id uuid.UUID) ([]model.StatusDetail, error) {
	if _, err := s.tracker.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.tracker.Details(ctx, id)
}

// History returns the runs of a work unit, newest first.
func (s *Service) History(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	return s.tracker.History(ctx, workUnitID, spk)
}

// Findings returns up to limit findings of a run; limit <= 0 means all.
func (s *Service) Findings(ctx context.Context, id uuid.UUID, limit int) ([]model.Finding, error) {
	if s.findings == nil {
		return nil, errors.New("findings store is not configured")
	}
	if _, err := s.tracker.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.findings.ListFindings(ctx, id, limit)
}

// Delete removes a finished run with its detail rows and findings.
// Runs that are still in flight cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rs, err := s.tracker.Get(ctx, id)
	if err != nil {
		return err
	}
	if !model.IsTerminal(rs.Status) {
		return fmt.Errorf("%w: %s is %q", ErrRunInFlight, id, rs.Status)
	}
	return s.tracker.Delete(ctx, id)
}

// ErrRunInFlight is returned when deleting a run that has not finished.
var ErrRunInFlight = errors.New("run is still in flight")
