package scan

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/database"
	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/pipeline"
	"github.com/nao1215/scanpipe/internal/status"
)

// recordingDB captures every status written, in order.
type recordingDB struct {
	*database.MemoryDB
	mu     sync.Mutex
	writes []string

	// hook, when set, runs before every write; a non-nil error fails it.
	hook func(model.StatusUpdate) error
}

func (r *recordingDB) UpsertStatus(ctx context.Context, u model.StatusUpdate) error {
	r.mu.Lock()
	r.writes = append(r.writes, u.Status)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		if err := hook(u); err != nil {
			return err
		}
	}
	return r.MemoryDB.UpsertStatus(ctx, u)
}

func (r *recordingDB) setHook(fn func(model.StatusUpdate) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

func (r *recordingDB) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.writes)
}

type runObserver struct {
	mu       sync.Mutex
	started  int
	finished []error
}

func (o *runObserver) RunStarted(model.Technology) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *runObserver) RunFinished(_ model.Technology, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, err)
}

type fixture struct {
	db      *recordingDB
	service *Service
	results chan Result
}

func newFixture(t *testing.T, stages []pipeline.Stage, opts ...Option) *fixture {
	t.Helper()

	db := &recordingDB{MemoryDB: database.NewMemoryDB()}
	logger := slog.New(slog.DiscardHandler)
	tracker := status.NewTracker(db, status.WithLogger(logger))

	reg := pipeline.NewRegistry(pipeline.WithRecorder(tracker))
	if err := reg.Register(model.TechnologyJava, stages...); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	results := make(chan Result, 4)
	opts = append([]Option{
		WithLogger(logger),
		WithFindings(db),
		WithCompletionHandler(func(r Result) { results <- r }),
	}, opts...)

	svc := NewService(pipeline.New(reg, pipeline.WithLogger(logger)), tracker, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return &fixture{db: db, service: svc, results: results}
}

func (f *fixture) await(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return Result{}
	}
}

var javaRequest = model.ScanRequest{Technology: model.TechnologyJava, WorkUnitID: "AIT-1", SPK: "spk-1"}

func searchStage() pipeline.Stage {
	return pipeline.StageFunc{
		StageName: "S1",
		Fn: func(context.Context, uuid.UUID, model.ScanRequest, model.StageOutput) (model.StageOutput, error) {
			return model.StageOutput{
				StatusMessage: "found 1 artifact",
				Items:         []model.ItemResult{{Key: "app.jar", Location: "repo/app.jar"}},
			}, nil
		},
	}
}

func downloadStage() pipeline.Stage {
	return pipeline.StageFunc{
		StageName: "S2",
		Fn: func(_ context.Context, _ uuid.UUID, _ model.ScanRequest, prev model.StageOutput) (model.StageOutput, error) {
			items := make([]model.ItemResult, 0, len(prev.Items))
			for _, it := range prev.Items {
				items = append(items, model.ItemResult{Key: it.Key, Location: "/local/" + it.Key, ParentKey: it.Key})
			}
			return model.StageOutput{StatusMessage: "downloaded", Items: items}, nil
		},
	}
}

func blockingStage() pipeline.Stage {
	return pipeline.StageFunc{
		StageName: "BLOCK",
		Fn: func(ctx context.Context, _ uuid.UUID, _ model.ScanRequest, _ model.StageOutput) (model.StageOutput, error) {
			<-ctx.Done()
			return model.StageOutput{}, context.Cause(ctx)
		},
	}
}

func TestService_Start(t *testing.T) {
	t.Parallel()

	t.Run("two stage run ends Completed", func(t *testing.T) {
		t.Parallel()

		obs := &runObserver{}
		f := newFixture(t, []pipeline.Stage{searchStage(), downloadStage()}, WithObserver(obs))

		resp, err := f.service.Start(t.Context(), javaRequest)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if resp.Status != model.StatusInitiated || resp.WorkUnitID != "AIT-1" || resp.SPK != "spk-1" {
			t.Errorf("Start() = %+v", resp)
		}
		if resp.RequestID == uuid.Nil {
			t.Error("Start() returned a nil request id")
		}

		res := f.await(t)
		if res.Err != nil {
			t.Fatalf("run error = %v", res.Err)
		}
		want := []model.ItemResult{{Key: "app.jar", Location: "/local/app.jar", ParentKey: "app.jar"}}
		if !slices.Equal(res.Output.Items, want) {
			t.Errorf("output items = %+v, want %+v", res.Output.Items, want)
		}

		wantWrites := []string{
			model.StatusInitiated,
			"S1 STARTED", "S1 COMPLETED",
			"S2 STARTED", "S2 COMPLETED",
			model.StatusCompleted,
		}
		if got := f.db.statuses(); !slices.Equal(got, wantWrites) {
			t.Errorf("status writes = %v, want %v", got, wantWrites)
		}

		rs, err := f.service.Status(t.Context(), resp.RequestID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if rs.Status != model.StatusCompleted || rs.WorkUnitID != "AIT-1" || rs.SPK != "spk-1" {
			t.Errorf("final row = %+v", rs)
		}
		if rs.Notes != "downloaded" {
			t.Errorf("final notes = %q, want last stage message", rs.Notes)
		}

		obs.mu.Lock()
		defer obs.mu.Unlock()
		if obs.started != 1 || len(obs.finished) != 1 || obs.finished[0] != nil {
			t.Errorf("observer started=%d finished=%v", obs.started, obs.finished)
		}
	})

	t.Run("unsupported technology is rejected synchronously", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{searchStage()})

		req := javaRequest
		req.Technology = "COBOL"
		resp, err := f.service.Start(t.Context(), req)
		if !errors.Is(err, pipeline.ErrUnsupportedTechnology) {
			t.Fatalf("Start() error = %v, want ErrUnsupportedTechnology", err)
		}
		if resp.Status != model.StatusError {
			t.Errorf("Start() status = %q", resp.Status)
		}

		want := []string{model.StatusInitiated, model.StatusError}
		if got := f.db.statuses(); !slices.Equal(got, want) {
			t.Errorf("status writes = %v, want %v", got, want)
		}
		details, err := f.service.Details(t.Context(), resp.RequestID)
		if err != nil {
			t.Fatalf("Details() error = %v", err)
		}
		if len(details) != 0 {
			t.Errorf("details = %v, want none", details)
		}
	})

	t.Run("technology is matched case-insensitively", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{searchStage()})

		req := javaRequest
		req.Technology = "java"
		if _, err := f.service.Start(t.Context(), req); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if res := f.await(t); res.Err != nil {
			t.Errorf("run error = %v", res.Err)
		}
	})

	t.Run("invalid request writes nothing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{searchStage()})

		req := javaRequest
		req.SPK = " "
		_, err := f.service.Start(t.Context(), req)
		if !errors.Is(err, ErrInvalidRequest) || !errors.Is(err, model.ErrMissingSPK) {
			t.Fatalf("Start() error = %v", err)
		}
		if got := f.db.statuses(); len(got) != 0 {
			t.Errorf("status writes = %v, want none", got)
		}
	})

	t.Run("failing stage ends Error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("artifact repository unreachable")
		failing := pipeline.StageFunc{
			StageName: "S2",
			Fn: func(context.Context, uuid.UUID, model.ScanRequest, model.StageOutput) (model.StageOutput, error) {
				return model.StageOutput{}, boom
			},
		}
		f := newFixture(t, []pipeline.Stage{searchStage(), failing, downloadStage()})

		resp, err := f.service.Start(t.Context(), javaRequest)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if res := f.await(t); !errors.Is(res.Err, boom) {
			t.Fatalf("run error = %v, want %v", res.Err, boom)
		}

		want := []string{
			model.StatusInitiated,
			"S1 STARTED", "S1 COMPLETED",
			"S2 STARTED", model.StageError,
			model.StatusError,
		}
		if got := f.db.statuses(); !slices.Equal(got, want) {
			t.Errorf("status writes = %v, want %v", got, want)
		}

		rs, err := f.service.Status(t.Context(), resp.RequestID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if rs.Status != model.StatusError || rs.Notes == "" {
			t.Errorf("final row = %+v", rs)
		}
	})
}

func TestService_TerminalWriteFailure(t *testing.T) {
	t.Parallel()

	obs := &runObserver{}
	f := newFixture(t, []pipeline.Stage{searchStage()}, WithObserver(obs))
	errStore := errors.New("disk full")
	f.db.setHook(func(u model.StatusUpdate) error {
		if u.Status == model.StatusCompleted {
			return errStore
		}
		return nil
	})

	resp, err := f.service.Start(context.Background(), javaRequest)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := f.await(t)

	if !errors.Is(res.Err, errStore) {
		t.Errorf("Result.Err = %v, want the store error", res.Err)
	}

	obs.mu.Lock()
	finished := slices.Clone(obs.finished)
	obs.mu.Unlock()
	if len(finished) != 1 || !errors.Is(finished[0], errStore) {
		t.Errorf("observer finished = %v, want one run failing with the store error", finished)
	}

	rs, err := f.service.Status(context.Background(), resp.RequestID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if rs.Status != model.StageCompleted("S1") {
		t.Errorf("Status = %q, want %q", rs.Status, model.StageCompleted("S1"))
	}
}

func TestService_StartConcurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []pipeline.Stage{searchStage()})

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	f.db.setHook(func(u model.StatusUpdate) error {
		if u.Status != model.StatusInitiated {
			return nil
		}
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
		return nil
	})

	slow := make(chan error, 1)
	go func() {
		_, err := f.service.Start(context.Background(), javaRequest)
		slow <- err
	}()
	<-entered

	fast := make(chan error, 1)
	go func() {
		_, err := f.service.Start(context.Background(), javaRequest)
		fast <- err
	}()

	select {
	case err := <-fast:
		if err != nil {
			t.Errorf("second Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("second Start() waited for the first one's status write")
	}

	close(release)
	if err := <-slow; err != nil {
		t.Errorf("first Start() error = %v", err)
	}
	f.await(t)
	f.await(t)
}

func TestService_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("run timeout writes Error", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{blockingStage()}, WithRunTimeout(20*time.Millisecond))

		resp, err := f.service.Start(t.Context(), javaRequest)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if res := f.await(t); !errors.Is(res.Err, ErrRunTimeout) {
			t.Fatalf("run error = %v, want ErrRunTimeout", res.Err)
		}

		rs, err := f.service.Status(context.Background(), resp.RequestID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if rs.Status != model.StatusError {
			t.Errorf("final status = %q, want %q", rs.Status, model.StatusError)
		}
	})

	t.Run("shutdown cancels runs in flight", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{blockingStage()})

		resp, err := f.service.Start(t.Context(), javaRequest)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.service.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}

		rs, err := f.service.Status(context.Background(), resp.RequestID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if rs.Status != model.StatusError {
			t.Errorf("final status = %q, want %q", rs.Status, model.StatusError)
		}

		if _, err := f.service.Start(context.Background(), javaRequest); !errors.Is(err, ErrShuttingDown) {
			t.Errorf("Start() after Shutdown error = %v, want ErrShuttingDown", err)
		}
	})

	t.Run("cancelled request context does not stop the run", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []pipeline.Stage{searchStage()})

		ctx, cancel := context.WithCancel(context.Background())
		if _, err := f.service.Start(ctx, javaRequest); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		cancel()

		if res := f.await(t); res.Err != nil {
			t.Errorf("run error = %v", res.Err)
		}
	})
}

func TestService_Queries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []pipeline.Stage{searchStage()})

	first, err := f.service.Start(t.Context(), javaRequest)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.await(t)

	t.Run("history lists the work unit runs", func(t *testing.T) {
		runs, err := f.service.History(t.Context(), "AIT-1", "")
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(runs) != 1 || runs[0].RequestID != first.RequestID {
			t.Errorf("History() = %+v", runs)
		}
	})

	t.Run("unknown run is not found", func(t *testing.T) {
		_, err := f.service.Findings(t.Context(), uuid.New(), 0)
		if !errors.Is(err, status.ErrNotFound) {
			t.Errorf("Findings() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("finished run can be deleted", func(t *testing.T) {
		if err := f.service.Delete(t.Context(), first.RequestID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := f.service.Status(t.Context(), first.RequestID); !errors.Is(err, status.ErrNotFound) {
			t.Errorf("Status() after Delete error = %v", err)
		}
	})
}

func TestService_DeleteInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []pipeline.Stage{blockingStage()})

	resp, err := f.service.Start(t.Context(), javaRequest)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.service.Delete(t.Context(), resp.RequestID); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("Delete() error = %v, want ErrRunInFlight", err)
	}
}
