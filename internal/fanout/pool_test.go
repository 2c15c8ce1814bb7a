package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolExecutesTasks(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{Workers: 4, QueueSize: 8})

	var count atomic.Int32
	for range 20 {
		if err := p.Submit(context.Background(), func() { count.Add(1) }); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if got := count.Load(); got != 20 {
		t.Errorf("expected 20 executed tasks, got %d", got)
	}
}

func TestPoolBackpressure(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	// Occupy the only worker.
	if err := p.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	// Fill the only queue slot.
	if err := p.Submit(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	if p.Queued() != 1 {
		t.Errorf("expected 1 queued task, got %d", p.Queued())
	}

	// The next submission must block until its context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	close(release)
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	t.Run("submit after close fails", func(t *testing.T) {
		t.Parallel()

		p := NewPool(Config{Workers: 1, QueueSize: 1})
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}
		if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolClosed) {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("second close should be a no-op, got %v", err)
		}
	})

	t.Run("close drains queued tasks", func(t *testing.T) {
		t.Parallel()

		p := NewPool(Config{Workers: 1, QueueSize: 10})
		var count atomic.Int32
		for range 10 {
			if err := p.Submit(context.Background(), func() {
				time.Sleep(time.Millisecond)
				count.Add(1)
			}); err != nil {
				t.Fatal(err)
			}
		}
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}
		if got := count.Load(); got != 10 {
			t.Errorf("expected all 10 tasks to run before Close returned, got %d", got)
		}
	})
}

func TestPoolRecoversPanics(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{Workers: 1, QueueSize: 2})

	var ran atomic.Bool
	if err := p.Submit(context.Background(), func() { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(context.Background(), func() { ran.Store(true) }); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("expected the worker to survive the panic and run the next task")
	}
}

func TestNewPoolNormalizesSizes(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{})
	done := make(chan struct{})
	if err := p.Submit(context.Background(), func() { close(done) }); err != nil {
		t.Fatal(err)
	}
	<-done
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
