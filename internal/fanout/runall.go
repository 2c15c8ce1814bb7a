package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrDuplicateKey is returned when two input items share a key.
// Results are correlated by key, so duplicates would silently overwrite
// each other.
var ErrDuplicateKey = errors.New("duplicate item key")

// Submitter accepts tasks for asynchronous execution. *Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// Hooks observe per-item execution. Both functions are optional and are
// called from worker goroutines.
type Hooks struct {
	OnStart func(key string)
	OnDone  func(key string, elapsed time.Duration, err error)
}

type runOptions struct {
	maxConcurrency int64
	hooks          Hooks
}

// Option configures RunAll.
type Option func(*runOptions)

// WithMaxConcurrency bounds how many items of this call are in flight at
// once, on top of the pool's own worker count. Zero or negative means no
// extra bound.
func WithMaxConcurrency(n int) Option {
	return func(o *runOptions) {
		o.maxConcurrency = int64(n)
	}
}

// WithHooks installs per-item observers.
func WithHooks(h Hooks) Option {
	return func(o *runOptions) {
		o.hooks = h
	}
}

// RunAll runs op for every item on pool and joins the results by key.
//
// Join semantics:
//   - success only when every item succeeded; the map holds one entry per key
//   - on the first failure no further items are admitted and queued items
//     that have not started are skipped, but items already running are
//     awaited before RunAll returns, so no external process is left behind
//   - the returned error is the first failure, wrapped with its item key
//
// op receives ctx, not a context cancelled by sibling failures; running
// items finish on their own terms.
func RunAll[T, R any](
	ctx context.Context,
	pool Submitter,
	items []T,
	key func(T) string,
	op func(context.Context, T) (R, error),
	opts ...Option,
) (map[string]R, error) {
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
	}

	results := make(map[string]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	limit := o.maxConcurrency
	if limit <= 0 || limit > int64(len(items)) {
		limit = int64(len(items))
	}
	sem := semaphore.NewWeighted(limit)

	admitCtx, stopAdmission := context.WithCancel(ctx)
	defer stopAdmission()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		stopAdmission()
	}

	for _, item := range items {
		k := key(item)

		if err := sem.Acquire(admitCtx, 1); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("item %q: panic: %v", k, r))
				}
			}()

			if admitCtx.Err() != nil {
				return
			}
			if o.hooks.OnStart != nil {
				o.hooks.OnStart(k)
			}

			start := time.Now()
			r, err := op(ctx, item)
			if o.hooks.OnDone != nil {
				o.hooks.OnDone(k, time.Since(start), err)
			}
			if err != nil {
				fail(fmt.Errorf("item %q: %w", k, err))
				return
			}

			mu.Lock()
			results[k] = r
			mu.Unlock()
		}

		if err := pool.Submit(admitCtx, task); err != nil {
			wg.Done()
			sem.Release(1)
			fail(err)
			break
		}
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}
	if len(results) < len(items) {
		// Only a cancelled parent context skips items without recording a failure.
		return nil, context.Cause(ctx)
	}
	return results, nil
}

// Collect returns the results in the order of items, looked up by key.
// Items without a result are skipped.
func Collect[T, R any](items []T, key func(T) string, results map[string]R) []R {
	out := make([]R, 0, len(results))
	for _, item := range items {
		if r, ok := results[key(item)]; ok {
			out = append(out, r)
		}
	}
	return out
}
