package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore"
)

// Worker defaults.
const (
	defaultLease        = 30 * time.Minute
	defaultPollInterval = time.Minute
	backoffBase         = 30 * time.Second
	backoffCap          = 6 * time.Hour
)

// Worker drains the task queue with a pool of goroutines.
//
// Transient failures are retried with exponential backoff persisted on
// the task row; anything else dead-letters immediately.
type Worker struct {
	store datastore.Store
	opts  *Options
	n     int
	lease time.Duration
	poll  time.Duration
}

// WorkerOption tweaks a Worker.
type WorkerOption func(*Worker)

// WithWorkers sets the pool size. Defaults to GOMAXPROCS.
func WithWorkers(n int) WorkerOption {
	return func(w *Worker) { w.n = n }
}

// WithLease sets the claim lease duration.
func WithLease(d time.Duration) WorkerOption {
	return func(w *Worker) { w.lease = d }
}

// WithPollInterval sets how long an idle worker waits between claim
// attempts.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.poll = d }
}

// NewWorker returns a ready Worker.
func NewWorker(store datastore.Store, opts *Options, wo ...WorkerOption) *Worker {
	w := &Worker{
		store: store,
		opts:  opts,
		n:     runtime.GOMAXPROCS(0),
		lease: defaultLease,
		poll:  defaultPollInterval,
	}
	for _, o := range wo {
		o(w)
	}
	return w
}

// Run blocks, processing tasks until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "ingest/Worker.Run")
	zlog.Info(ctx).Int("workers", w.n).Msg("worker pool starting")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.n; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := w.store.Claim(ctx, w.lease)
		switch {
		case errors.Is(err, nil):
		case errors.Is(err, srctrace.ErrNotFound):
			if err := sleep(ctx, w.poll+jitter(w.poll/2)); err != nil {
				return err
			}
			continue
		case errors.Is(err, context.Canceled):
			return err
		default:
			// A flaky database shouldn't kill the pool.
			zlog.Warn(ctx).Err(err).Msg("claim failed")
			if err := sleep(ctx, w.poll); err != nil {
				return err
			}
			continue
		}
		w.do(ctx, task)
	}
}

func (w *Worker) do(ctx context.Context, task *srctrace.Task) {
	ctx = zlog.ContextWithValues(ctx,
		"task", task.Key,
		"retries", fmt.Sprint(task.Retries))
	err := w.dispatch(ctx, task)
	switch {
	case errors.Is(err, nil):
		if err := w.store.Complete(ctx, task); err != nil {
			zlog.Warn(ctx).Err(err).Msg("unable to complete task")
		}
	case errors.Is(err, context.Canceled):
		// Shutdown mid-task. The lease lapses and another worker
		// picks it up; don't count it as a failure.
	case errors.Is(err, srctrace.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		delay := backoff(task.Retries)
		if err := w.store.Fail(ctx, task, err, time.Now().Add(delay)); err != nil {
			zlog.Warn(ctx).Err(err).Msg("unable to record task failure")
		}
	default:
		if err := w.store.Bury(ctx, task, err); err != nil {
			zlog.Warn(ctx).Err(err).Msg("unable to bury task")
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, task *srctrace.Task) error {
	switch task.Kind {
	case srctrace.TaskFetch:
		var t srctrace.FetchTask
		if err := json.Unmarshal(task.Data, &t); err != nil {
			return payloadErr(err)
		}
		_, err := New(w.opts).Ingest(ctx, &t)
		return err
	case srctrace.TaskExpand:
		var t srctrace.ExpandTask
		if err := json.Unmarshal(task.Data, &t); err != nil {
			return payloadErr(err)
		}
		_, err := New(w.opts).Expand(ctx, &t)
		return err
	case srctrace.TaskIndexSBOM:
		var t srctrace.IndexSBOMTask
		if err := json.Unmarshal(task.Data, &t); err != nil {
			return payloadErr(err)
		}
		return IndexSBOM(ctx, w.store, &t)
	}
	return &srctrace.Error{
		Kind:    srctrace.ErrPermanent,
		Message: fmt.Sprintf("unknown task kind %q", task.Kind),
	}
}

func payloadErr(err error) error {
	return &srctrace.Error{
		Inner:   err,
		Kind:    srctrace.ErrPermanent,
		Message: "malformed task payload",
	}
}

// backoff computes the delay before attempt retries+1. The jitter
// keeps a burst of same-aged failures from re-arriving in lockstep.
func backoff(retries int) time.Duration {
	if retries > 16 {
		retries = 16
	}
	d := backoffBase << uint(retries)
	if d > backoffCap {
		d = backoffCap
	}
	return d + jitter(d/2)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
