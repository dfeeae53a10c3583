// Package sync drives vendor index syncers against the datastore.
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/srctrace/srctrace/datastore"
	"github.com/srctrace/srctrace/sync/driver"
)

// DefaultInterval is how often background syncs run.
const DefaultInterval = 6 * time.Hour

// Manager oversees the construction and invocation of vendor syncers.
//
// The Manager may be used in a one-shot fashion, configured to run
// background jobs, or both.
type Manager struct {
	store datastore.Store
	// max in-flight syncers.
	batchSize int
	// sync interval used once Manager.Start is invoked, otherwise this
	// field is not used.
	interval time.Duration
	client   *http.Client
	// names limits a run to the listed syncers; empty means all
	// registered.
	names []string
}

// ManagerOption configures NewManager.
type ManagerOption func(*Manager)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithBatchSize caps in-flight syncers.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager) { m.batchSize = n }
}

// WithSyncers limits runs to the named syncers.
func WithSyncers(names ...string) ManagerOption {
	return func(m *Manager) { m.names = names }
}

// NewManager returns a manager ready to have its Start or Run methods
// called.
func NewManager(ctx context.Context, store datastore.Store, client *http.Client, opts ...ManagerOption) (*Manager, error) {
	if client == nil {
		client = http.DefaultClient
	}
	m := &Manager{
		store:     store,
		batchSize: runtime.GOMAXPROCS(0),
		interval:  DefaultInterval,
		client:    client,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start runs syncers at the configured interval until the context is
// canceled.
//
// Start is designed to be run as a goroutine.
func (m *Manager) Start(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/Manager.Start")
	if m.interval == 0 {
		return fmt.Errorf("manager must be configured with an interval to start")
	}

	zlog.Info(ctx).Msg("starting initial sync")
	if err := m.Run(ctx); err != nil {
		zlog.Error(ctx).Err(err).Msg("errors during sync run")
	}

	zlog.Info(ctx).Str("interval", m.interval.String()).Msg("starting background syncs")
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := m.Run(ctx); err != nil {
				zlog.Error(ctx).Err(err).Msg("errors during sync run")
			}
		}
	}
}

// Run constructs the selected syncers and runs them in batchSize
// batches.
//
// Run is safe to call at any time, regardless of whether background
// syncs are running.
func (m *Manager) Run(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/Manager.Run")

	names := m.names
	if len(names) == 0 {
		names = driver.Registered()
	}
	opt := driver.FactoryOptions{Client: m.client}

	syncers := make([]driver.Syncer, 0, len(names))
	for _, n := range names {
		f, ok := driver.Factory(n)
		if !ok {
			return fmt.Errorf("no syncer registered as %q", n)
		}
		s, err := f(ctx, opt)
		if err != nil {
			zlog.Error(ctx).Err(err).Str("syncer", n).Msg("failed constructing syncer, excluding from run")
			continue
		}
		syncers = append(syncers, s)
	}
	zlog.Info(ctx).Int("total", len(syncers)).Int("batchSize", m.batchSize).Msg("running syncers")

	sem := semaphore.NewWeighted(int64(m.batchSize))
	errChan := make(chan error, len(syncers)+1)
	for i := range syncers {
		if err := sem.Acquire(ctx, 1); err != nil {
			zlog.Error(ctx).Err(err).Msg("sem acquire failed, ending sync run")
			break
		}
		go func(s driver.Syncer) {
			defer sem.Release(1)
			if err := ctx.Err(); err != nil {
				return
			}
			if _, err := Run(ctx, m.store, s); err != nil {
				errChan <- fmt.Errorf("%v: %w", s.Name(), err)
			}
		}(syncers[i])
	}

	// All in-flight goroutines are guaranteed to release their sems, so
	// the context here is intentionally Background.
	sem.Acquire(context.Background(), int64(m.batchSize))

	close(errChan)
	if len(errChan) != 0 {
		var b strings.Builder
		b.WriteString("sync errors:\n")
		for err := range errChan {
			fmt.Fprintf(&b, "%v\n", err)
		}
		return errors.New(b.String())
	}
	return nil
}

// Run executes one sync pass of a single syncer.
//
// Each pass gets a unique identifier carried through the logging
// context so interleaved runs stay attributable.
func Run(ctx context.Context, store datastore.Store, s driver.Syncer) (*driver.Summary, error) {
	id := uuid.New()
	ctx = zlog.ContextWithValues(ctx,
		"component", "sync/Run",
		"syncer", s.Name(),
		"run_id", id.String())
	zlog.Info(ctx).Msg("sync start")

	b := driver.NewBatcher(store)
	start := time.Now()
	if err := s.Sync(ctx, b); err != nil {
		zlog.Error(ctx).Err(err).Msg("sync failed")
		return nil, err
	}
	summary, err := b.Flush(ctx)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("sync flush failed")
		return nil, err
	}
	zlog.Info(ctx).
		Str("summary", summary.String()).
		Dur("elapsed", time.Since(start)).
		Msg("sync done")
	return summary, nil
}
