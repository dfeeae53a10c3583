// Package ingest turns queued tasks into stored artifacts.
//
// Each task runs through a small FSM: the archive bytes are spooled
// locally, hashed and enumerated in one pass, persisted with their
// checksum aliases, and any nested archives or lockfiles found inside
// re-enter the pipeline as new tasks.
package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore"
	"github.com/srctrace/srctrace/ingest/tarpkg"
)

// DefaultMaxDepth bounds how deep nested archives are expanded.
const DefaultMaxDepth = 4

// Archiver is the slice of the bucket client the controller needs.
type Archiver interface {
	Put(ctx context.Context, chksum srctrace.Digest, r io.Reader) (compressed, uncompressed int64, err error)
	Get(ctx context.Context, chksum srctrace.Digest) (io.ReadCloser, error)
}

// Options holds the dependencies of a Controller.
type Options struct {
	Store   datastore.Store
	Fetcher *Fetcher
	// Archive is the bucket the raw bytes land in. Nil disables
	// archival, and with it nested-archive expansion.
	Archive Archiver
	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int
}

func (o *Options) maxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return DefaultMaxDepth
}

// Controller is a control structure for ingesting one archive.
//
// Controller is implemented as an FSM.
type Controller struct {
	// holds dependencies for a Controller
	*Options
	// exactly one of fetch or expand is set, depending on the task
	fetch  *srctrace.FetchTask
	expand *srctrace.ExpandTask
	// the locally spooled archive bytes. populated by Fetching.
	spool io.ReadSeekCloser
	// what the walk learned. populated by Hashing.
	summary *tarpkg.Summary
	// set when the artifact already existed before this run
	known bool
	// the current state of the controller
	currentState State
}

// New constructs a controller given an Options struct.
func New(opts *Options) *Controller {
	return &Controller{
		Options:      opts,
		currentState: Pending,
	}
}

// Ingest runs a fetch task to completion and returns the canonical
// digest of the stored artifact.
func (c *Controller) Ingest(ctx context.Context, t *srctrace.FetchTask) (srctrace.Digest, error) {
	if err := ctx.Err(); err != nil {
		return srctrace.Digest{}, err
	}
	c.fetch = t
	ctx = zlog.ContextWithValues(ctx,
		"component", "ingest/Controller.Ingest",
		"url", t.URL)
	zlog.Info(ctx).Msg("starting ingest")
	err := c.run(ctx)
	return c.chksum(), err
}

// Expand runs an expand task: one nested archive entry of an already
// stored artifact.
func (c *Controller) Expand(ctx context.Context, t *srctrace.ExpandTask) (srctrace.Digest, error) {
	if err := ctx.Err(); err != nil {
		return srctrace.Digest{}, err
	}
	c.expand = t
	ctx = zlog.ContextWithValues(ctx,
		"component", "ingest/Controller.Expand",
		"parent", t.Parent.String(),
		"path", t.Path)
	zlog.Info(ctx).Msg("starting expand")
	err := c.run(ctx)
	return c.chksum(), err
}

func (c *Controller) chksum() srctrace.Digest {
	if c.summary == nil {
		return srctrace.Digest{}
	}
	return c.summary.Inner.SHA256
}

// Run executes each stateFunc and blocks until either an error occurs
// or a Terminal state is encountered.
func (c *Controller) run(ctx context.Context) (err error) {
	var next State
	defer func() {
		if c.spool != nil {
			if e := c.spool.Close(); e != nil {
				zlog.Warn(ctx).Err(e).Msg("unable to clean up spool")
			}
			c.spool = nil
		}
	}()

	for err == nil && c.currentState != Terminal {
		ctx := zlog.ContextWithValues(ctx, "state", c.currentState.String())
		next, err = stateToStateFunc[c.currentState](ctx, c)
		switch {
		case errors.Is(err, nil) && !errors.Is(ctx.Err(), nil):
			// The passed-in context reports an error the stateFunc
			// didn't notice; drop out of the loop.
			err = ctx.Err()
			continue
		case errors.Is(err, nil):
			// OK
		case errors.Is(err, context.Canceled):
			continue
		default:
			c.currentState = TaskError
			zlog.Error(ctx).
				Err(err).
				Msg("error during ingest")
			continue
		}
		if next == Terminal {
			break
		}
		c.currentState = next
	}
	return err
}
