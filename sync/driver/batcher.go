package driver

import (
	"context"
	"errors"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore"
)

// flushThreshold is how many refs accumulate before a batch upsert.
const flushThreshold = 500

// Batcher is the write side of a sync pass. It buffers ref upserts,
// writes import markers, and enqueues fetch tasks, keeping the
// Summary as it goes.
//
// Not safe for concurrent use; a sync pass is single-writer.
type Batcher struct {
	store   datastore.Store
	buf     []*srctrace.Ref
	summary Summary
}

// NewBatcher returns a Batcher writing through the given store.
func NewBatcher(store datastore.Store) *Batcher {
	return &Batcher{store: store}
}

// Ref buffers one ref upsert.
func (b *Batcher) Ref(ctx context.Context, ref *srctrace.Ref) error {
	b.buf = append(b.buf, ref)
	b.summary.Refs++
	if len(b.buf) >= flushThreshold {
		return b.flush(ctx)
	}
	return nil
}

// Imported reports whether the identity already carries an import
// marker, so a syncer can skip re-announcing work for it.
func (b *Batcher) Imported(ctx context.Context, vendor, pkg, version string) (bool, error) {
	_, err := b.store.GetPackage(ctx, vendor, pkg, version)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, srctrace.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Known reports whether content for the checksum is already stored,
// directly or through an alias.
func (b *Batcher) Known(ctx context.Context, chksum srctrace.Digest) (bool, error) {
	_, err := b.store.ResolveArtifact(ctx, chksum)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, srctrace.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Bump refreshes last_seen on every ref of the identity, keeping
// alive rows the current index still carries.
func (b *Batcher) Bump(ctx context.Context, vendor, pkg, version string) error {
	return b.store.BumpNamedRefs(ctx, vendor, pkg, version)
}

// MarkImported writes the import marker for the identity.
func (b *Batcher) MarkImported(ctx context.Context, vendor, pkg, version string) error {
	err := b.store.InsertPackage(ctx, &srctrace.Package{
		Vendor:  vendor,
		Package: pkg,
		Version: version,
	})
	if err != nil {
		return err
	}
	b.summary.Packages++
	return nil
}

// Fetch enqueues a download of the URL; dl, when non-nil, names the
// ref row the resulting checksum resolves.
func (b *Batcher) Fetch(ctx context.Context, url string, dl *srctrace.DownloadRef) error {
	t, err := srctrace.NewFetchTask(url, dl)
	if err != nil {
		return err
	}
	return b.Task(ctx, t)
}

// Task enqueues an arbitrary task.
func (b *Batcher) Task(ctx context.Context, t *srctrace.Task) error {
	if err := b.store.Enqueue(ctx, t); err != nil {
		return err
	}
	b.summary.Tasks++
	return nil
}

// Skip counts one malformed or filtered index entry.
func (b *Batcher) Skip(ctx context.Context, reason string) {
	b.summary.Skipped++
	zlog.Debug(ctx).Str("reason", reason).Msg("index entry skipped")
}

// Flush writes any buffered refs and returns the pass summary.
func (b *Batcher) Flush(ctx context.Context) (*Summary, error) {
	if err := b.flush(ctx); err != nil {
		return nil, err
	}
	s := b.summary
	return &s, nil
}

func (b *Batcher) flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.store.UpsertRefs(ctx, b.buf); err != nil {
		return err
	}
	b.buf = b.buf[:0]
	return nil
}
