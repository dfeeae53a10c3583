package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/ingest/tarpkg"
	"github.com/srctrace/srctrace/objstore"
)

// hashArchive walks the spooled archive, producing the digest sets and
// the file listing in one pass.
func hashArchive(ctx context.Context, c *Controller) (State, error) {
	summary, err := tarpkg.Walk(ctx, c.spool)
	if err != nil {
		// A stream that doesn't parse as a tar won't on retry either.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = &srctrace.Error{
				Inner: err,
				Kind:  srctrace.ErrPermanent,
			}
		}
		return Terminal, err
	}
	c.summary = summary

	known, err := alreadyStored(ctx, c)
	if err != nil {
		return Terminal, fmt.Errorf("ingest: checking for existing artifact: %w", err)
	}
	c.known = known
	return Storing, nil
}

// alreadyStored reports whether the artifact row exists and, when an
// archive bucket is configured, whether the bucket copy does too. A
// row without its bucket object means an earlier attempt died between
// PutArtifact and archival; treating it as unknown re-runs archival
// and expansion, both of which are idempotent.
func alreadyStored(ctx context.Context, c *Controller) (bool, error) {
	art, err := c.Store.ResolveArtifact(ctx, c.summary.Inner.SHA256)
	switch {
	case errors.Is(err, nil):
	case errors.Is(err, srctrace.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
	if c.Archive == nil {
		return true, nil
	}
	// The bucket copy lives under the canonical digest.
	_, err = c.Store.GetBucketObject(ctx, objstore.ShardKey(art.Chksum))
	switch {
	case errors.Is(err, nil):
		return true, nil
	case errors.Is(err, srctrace.ErrNotFound):
		return false, nil
	}
	return false, err
}
