package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/ingest/tarpkg"
	"github.com/srctrace/srctrace/internal/chksum"
	"github.com/srctrace/srctrace/objstore"
)

// storeArtifact persists everything the walk produced: the artifact
// row, its checksum aliases, lockfiles found inside, the resolved ref
// and the bucket copy.
func storeArtifact(ctx context.Context, c *Controller) (State, error) {
	inner := c.summary.Inner.SHA256
	ctx = zlog.ContextWithValues(ctx, "chksum", inner.String())

	if err := c.Store.PutArtifact(ctx, inner, c.summary.Files); err != nil {
		return Terminal, fmt.Errorf("ingest: storing artifact: %w", err)
	}
	if err := c.Store.RegisterChecksums(ctx, c.summary.Inner, inner, "tar"); err != nil {
		return Terminal, fmt.Errorf("ingest: registering inner aliases: %w", err)
	}
	if err := c.Store.RegisterChecksums(ctx, c.summary.Outer, inner, c.summary.OuterLabel()); err != nil {
		return Terminal, fmt.Errorf("ingest: registering outer aliases: %w", err)
	}

	for i := range c.summary.SBOMs {
		if err := storeSBOM(ctx, c, inner, &c.summary.SBOMs[i]); err != nil {
			return Terminal, err
		}
	}

	if c.fetch != nil && c.fetch.SuccessRef != nil {
		err := c.Store.ResolveRef(ctx, *c.fetch.SuccessRef, c.fetch.URL, inner)
		if err != nil {
			return Terminal, fmt.Errorf("ingest: resolving ref: %w", err)
		}
	}

	if c.Archive != nil && !c.known {
		if err := archiveSpool(ctx, c, inner); err != nil {
			return Terminal, err
		}
	}
	return Expanding, nil
}

func storeSBOM(ctx context.Context, c *Controller, inner srctrace.Digest, e *tarpkg.SBOMEntry) error {
	docsum := chksum.Sum256(e.Data)
	doc := &srctrace.SBOM{
		Chksum: docsum,
		Strain: e.Strain,
		Data:   string(e.Data),
	}
	if err := c.Store.PutSBOM(ctx, doc); err != nil {
		return fmt.Errorf("ingest: storing sbom: %w", err)
	}
	ref := &srctrace.SBOMRef{
		FromArchive: inner,
		Strain:      e.Strain,
		Chksum:      docsum,
		Path:        e.Path,
	}
	if err := c.Store.PutSBOMRef(ctx, ref); err != nil {
		return fmt.Errorf("ingest: storing sbom ref: %w", err)
	}
	task, err := srctrace.NewIndexSBOMTask(e.Strain, docsum)
	if err != nil {
		return err
	}
	if err := c.Store.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("ingest: enqueueing sbom index: %w", err)
	}
	zlog.Info(ctx).
		Str("strain", e.Strain).
		Str("path", e.Path).
		Str("sbom", docsum.String()).
		Msg("stored lockfile")
	return nil
}

// archiveSpool copies the raw spooled bytes into the bucket and
// records the accounting row.
func archiveSpool(ctx context.Context, c *Controller, inner srctrace.Digest) error {
	if _, err := c.spool.Seek(0, io.SeekStart); err != nil {
		return err
	}
	compressed, uncompressed, err := c.Archive.Put(ctx, inner, c.spool)
	if err != nil {
		return err
	}
	key := objstore.ShardKey(inner)
	if err := c.Store.InsertBucketObject(ctx, key, compressed, uncompressed); err != nil {
		return fmt.Errorf("ingest: recording bucket object: %w", err)
	}
	return nil
}
