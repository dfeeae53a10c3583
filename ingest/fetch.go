package ingest

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/tmp"
	"github.com/srctrace/srctrace/internal/zreader"
)

// fetchArchive materializes the archive bytes into c.spool: from the
// upstream URL for fetch tasks, out of the archive bucket for expand
// tasks.
func fetchArchive(ctx context.Context, c *Controller) (State, error) {
	if c.fetch != nil {
		s, err := c.Fetcher.Fetch(ctx, c.fetch.URL)
		if err != nil {
			return Terminal, err
		}
		c.spool = s
		return Hashing, nil
	}

	parent, err := c.Archive.Get(ctx, c.expand.Parent)
	if err != nil {
		return Terminal, err
	}
	defer parent.Close()
	s, err := spoolEntry(ctx, parent, c.expand.Path)
	if err != nil {
		return Terminal, err
	}
	c.spool = s
	return Hashing, nil
}

// spoolEntry scans the parent archive for the named entry and copies
// its bytes to a local spool.
func spoolEntry(ctx context.Context, parent io.Reader, path string) (*tmp.File, error) {
	zr, _, err := zreader.Reader(parent)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening parent archive: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			// The entry listing promised this path; its absence means
			// the archived bytes changed, which retrying won't fix.
			return nil, &srctrace.Error{
				Kind:    srctrace.ErrPermanent,
				Message: fmt.Sprintf("ingest: entry %q not found in parent archive", path),
			}
		case err != nil:
			return nil, fmt.Errorf("ingest: walking parent archive: %w", err)
		}
		if h.Name != path || h.Typeflag != tar.TypeReg {
			continue
		}
		f, err := tmp.NewFile("", "expand.*")
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return nil, fmt.Errorf("ingest: spooling entry %q: %w", path, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		zlog.Debug(ctx).Str("path", path).Msg("spooled nested entry")
		return f, nil
	}
}
