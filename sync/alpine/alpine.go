// Package alpine syncs APKINDEX-based distributions.
//
// Alpine and Wolfi both publish apk v2 indexes: two concatenated gzip
// streams, a signature followed by a tar holding the APKINDEX file.
package alpine

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"

	version "github.com/knqyf263/go-apk-version"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/sync/driver"
)

const (
	alpineIndexURL = `https://dl-cdn.alpinelinux.org/alpine/edge/main/x86_64/APKINDEX.tar.gz`
	wolfiIndexURL  = `https://packages.wolfi.dev/os/x86_64/APKINDEX.tar.gz`

	alpineSnapshotURL = `https://gitlab.alpinelinux.org/alpine/aports/-/archive/%s/aports-%s.tar.gz`
	wolfiSnapshotURL  = `https://github.com/wolfi-dev/os/archive/%s.tar.gz`
)

func init() {
	driver.Register("alpine", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer("alpine", opt)
	})
	driver.Register("wolfi", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer("wolfi", opt)
	})
}

// Syncer reads one APKINDEX and announces the aports (or os) snapshot
// of every origin/commit pair it has not imported yet.
type Syncer struct {
	client      *http.Client
	vendor      string
	url         string
	snapshotURL func(commit string) string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a Syncer for the given vendor, either "alpine" or
// "wolfi".
func NewSyncer(vendor string, opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		vendor: vendor,
		url:    opt.Root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	switch vendor {
	case "alpine":
		if s.url == "" {
			s.url = alpineIndexURL
		}
		s.snapshotURL = func(c string) string { return fmt.Sprintf(alpineSnapshotURL, c, c) }
	case "wolfi":
		if s.url == "" {
			s.url = wolfiIndexURL
		}
		s.snapshotURL = func(c string) string { return fmt.Sprintf(wolfiSnapshotURL, c) }
	default:
		return nil, fmt.Errorf("alpine: unknown vendor %q", vendor)
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return s.vendor }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/alpine/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("alpine: fetching index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("alpine: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	apkindex, err := openIndex(res.Body)
	if err != nil {
		return err
	}
	return s.walk(ctx, b, apkindex)
}

func (s *Syncer) walk(ctx context.Context, b *driver.Batcher, apkindex io.Reader) error {
	// One entry per origin, newest version wins. Indexes routinely
	// carry several subpackages and revisions of one origin.
	type candidate struct {
		version string
		commit  string
	}
	newest := make(map[string]candidate)
	err := parse(apkindex, func(p *Pkg) error {
		origin := p.Origin
		if origin == "" {
			origin = p.Package
		}
		if err := b.Bump(ctx, s.vendor, origin, p.Version); err != nil {
			return err
		}
		if p.Commit == "" {
			b.Skip(ctx, "apk package without commit")
			return nil
		}
		prev, ok := newest[origin]
		if ok && !newerVersion(p.Version, prev.version) {
			return nil
		}
		newest[origin] = candidate{version: p.Version, commit: p.Commit}
		return nil
	}, func(reason string) {
		b.Skip(ctx, reason)
	})
	if err != nil {
		return err
	}

	for origin, c := range newest {
		ok, err := b.Imported(ctx, s.vendor, origin, c.commit)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		zlog.Debug(ctx).
			Str("origin", origin).
			Str("commit", c.commit).
			Msg("queueing snapshot fetch")
		err = b.Fetch(ctx, s.snapshotURL(c.commit), &srctrace.DownloadRef{
			Vendor:  s.vendor,
			Package: origin,
			Version: c.version,
		})
		if err != nil {
			return err
		}
		if err := b.MarkImported(ctx, s.vendor, origin, c.commit); err != nil {
			return err
		}
	}
	return nil
}

// newerVersion reports whether a sorts after b as an apk version.
// Unparseable versions lose.
func newerVersion(a, b string) bool {
	av, err := version.NewVersion(a)
	if err != nil {
		return false
	}
	bv, err := version.NewVersion(b)
	if err != nil {
		return true
	}
	return av.GreaterThan(bv)
}

// openIndex positions the reader at the APKINDEX member of an apk v2
// index: skip the signature gzip stream, then walk the second stream's
// tar.
func openIndex(r io.Reader) (io.Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("alpine: opening signature stream: %w", err)
	}
	zr.Multistream(false)
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, fmt.Errorf("alpine: discarding signature stream: %w", err)
	}
	if err := zr.Reset(r); err != nil {
		return nil, fmt.Errorf("alpine: opening index stream: %w", err)
	}
	return findIndexEntry(zr)
}
