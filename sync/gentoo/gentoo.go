// Package gentoo syncs the Gentoo ebuild repository snapshot.
//
// The snapshot tar carries per-package Manifest files whose DIST lines
// hold multi-algorithm checksums, and an md5-cache tree whose SRC_URI
// values map distfiles back to upstream URLs. Joining the two yields
// checksummed refs before any artifact is fetched.
package gentoo

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sync/driver"
)

const defaultSnapshotURL = `https://distfiles.gentoo.org/snapshots/gentoo-latest.tar.xz`

func init() {
	driver.Register("gentoo", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Syncer walks one ebuild snapshot tar.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a gentoo Syncer.
func NewSyncer(opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		url:    opt.Root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = defaultSnapshotURL
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return "gentoo" }

// srcEntry is one SRC_URI input joined against its Manifest checksums
// after the walk.
type srcEntry struct {
	pkg      string
	version  string
	filename string
	url      string
}

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/gentoo/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gentoo: fetching snapshot: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("gentoo: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("gentoo: opening snapshot stream: %w", err)
	}
	defer body.Close()

	artifacts := make(map[string]ManifestEntry)
	var sources []srcEntry
	if err := s.walk(ctx, b, body, artifacts, &sources); err != nil {
		return err
	}
	return s.join(ctx, b, artifacts, sources)
}

// walk collects Manifest DIST entries and md5-cache SRC_URI inputs in
// one pass; tar member order between the two trees is not guaranteed.
func (s *Syncer) walk(ctx context.Context, b *driver.Batcher, r io.Reader, artifacts map[string]ManifestEntry, sources *[]srcEntry) error {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("gentoo: walking snapshot tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.TrimPrefix(h.Name, "./")
		// Strip the dated top-level directory (gentoo-20240101/...).
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		switch {
		case path.Base(name) == "Manifest" && strings.Count(name, "/") == 2:
			if err := readManifest(tr, artifacts); err != nil {
				b.Skip(ctx, "unreadable Manifest: "+name)
			}
		case strings.HasPrefix(name, "metadata/md5-cache/") && strings.Count(name, "/") == 3:
			entry := path.Base(name)
			pkg, version, err := parsePkgnameVersion(entry)
			if err != nil {
				b.Skip(ctx, "unparseable cache entry name: "+entry)
				continue
			}
			category := path.Base(path.Dir(name))
			buf, err := io.ReadAll(io.LimitReader(tr, 1<<20))
			if err != nil {
				return fmt.Errorf("gentoo: reading cache entry: %w", err)
			}
			for filename, url := range parseSrcURI(string(buf)) {
				*sources = append(*sources, srcEntry{
					pkg:      category + "/" + pkg,
					version:  version,
					filename: filename,
					url:      url,
				})
			}
		}
	}
}

func (s *Syncer) join(ctx context.Context, b *driver.Batcher, artifacts map[string]ManifestEntry, sources []srcEntry) error {
	for _, src := range sources {
		if !driver.IsTarArtifactURL(src.url) {
			continue
		}
		entry, ok := artifacts[src.filename]
		if !ok || entry.BLAKE2b == "" {
			b.Skip(ctx, "distfile without blake2b checksum")
			continue
		}
		d, err := srctrace.ParseDigest("blake2b:" + entry.BLAKE2b)
		if err != nil {
			b.Skip(ctx, "malformed blake2b in Manifest")
			continue
		}
		if err := b.Ref(ctx, srctrace.NewRef(d, "gentoo", src.pkg, src.version, src.url)); err != nil {
			return err
		}
		known, err := b.Known(ctx, d)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		if err := b.Fetch(ctx, src.url, nil); err != nil {
			return err
		}
	}
	return nil
}

func readManifest(r io.Reader, artifacts map[string]ManifestEntry) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "DIST ") {
			continue
		}
		e, err := parseManifestEntry(line)
		if err != nil {
			return err
		}
		artifacts[e.Filename] = *e
	}
	return sc.Err()
}
