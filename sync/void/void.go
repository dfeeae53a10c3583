// Package void syncs the void-packages build-template tree.
//
// Templates carry distfiles URLs and matching sha256 checksums in
// order, so refs arrive already resolved against upstream content.
package void

import (
	"archive/tar"
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

const defaultSnapshotURL = `https://github.com/void-linux/void-packages/archive/refs/heads/master.tar.gz`

func init() {
	driver.Register("void", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Syncer walks one void-packages snapshot tar.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a void Syncer.
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
func (s *Syncer) Name() string { return "void" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/void/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("void: fetching snapshot: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("void: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("void: opening snapshot stream: %w", err)
	}
	defer body.Close()

	tr := tar.NewReader(body)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("void: walking snapshot tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg || !isTemplate(h.Name) {
			continue
		}
		t, err := parseTemplate(io.LimitReader(tr, 1<<20))
		if err != nil {
			return err
		}
		if err := s.announce(ctx, b, t); err != nil {
			return err
		}
	}
}

func (s *Syncer) announce(ctx context.Context, b *driver.Batcher, t *Template) error {
	if t.Pkgname == "" || t.Version == "" {
		b.Skip(ctx, "template missing pkgname or version")
		return nil
	}
	if len(t.Distfiles) != len(t.Checksum) {
		b.Skip(ctx, "template distfiles/checksum length mismatch")
		return nil
	}
	for i, url := range t.Distfiles {
		// Explicit renames ("url>name") only change the local name.
		url, _, _ = strings.Cut(url, ">")
		if !driver.IsTarArtifactURL(url) {
			continue
		}
		d, err := srctrace.ParseDigest("sha256:" + t.Checksum[i])
		if err != nil {
			b.Skip(ctx, "malformed checksum in template")
			continue
		}
		if err := b.Ref(ctx, srctrace.NewRef(d, "void", t.Pkgname, t.Version, url)); err != nil {
			return err
		}
		known, err := b.Known(ctx, d)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		if err := b.Fetch(ctx, url, nil); err != nil {
			return err
		}
	}
	return nil
}

// isTemplate matches <top>/srcpkgs/<name>/template members.
func isTemplate(name string) bool {
	name = strings.TrimPrefix(name, "./")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.HasPrefix(name, "srcpkgs/") &&
		path.Base(name) == "template" &&
		strings.Count(name, "/") == 2
}
