// Package stagex syncs the stagex package manifest tree.
//
// Each package carries a package.toml whose sources pin exact sha256
// hashes and mirror URLs with a small {placeholder} interpolation
// scheme.
package stagex

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sync/driver"
)

const defaultSnapshotURL = `https://codeberg.org/stagex/stagex/archive/main.tar.gz`

func init() {
	driver.Register("stagex", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Syncer walks one stagex repository snapshot.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a stagex Syncer.
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
func (s *Syncer) Name() string { return "stagex" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/stagex/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("stagex: fetching snapshot: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("stagex: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("stagex: opening snapshot stream: %w", err)
	}
	defer body.Close()

	tr := tar.NewReader(body)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("stagex: walking snapshot tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg || path.Base(h.Name) != "package.toml" {
			continue
		}
		buf, err := io.ReadAll(io.LimitReader(tr, 1<<20))
		if err != nil {
			return fmt.Errorf("stagex: reading manifest: %w", err)
		}
		m, err := ParseManifest(buf)
		if err != nil {
			b.Skip(ctx, "unparseable package.toml: "+h.Name)
			continue
		}
		if err := s.announce(ctx, b, m); err != nil {
			return err
		}
	}
}

func (s *Syncer) announce(ctx context.Context, b *driver.Batcher, m *Manifest) error {
	refs, err := m.Refs()
	if err != nil {
		b.Skip(ctx, "manifest with unresolvable sources")
		return nil
	}
	for _, r := range refs {
		if !driver.IsTarArtifactURL(r.Filename) {
			continue
		}
		if err := b.Ref(ctx, &r); err != nil {
			return err
		}
		known, err := b.Known(ctx, r.Chksum)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		if err := b.Fetch(ctx, r.Filename, nil); err != nil {
			return err
		}
	}
	return nil
}
