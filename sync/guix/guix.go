// Package guix syncs the Guix packages.json dump.
//
// Origins carry an SRI-style "sha256-<base64>" integrity value; only
// flat (plain file) hashes can be content-addressed here, recursive
// hashes cover unpacked trees.
package guix

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sync/driver"
)

const defaultDumpURL = `https://guix.gnu.org/packages.json`

func init() {
	driver.Register("guix", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Package is one entry of the dump.
type Package struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Source  []Source `json:"source"`
}

// Source is one origin of a package.
type Source struct {
	Type           string   `json:"type"`
	URLs           []string `json:"urls"`
	Integrity      string   `json:"integrity"`
	OutputHashAlgo string   `json:"outputHashAlgo"`
	OutputHashMode string   `json:"outputHashMode"`
}

// Digest converts the SRI integrity value into a Digest. Only
// sha256 values are convertible.
func (s *Source) Digest() (srctrace.Digest, error) {
	b64, ok := strings.CutPrefix(s.Integrity, "sha256-")
	if !ok {
		return srctrace.Digest{}, fmt.Errorf("guix: unsupported integrity %q", s.Integrity)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return srctrace.Digest{}, fmt.Errorf("guix: malformed integrity %q: %w", s.Integrity, err)
	}
	return srctrace.ParseDigest("sha256:" + hex.EncodeToString(raw))
}

// Syncer reads one packages.json dump.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a guix Syncer.
func NewSyncer(opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		url:    opt.Root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = defaultDumpURL
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return "guix" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/guix/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("guix: fetching dump: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("guix: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	// The dump is served gzipped from some mirrors and plain from
	// others.
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("guix: opening dump stream: %w", err)
	}
	defer body.Close()

	var packages []Package
	if err := json.NewDecoder(body).Decode(&packages); err != nil {
		return fmt.Errorf("guix: decoding dump: %w", err)
	}
	for i := range packages {
		if err := s.announce(ctx, b, &packages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) announce(ctx context.Context, b *driver.Batcher, p *Package) error {
	for i := range p.Source {
		src := &p.Source[i]
		if src.Type != "url" {
			continue
		}
		if src.OutputHashMode != "flat" {
			b.Skip(ctx, "origin with non-flat hash mode")
			continue
		}
		d, err := src.Digest()
		if err != nil {
			b.Skip(ctx, "origin with unusable integrity value")
			continue
		}
		if len(src.URLs) == 0 {
			b.Skip(ctx, "origin without urls")
			continue
		}
		url := src.URLs[0]
		if !driver.IsTarArtifactURL(url) {
			continue
		}
		if err := b.Ref(ctx, srctrace.NewRef(d, "guix", p.Name, p.Version, url)); err != nil {
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
