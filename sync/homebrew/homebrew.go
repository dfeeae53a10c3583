// Package homebrew syncs the formulae.brew.sh JSON API.
package homebrew

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/sync/driver"
)

const defaultFormulaURL = `https://formulae.brew.sh/api/formula.json`

func init() {
	driver.Register("homebrew", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Formula is one entry of the formula API dump, pruned to the source
// pointer fields.
type Formula struct {
	Name     string   `json:"name"`
	Versions Versions `json:"versions"`
	URLs     URLSet   `json:"urls"`
	Revision int      `json:"revision"`
}

type Versions struct {
	Stable string `json:"stable"`
}

type URLSet struct {
	Stable SourceURL `json:"stable"`
}

type SourceURL struct {
	URL      string `json:"url"`
	Tag      string `json:"tag"`
	Revision string `json:"revision"`
	Checksum string `json:"checksum"`
}

// Syncer reads one formula dump.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a homebrew Syncer.
func NewSyncer(opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		url:    opt.Root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = defaultFormulaURL
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return "homebrew" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/homebrew/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("homebrew: fetching formula dump: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("homebrew: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	var formulas []Formula
	if err := json.NewDecoder(res.Body).Decode(&formulas); err != nil {
		return fmt.Errorf("homebrew: decoding formula dump: %w", err)
	}
	for i := range formulas {
		if err := s.announce(ctx, b, &formulas[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) announce(ctx context.Context, b *driver.Batcher, f *Formula) error {
	if f.Name == "" || f.Versions.Stable == "" {
		b.Skip(ctx, "formula missing name or stable version")
		return nil
	}
	stable := f.URLs.Stable
	if stable.Checksum == "" {
		// Formulae building from a bare git tag carry no source
		// checksum; nothing to content-address against.
		b.Skip(ctx, "formula without source checksum")
		return nil
	}
	d, err := srctrace.ParseDigest("sha256:" + stable.Checksum)
	if err != nil {
		b.Skip(ctx, "malformed checksum in formula")
		return nil
	}
	version := fmt.Sprintf("%s-%d", f.Versions.Stable, f.Revision)
	if err := b.Ref(ctx, srctrace.NewRef(d, "homebrew", f.Name, version, stable.URL)); err != nil {
		return err
	}
	known, err := b.Known(ctx, d)
	if err != nil {
		return err
	}
	if known || !driver.IsTarArtifactURL(stable.URL) {
		return nil
	}
	return b.Fetch(ctx, stable.URL, &srctrace.DownloadRef{
		Vendor:  "homebrew",
		Package: f.Name,
		Version: version,
	})
}
