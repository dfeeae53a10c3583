// Package rpm syncs createrepo-style source repositories.
//
// Fedora and openSUSE publish their source RPMs behind a
// repodata/repomd.xml index pointing at a compressed primary.xml.
package rpm

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	version "github.com/knqyf263/go-rpm-version"
	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sync/driver"
)

var roots = map[string]string{
	"fedora":   `https://dl.fedoraproject.org/pub/fedora/linux/development/rawhide/Everything/source/tree`,
	"opensuse": `https://download.opensuse.org/tumbleweed/repo/src-oss`,
}

func init() {
	for v := range roots {
		vendor := v
		driver.Register(vendor, func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
			return NewSyncer(vendor, opt)
		})
	}
}

// Syncer walks one source repository's primary index and announces a
// fetch per source RPM it has not imported yet.
type Syncer struct {
	client *http.Client
	vendor string
	root   string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a Syncer for "fedora" or "opensuse".
func NewSyncer(vendor string, opt driver.FactoryOptions) (*Syncer, error) {
	root, ok := roots[vendor]
	if !ok {
		return nil, fmt.Errorf("rpm: unknown vendor %q", vendor)
	}
	s := &Syncer{
		client: opt.Client,
		vendor: vendor,
		root:   root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if opt.Root != "" {
		s.root = opt.Root
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return s.vendor }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/rpm/Syncer.Sync")

	md, err := s.fetchRepoMD(ctx)
	if err != nil {
		return err
	}
	loc, err := md.PrimaryLocation(s.root)
	if err != nil {
		return err
	}
	zlog.Debug(ctx).Str("url", loc).Msg("fetching primary index")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpm: fetching primary: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("rpm: unexpected status fetching %q: %s", loc, res.Status),
		}
	}
	// Primary indexes come gzip- or zstd-compressed depending on the
	// distribution; sniff instead of trusting the file extension.
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("rpm: opening primary stream: %w", err)
	}
	defer body.Close()

	type candidate struct {
		evr  string
		href string
	}
	newest := make(map[string]candidate)
	err = parsePrimary(body, func(p *Package) error {
		if p.Arch != "src" {
			b.Skip(ctx, "non-source package in source repo")
			return nil
		}
		if p.Name == "" || p.Location.Href == "" {
			b.Skip(ctx, "package element missing name or location")
			return nil
		}
		evr := p.Version.EVR()
		if prev, ok := newest[p.Name]; ok {
			v := version.NewVersion(evr)
			if !v.GreaterThan(version.NewVersion(prev.evr)) {
				return nil
			}
		}
		newest[p.Name] = candidate{evr: evr, href: p.Location.Href}
		return nil
	})
	if err != nil {
		return err
	}

	for name, c := range newest {
		ok, err := b.Imported(ctx, s.vendor, name, c.evr)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		err = b.Fetch(ctx, fmt.Sprintf("%s/%s", s.root, c.href), &srctrace.DownloadRef{
			Vendor:  s.vendor,
			Package: name,
			Version: c.evr,
		})
		if err != nil {
			return err
		}
		if err := b.MarkImported(ctx, s.vendor, name, c.evr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) fetchRepoMD(ctx context.Context) (*RepoMD, error) {
	u := s.root + "/repodata/repomd.xml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpm: fetching repomd: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("rpm: unexpected status fetching %q: %s", u, res.Status),
		}
	}
	var md RepoMD
	if err := xml.NewDecoder(res.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("rpm: decoding repomd: %w", err)
	}
	return &md, nil
}
