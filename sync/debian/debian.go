// Package debian syncs apt Sources control indexes.
//
// Debian, Ubuntu and Kali all publish xz-compressed source indexes
// whose Checksums-Sha256 sections name the upstream orig tarballs.
package debian

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	version "github.com/knqyf263/go-deb-version"
	"github.com/quay/zlog"
	"github.com/ulikunitz/xz"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/sync/driver"
)

type mirror struct {
	index string
	pool  string
}

var mirrors = map[string]mirror{
	"debian": {
		index: `https://deb.debian.org/debian/dists/sid/main/source/Sources.xz`,
		pool:  `https://deb.debian.org/debian`,
	},
	"ubuntu": {
		index: `https://archive.ubuntu.com/ubuntu/dists/devel/main/source/Sources.xz`,
		pool:  `https://archive.ubuntu.com/ubuntu`,
	},
	"kali": {
		index: `https://http.kali.org/kali/dists/kali-rolling/main/source/Sources.xz`,
		pool:  `https://http.kali.org/kali`,
	},
}

func init() {
	for v := range mirrors {
		vendor := v
		driver.Register(vendor, func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
			return NewSyncer(vendor, opt)
		})
	}
}

// Syncer reads one Sources index and records a ref per orig tarball,
// enqueueing fetches for checksums with no stored content.
type Syncer struct {
	client *http.Client
	vendor string
	url    string
	pool   string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a Syncer for "debian", "ubuntu" or "kali".
func NewSyncer(vendor string, opt driver.FactoryOptions) (*Syncer, error) {
	m, ok := mirrors[vendor]
	if !ok {
		return nil, fmt.Errorf("debian: unknown vendor %q", vendor)
	}
	s := &Syncer{
		client: opt.Client,
		vendor: vendor,
		url:    opt.Root,
		pool:   m.pool,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = m.index
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return s.vendor }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/debian/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("debian: fetching index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("debian: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	xzr, err := xz.NewReader(res.Body)
	if err != nil {
		return fmt.Errorf("debian: opening index stream: %w", err)
	}

	// Newest version of each package, for fetch prioritization below.
	newest := make(map[string]string)
	type pending struct {
		url    string
		dl     srctrace.DownloadRef
		chksum srctrace.Digest
	}
	var fetches []pending

	err = parseSources(xzr, func(p *SourcePkg) error {
		if p.Version == "" || p.Directory == "" {
			b.Skip(ctx, "source stanza missing Version or Directory")
			return nil
		}
		if prev, ok := newest[p.Package]; !ok || newerVersion(p.Version, prev) {
			newest[p.Package] = p.Version
		}
		for _, c := range p.Checksums {
			if !isOrigTarball(c.Filename) {
				continue
			}
			d, err := srctrace.ParseDigest("sha256:" + c.SHA256)
			if err != nil {
				b.Skip(ctx, "malformed sha256 in checksum line")
				continue
			}
			ref := srctrace.NewRef(d, s.vendor, p.Package, p.Version, c.Filename)
			if err := b.Ref(ctx, ref); err != nil {
				return err
			}
			fetches = append(fetches, pending{
				url: fmt.Sprintf("%s/%s/%s", s.pool, strings.TrimSuffix(p.Directory, "/"), c.Filename),
				dl: srctrace.DownloadRef{
					Vendor:  s.vendor,
					Package: p.Package,
					Version: p.Version,
				},
				chksum: d,
			})
		}
		return nil
	}, func(reason string) {
		b.Skip(ctx, reason)
	})
	if err != nil {
		return err
	}

	for _, f := range fetches {
		// Only the newest version of a package is worth a download;
		// older rows stay as refs.
		if newest[f.dl.Package] != f.dl.Version {
			continue
		}
		ok, err := b.Known(ctx, f.chksum)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		dl := f.dl
		if err := b.Fetch(ctx, f.url, &dl); err != nil {
			return err
		}
	}
	return nil
}

// newerVersion reports whether a sorts after b as a Debian version.
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
