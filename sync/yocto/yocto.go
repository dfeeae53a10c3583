// Package yocto syncs the OpenEmbedded layer index.
//
// The layer index exposes recipe metadata as JSON, including the
// SRC_URI value of each recipe. URIs that still reference untracked
// bitbake variables after substitution are skipped.
package yocto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/sync/driver"
)

const defaultRecipesURL = `https://layers.openembedded.org/layerindex/api/recipes/?format=json&filter=layerbranch__branch__name:master`

func init() {
	driver.Register("yocto", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Recipe is one layer-index recipe record.
type Recipe struct {
	PN     string `json:"pn"`
	PV     string `json:"pv"`
	SrcURI string `json:"src_uri"`
}

// mirrorVars are the bitbake mirror defaults recipes lean on, from
// bitbake.conf.
var mirrorVars = map[string]string{
	"APACHE_MIRROR":          "https://archive.apache.org/dist",
	"CPAN_MIRROR":            "https://search.cpan.org/CPAN",
	"DEBIAN_MIRROR":          "http://ftp.debian.org/debian/pool",
	"GNOME_MIRROR":           "https://download.gnome.org/sources",
	"GNUPG_MIRROR":           "https://www.gnupg.org/ftp/gcrypt",
	"GNU_MIRROR":             "https://ftp.gnu.org/gnu",
	"KERNELORG_MIRROR":       "https://cdn.kernel.org/pub",
	"MLPREFIX":               "",
	"SAVANNAH_GNU_MIRROR":    "https://download.savannah.gnu.org/releases",
	"SAVANNAH_NONGNU_MIRROR": "http://download-mirror.savannah.nongnu.org/releases",
	"SOURCEFORGE_MIRROR":     "https://downloads.sourceforge.net",
	"TARGET_ARCH":            "x86_64",
	"XORG_MIRROR":            "https://www.x.org/releases",
}

// Syncer reads one layer-index recipe listing.
type Syncer struct {
	client *http.Client
	url    string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns a yocto Syncer.
func NewSyncer(opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		url:    opt.Root,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = defaultRecipesURL
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return "yocto" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/yocto/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("yocto: fetching recipe index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("yocto: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	var recipes []Recipe
	if err := json.NewDecoder(res.Body).Decode(&recipes); err != nil {
		return fmt.Errorf("yocto: decoding recipe index: %w", err)
	}
	for i := range recipes {
		if err := s.announce(ctx, b, &recipes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) announce(ctx context.Context, b *driver.Batcher, r *Recipe) error {
	if r.PN == "" || r.PV == "" {
		b.Skip(ctx, "recipe missing pn or pv")
		return nil
	}
	for _, uri := range strings.Fields(r.SrcURI) {
		url, ok := expandSrcURI(uri, r)
		if !ok {
			b.Skip(ctx, "src_uri with untracked variables")
			continue
		}
		if !driver.IsTarArtifactURL(url) {
			continue
		}
		ref := srctrace.NewRef(srctrace.Digest{}, "yocto", r.PN, r.PV, url)
		if err := b.Ref(ctx, ref); err != nil {
			return err
		}
		err := b.Fetch(ctx, url, &srctrace.DownloadRef{
			Vendor:  "yocto",
			Package: r.PN,
			Version: r.PV,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// expandSrcURI substitutes the bitbake variables this syncer tracks
// and strips fetcher parameters (";name=...").
func expandSrcURI(uri string, r *Recipe) (string, bool) {
	uri, _, _ = strings.Cut(uri, ";")
	vars := map[string]string{
		"PN": r.PN,
		"PV": r.PV,
		"BP": r.PN + "-" + r.PV,
	}
	for k, v := range mirrorVars {
		vars[k] = v
	}
	for {
		i := strings.Index(uri, "${")
		if i < 0 {
			break
		}
		j := strings.Index(uri[i:], "}")
		if j < 0 {
			return "", false
		}
		name := uri[i+2 : i+j]
		v, ok := vars[name]
		if !ok {
			return "", false
		}
		uri = uri[:i] + v + uri[i+j+1:]
	}
	return uri, true
}
