// Package pacman syncs the Arch Linux packaging state repository.
//
// The state repo snapshot is a tar of one-line files, one per pkgbase,
// holding "pkgbase version tag". The tag names the packaging repo
// snapshot that pins the upstream sources.
package pacman

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sync/driver"
)

const (
	defaultStateURL = `https://gitlab.archlinux.org/archlinux/packaging/state/-/archive/main/state-main.tar.gz`
	snapshotURL     = `https://gitlab.archlinux.org/archlinux/packaging/packages/%s/-/archive/%s/%s-%s.tar.gz`
)

// defaultRepos are the state subtrees worth importing.
var defaultRepos = []string{"core-", "extra-"}

func init() {
	driver.Register("archlinux", func(_ context.Context, opt driver.FactoryOptions) (driver.Syncer, error) {
		return NewSyncer(opt)
	})
}

// Syncer walks one state-repo snapshot.
type Syncer struct {
	client *http.Client
	url    string
	repos  []string
}

var _ driver.Syncer = (*Syncer)(nil)

// NewSyncer returns an archlinux Syncer.
func NewSyncer(opt driver.FactoryOptions) (*Syncer, error) {
	s := &Syncer{
		client: opt.Client,
		url:    opt.Root,
		repos:  defaultRepos,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.url == "" {
		s.url = defaultStateURL
	}
	return s, nil
}

// Name implements driver.Syncer.
func (s *Syncer) Name() string { return "archlinux" }

// Sync implements driver.Syncer.
func (s *Syncer) Sync(ctx context.Context, b *driver.Batcher) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sync/pacman/Syncer.Sync")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("pacman: fetching state repo: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("pacman: unexpected status fetching %q: %s", s.url, res.Status),
		}
	}
	body, _, err := zreader.Reader(res.Body)
	if err != nil {
		return fmt.Errorf("pacman: opening state stream: %w", err)
	}
	defer body.Close()

	tr := tar.NewReader(body)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("pacman: walking state tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg || !s.matchesRepo(h.Name) {
			continue
		}
		buf, err := io.ReadAll(io.LimitReader(tr, 4096))
		if err != nil {
			return fmt.Errorf("pacman: reading state entry: %w", err)
		}
		pkgbase, version, tag, ok := parseStateLine(string(buf))
		if !ok {
			b.Skip(ctx, "malformed state entry: "+h.Name)
			continue
		}
		if err := b.Bump(ctx, "archlinux", pkgbase, version); err != nil {
			return err
		}
		imported, err := b.Imported(ctx, "archlinux", pkgbase, tag)
		if err != nil {
			return err
		}
		if imported {
			continue
		}
		url := fmt.Sprintf(snapshotURL, pkgbase, tag, pkgbase, tag)
		err = b.Fetch(ctx, url, &srctrace.DownloadRef{
			Vendor:  "archlinux",
			Package: pkgbase,
			Version: version,
		})
		if err != nil {
			return err
		}
		if err := b.MarkImported(ctx, "archlinux", pkgbase, tag); err != nil {
			return err
		}
	}
}

// matchesRepo reports whether the tar member is a state entry in one
// of the imported repos.
func (s *Syncer) matchesRepo(name string) bool {
	name = strings.TrimPrefix(name, "./")
	// Strip the snapshot top-level directory (state-main/...).
	_, rest, ok := strings.Cut(name, "/")
	if !ok {
		return false
	}
	for _, repo := range s.repos {
		if strings.HasPrefix(rest, repo) {
			return true
		}
	}
	return false
}

// parseStateLine splits "pkgbase version tag".
func parseStateLine(line string) (pkgbase, version, tag string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return "", "", "", false
	}
	return fields[0], fields[1], fields[2], true
}
