package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/srctrace/srctrace"
)

// Fetch limits.
const (
	// DefaultMaxArchiveSize caps how much of an upstream response is
	// accepted. Mirrors that serve unbounded bodies hit this.
	DefaultMaxArchiveSize = 512 << 20
	// DefaultFetchTimeout bounds one download attempt.
	DefaultFetchTimeout = 15 * time.Minute

	userAgent = "srctrace (source archive importer)"
)

// Fetcher spools upstream archives to local files.
//
// Fetches of the same URL are deduplicated while in flight and the
// spooled file is shared between the waiters, refcounted so it is
// removed once the last one closes.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	sf      singleflight.Group
	root    string
	maxSize int64
	timeout time.Duration

	mu sync.Mutex
	rc map[string]int
}

// FetcherOption tweaks a Fetcher.
type FetcherOption func(*Fetcher)

// WithRateLimit caps the request rate against upstreams.
func WithRateLimit(limit rate.Limit, burst int) FetcherOption {
	return func(f *Fetcher) { f.limiter = rate.NewLimiter(limit, burst) }
}

// WithMaxSize overrides DefaultMaxArchiveSize.
func WithMaxSize(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxSize = n }
}

// WithTimeout overrides DefaultFetchTimeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithSpoolDir sets the directory downloads land in. Empty uses the
// system temp directory.
func WithSpoolDir(dir string) FetcherOption {
	return func(f *Fetcher) {
		if dir != "" {
			f.root = dir
		}
	}
}

// NewFetcher returns a ready Fetcher. A nil client uses
// http.DefaultClient.
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Inf, 1),
		root:    os.TempDir(),
		maxSize: DefaultMaxArchiveSize,
		timeout: DefaultFetchTimeout,
		rc:      make(map[string]int),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Spool is a downloaded archive on local disk. Closing the last open
// Spool of a URL removes the backing file.
type Spool struct {
	*os.File
	release func() error
}

// Close implements io.Closer.
func (s *Spool) Close() error {
	err := s.File.Close()
	if e := s.release(); e != nil && err == nil {
		err = e
	}
	return err
}

// Fetch downloads the URL into the spool directory, deduplicated
// against concurrent fetches of the same URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Spool, error) {
	key := spoolKey(url)
	tgt := filepath.Join(f.root, key)
	select {
	case res := <-f.sf.DoChan(key, func() (interface{}, error) {
		return nil, f.realize(ctx, url, tgt)
	}):
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	fd, err := os.Open(tgt)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// The file got removed while we were waiting on the lock.
		f.sf.Forget(key)
		f.mu.Unlock()
		return f.Fetch(ctx, url)
	case err != nil:
		f.mu.Unlock()
		return nil, err
	}
	f.rc[key]++
	f.mu.Unlock()
	return &Spool{File: fd, release: func() error { return f.forget(key, tgt) }}, nil
}

func (f *Fetcher) forget(key, tgt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.rc[key]
	if !ok {
		return nil
	}
	ct--
	if ct == 0 {
		delete(f.rc, key)
		defer f.sf.Forget(key)
		return os.Remove(tgt)
	}
	f.rc[key] = ct
	return nil
}

// realize is the inner function used inside the singleflight. It
// downloads to a temporary name and renames into place on success.
func (f *Fetcher) realize(ctx context.Context, url, tgt string) error {
	ctx = zlog.ContextWithValues(ctx,
		"component", "ingest/Fetcher.realize",
		"url", url)
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, done := context.WithTimeout(ctx, f.timeout)
	defer done()

	rm := true
	fd, err := os.CreateTemp(f.root, "fetch.*")
	if err != nil {
		return fmt.Errorf("fetcher: unable to create file: %w", err)
	}
	name := fd.Name()
	defer func() {
		if err := fd.Close(); err != nil {
			zlog.Warn(ctx).Err(err).Msg("unable to close spool file")
		}
		if rm {
			if err := os.Remove(name); err != nil {
				zlog.Warn(ctx).Err(err).Msg("unable to remove unsuccessful fetch")
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &srctrace.Error{
			Inner: err,
			Kind:  srctrace.ErrPermanent,
		}
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := f.client.Do(req)
	if err != nil {
		return &srctrace.Error{
			Inner:   err,
			Kind:    srctrace.ErrTransient,
			Message: "fetcher: request failed",
		}
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode >= 400 && res.StatusCode < 500:
		// The response body may indicate what's going on, capped so
		// it doesn't flood the log.
		bodyStart, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return &srctrace.Error{
			Kind:    srctrace.ErrPermanent,
			Message: fmt.Sprintf("fetcher: unexpected status: %s (body starts: %q)", res.Status, bodyStart),
		}
	default:
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: "fetcher: unexpected status: " + res.Status,
		}
	}

	n, err := io.Copy(fd, io.LimitReader(res.Body, f.maxSize+1))
	switch {
	case err != nil:
		return &srctrace.Error{
			Inner:   err,
			Kind:    srctrace.ErrTransient,
			Message: "fetcher: copying response",
		}
	case n > f.maxSize:
		return &srctrace.Error{
			Kind:    srctrace.ErrTransient,
			Message: fmt.Sprintf("fetcher: response larger than %d bytes", f.maxSize),
		}
	}
	if err := os.Rename(name, tgt); err != nil {
		return err
	}
	rm = false
	zlog.Debug(ctx).Int64("size", n).Msg("fetch ok")
	return nil
}

func spoolKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "spool." + hex.EncodeToString(sum[:8])
}
