// Package driver holds the interfaces and helpers for vendor index
// syncers.
//
// A syncer reads one vendor's package index and reports every source
// artifact reference it finds. It never fetches artifacts itself; it
// announces work by enqueueing tasks through the Batcher.
package driver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Syncer walks one vendor's package index.
type Syncer interface {
	// Name is the unique, stable name of this syncer. It doubles as the
	// vendor tag on the refs it produces.
	Name() string
	// Sync performs one full pass over the index, reporting findings to
	// the Batcher. Malformed index entries are skipped and counted, not
	// returned as errors; an error return means the pass as a whole
	// failed and produced nothing trustworthy.
	Sync(ctx context.Context, b *Batcher) error
}

// Summary tallies one sync pass.
type Summary struct {
	// Refs is the number of refs upserted.
	Refs int
	// Packages is the number of new import markers written.
	Packages int
	// Tasks is the number of fetch tasks enqueued.
	Tasks int
	// Skipped is the number of malformed or filtered index entries.
	Skipped int
}

func (s *Summary) String() string {
	return fmt.Sprintf("refs=%d packages=%d tasks=%d skipped=%d",
		s.Refs, s.Packages, s.Tasks, s.Skipped)
}

var pkg = struct {
	sync.Mutex
	fs map[string]SyncerFactory
}{
	fs: make(map[string]SyncerFactory),
}

// SyncerFactory constructs a configured Syncer.
type SyncerFactory func(ctx context.Context, opt FactoryOptions) (Syncer, error)

// FactoryOptions is the common configuration handed to every factory.
type FactoryOptions struct {
	// Client is the HTTP client index downloads go through.
	Client *http.Client
	// Root overrides the default index URL when non-empty.
	Root string
}

// Register makes a syncer factory available by name.
//
// Meant to be called from package init functions; duplicate names
// panic.
func Register(name string, f SyncerFactory) {
	pkg.Lock()
	defer pkg.Unlock()
	if _, ok := pkg.fs[name]; ok {
		panic("duplicate syncer factory: " + name)
	}
	pkg.fs[name] = f
}

// Registered reports the names of all registered syncer factories.
func Registered() []string {
	pkg.Lock()
	defer pkg.Unlock()
	out := make([]string, 0, len(pkg.fs))
	for n := range pkg.fs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Factory looks up a registered factory by name.
func Factory(name string) (SyncerFactory, bool) {
	pkg.Lock()
	defer pkg.Unlock()
	f, ok := pkg.fs[name]
	return f, ok
}
