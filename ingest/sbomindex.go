package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/datastore"
	"github.com/srctrace/srctrace/sbom"
)

// strainVendors maps a lockfile strain to the vendor name its
// components are recorded under.
var strainVendors = map[string]string{
	sbom.StrainCargoLock:    "crates.io",
	sbom.StrainPackageLock:  "registry.npmjs.org",
	sbom.StrainYarnLock:     "registry.yarnpkg.com",
	sbom.StrainBunLock:      "registry.npmjs.org",
	sbom.StrainComposerLock: "packagist.org",
	sbom.StrainUvLock:       "files.pythonhosted.org",
}

// IndexSBOM parses a stored lockfile into refs and, for components
// pinned to an official registry with a usable checksum, enqueues
// fetches of the components themselves.
func IndexSBOM(ctx context.Context, store datastore.Store, t *srctrace.IndexSBOMTask) error {
	ctx = zlog.ContextWithValues(ctx,
		"component", "ingest/IndexSBOM",
		"strain", t.Strain,
		"sbom", t.Chksum.String())

	doc, err := store.GetSBOM(ctx, t.Chksum, t.Strain)
	if err != nil {
		return err
	}
	pkgs, err := sbom.Parse(doc.Strain, doc.Data)
	if err != nil {
		// The document is stored verbatim; parse failures don't heal.
		return &srctrace.Error{
			Inner: err,
			Kind:  srctrace.ErrPermanent,
		}
	}
	vendor, ok := strainVendors[doc.Strain]
	if !ok {
		return &srctrace.Error{
			Kind:    srctrace.ErrPermanent,
			Message: fmt.Sprintf("no vendor mapping for strain %q", doc.Strain),
		}
	}

	var (
		refs    []*srctrace.Ref
		fetches []*srctrace.Task
	)
	for i := range pkgs {
		p := &pkgs[i]
		if p.Name == "" || p.Version == "" {
			continue
		}
		var d srctrace.Digest
		if p.Checksum != "" {
			// Checksums in unsupported families ("git:...") stay on
			// the ref as unresolved.
			if pd, err := srctrace.ParseDigest(p.Checksum); err == nil {
				d = pd
			}
		}
		refs = append(refs, srctrace.NewRef(d, vendor, p.Name, p.Version, p.URL))

		if doc.Strain != sbom.StrainCargoLock || !p.OfficialRegistry || d.IsZero() {
			continue
		}
		_, err := store.ResolveArtifact(ctx, d)
		switch {
		case errors.Is(err, nil):
			continue
		case errors.Is(err, srctrace.ErrNotFound):
		default:
			return err
		}
		task, err := srctrace.NewFetchTask(p.URL, &srctrace.DownloadRef{
			Vendor:  vendor,
			Package: p.Name,
			Version: p.Version,
		})
		if err != nil {
			return err
		}
		fetches = append(fetches, task)
	}

	if err := store.UpsertRefs(ctx, refs); err != nil {
		return fmt.Errorf("ingest: upserting lockfile refs: %w", err)
	}
	for _, task := range fetches {
		if err := store.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("ingest: enqueueing component fetch: %w", err)
		}
	}
	zlog.Info(ctx).
		Int("refs", len(refs)).
		Int("fetches", len(fetches)).
		Msg("indexed lockfile")
	return nil
}
