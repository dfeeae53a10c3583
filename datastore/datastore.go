// Package datastore holds the interfaces the rest of the system uses
// to persist and query ingestion state.
//
// The relational store is the single source of truth and the only
// coordination point between sync runs and workers.
package datastore

import (
	"context"
	"time"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/chksum"
)

// Store is the full method set backed by one database.
type Store interface {
	ArtifactStore
	AliasStore
	RefStore
	PackageStore
	TaskQueue
	SBOMStore
	BucketStore
	StatsQuerier
	// Close frees any resources associated with the Store.
	Close(context.Context) error
}

// ArtifactStore persists content-addressed artifacts.
type ArtifactStore interface {
	// PutArtifact records the file listing for a checksum. It is
	// idempotent: a checksum already present only has its last_imported
	// timestamp refreshed; the stored listing is left as-is.
	PutArtifact(ctx context.Context, chksum srctrace.Digest, files []srctrace.FileEntry) error
	// GetArtifact is a direct lookup, no alias following.
	GetArtifact(ctx context.Context, chksum srctrace.Digest) (*srctrace.Artifact, error)
	// ResolveArtifact follows at most one alias or spelling hop and
	// returns the canonical artifact. Wraps srctrace.ErrNotFound if the
	// checksum is not known under any name.
	ResolveArtifact(ctx context.Context, chksum srctrace.Digest) (*srctrace.Artifact, error)
	// ArtifactsByAge walks artifacts oldest-import-first.
	ArtifactsByAge(ctx context.Context, fn func(*srctrace.Artifact) error) error
}

// AliasStore records checksum equivalences.
//
// The alias graph is constrained to a forest: alias chains and multiple
// incoming aliases on one target are rejected with srctrace.ErrConflict
// and never partially applied.
type AliasStore interface {
	// Merge installs the alias from → to.
	Merge(ctx context.Context, from, to srctrace.Digest, reason string) error
	// GetAlias returns the alias whose source is the given checksum.
	GetAlias(ctx context.Context, from srctrace.Digest) (*srctrace.Alias, error)
	// RegisterChecksums records the non-canonical digests of one
	// hashed stream as spellings of the canonical checksum. Spellings
	// are outside the alias forest; any number may name one canonical
	// checksum. The label names the stream, e.g. "tar" or "gz(tar)".
	RegisterChecksums(ctx context.Context, cs chksum.Checksums, canonical srctrace.Digest, label string) error
}

// RefStore persists discovered package → download-location pointers.
type RefStore interface {
	// UpsertRef inserts the ref if absent; a re-observed ref only has
	// last_seen refreshed and NULL columns filled in.
	UpsertRef(ctx context.Context, ref *srctrace.Ref) error
	// UpsertRefs applies a batch of upserts in one transaction.
	UpsertRefs(ctx context.Context, refs []*srctrace.Ref) error
	// ResolveRef fills in the checksum of the unresolved ref rows for
	// the named package identity, inserting a resolved row if none
	// exists.
	ResolveRef(ctx context.Context, dl srctrace.DownloadRef, filename string, chksum srctrace.Digest) error
	GetRef(ctx context.Context, chksum srctrace.Digest, vendor, pkg, version string) (*srctrace.Ref, error)
	GetNamedRef(ctx context.Context, vendor, pkg, version string) (*srctrace.Ref, error)
	// BumpNamedRefs refreshes last_seen on every ref of the identity.
	BumpNamedRefs(ctx context.Context, vendor, pkg, version string) error
	// RefsByChksum returns all refs pointing at the checksum, including
	// refs recorded under aliases of it.
	RefsByChksum(ctx context.Context, chksum srctrace.Digest) ([]srctrace.Ref, error)
	// SearchRefs looks up refs by package name, exact matches first,
	// then prefix matches, newest rows first.
	SearchRefs(ctx context.Context, query string, limit int) ([]srctrace.Ref, error)
}

// PackageStore keeps import markers per (vendor, package, version).
type PackageStore interface {
	InsertPackage(ctx context.Context, pkg *srctrace.Package) error
	GetPackage(ctx context.Context, vendor, pkg, version string) (*srctrace.Package, error)
}

// TaskQueue is the durable work queue drained by the worker pool.
type TaskQueue interface {
	// Enqueue inserts the task unless a task with the same key exists.
	Enqueue(ctx context.Context, task *srctrace.Task) error
	// Claim atomically picks one due task and locks it against other
	// claimers for the duration of the lease. Wraps srctrace.ErrNotFound
	// when nothing is due.
	Claim(ctx context.Context, lease time.Duration) (*srctrace.Task, error)
	// Complete removes a finished task.
	Complete(ctx context.Context, task *srctrace.Task) error
	// Fail bumps the retry counter, records the error text and delays
	// the next attempt until notBefore.
	Fail(ctx context.Context, task *srctrace.Task, taskErr error, notBefore time.Time) error
	// Bury dead-letters the task immediately, recording the error.
	// Used for failures that can never succeed on retry.
	Bury(ctx context.Context, task *srctrace.Task, taskErr error) error
	// DeadLetters lists tasks that exhausted their retries.
	DeadLetters(ctx context.Context, limit int) ([]srctrace.Task, error)
}

// SBOMStore persists bill-of-materials documents and provenance edges.
type SBOMStore interface {
	PutSBOM(ctx context.Context, sbom *srctrace.SBOM) error
	// GetSBOM fetches by document checksum; an empty strain matches any.
	GetSBOM(ctx context.Context, chksum srctrace.Digest, strain string) (*srctrace.SBOM, error)
	PutSBOMRef(ctx context.Context, ref *srctrace.SBOMRef) error
	SBOMRefsForArchive(ctx context.Context, archive srctrace.Digest) ([]srctrace.SBOMRef, error)
	SBOMRefsForSBOM(ctx context.Context, strain string, chksum srctrace.Digest) ([]srctrace.SBOMRef, error)
}

// BucketStore tracks physical object-store usage. Advisory only.
type BucketStore interface {
	InsertBucketObject(ctx context.Context, key string, compressedSize, uncompressedSize int64) error
	GetBucketObject(ctx context.Context, key string) (*srctrace.BucketObject, error)
}

// StatsQuerier serves the reporting surface.
type StatsQuerier interface {
	// VendorRefCounts is the per-vendor ref tally.
	VendorRefCounts(ctx context.Context) (map[string]int64, error)
	// StrainCounts is the per-strain sbom tally.
	StrainCounts(ctx context.Context) (map[string]int64, error)
	// PendingTaskCounts tallies due tasks by key prefix.
	PendingTaskCounts(ctx context.Context) (map[string]int64, error)
	// AliasReasonCounts tallies alias edges by reason.
	AliasReasonCounts(ctx context.Context) (map[string]int64, error)
	// ArchiveStats returns object count and compressed/uncompressed
	// byte totals of the backing bucket.
	ArchiveStats(ctx context.Context) (count, compressed, uncompressed int64, err error)
	// DanglingArtifacts lists artifacts no ref points at, directly or
	// via aliases.
	DanglingArtifacts(ctx context.Context) ([]srctrace.Digest, error)
}
