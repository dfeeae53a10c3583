package srctrace

import "time"

// Artifact is the canonical content-addressed record of a fetched
// source archive, keyed by the sha256 digest of the uncompressed tar
// stream. It holds the enumerated file listing, not the bytes.
//
// Created exactly once per distinct checksum; later fetches that hash
// the same only refresh LastImported.
type Artifact struct {
	Chksum       Digest
	FirstSeen    time.Time
	LastImported time.Time
	Files        []FileEntry
}

// FileEntry is one enumerated entry of an artifact's archive.
type FileEntry struct {
	Path      string `json:"path"`
	Digest    string `json:"digest,omitempty"`
	Mode      string `json:"mode,omitempty"`
	LinksTo   *Link  `json:"links_to,omitempty"`
	Mtime     int64  `json:"mtime,omitempty"`
	UID       int    `json:"uid"`
	Username  string `json:"username,omitempty"`
	GID       int    `json:"gid"`
	Groupname string `json:"groupname,omitempty"`
}

// Link records a hard- or symlink target; exactly one field is set.
type Link struct {
	Hard     string `json:"hard,omitempty"`
	Symbolic string `json:"symbolic,omitempty"`
}

// Alias is an equivalence edge redirecting one checksum to another.
//
// The alias graph is kept a forest: a checksum is the target of at most
// one alias, and an alias target may not itself be aliased. Merges that
// would violate either rule are rejected with ErrConflict.
type Alias struct {
	From   Digest
	To     Digest
	Reason string
}

// BucketObject is the physical-storage accounting record for an object
// placed in the backing object store. Advisory only; it never gates
// correctness decisions.
type BucketObject struct {
	Key              string
	CompressedSize   int64
	UncompressedSize int64
	CreatedAt        time.Time
}
