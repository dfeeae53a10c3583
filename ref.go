package srctrace

import (
	"net/url"
	"time"
)

// Ref is a discovered pointer from a package identity to a download
// location. The checksum starts out unresolved (zero Digest) and is
// filled in once the ingestion pipeline has fetched the content.
//
// Uniqueness is on (Chksum, Vendor, Package, Version): the same content
// may legitimately back multiple package identities, each recorded as
// its own Ref. Rows are never updated destructively; superseded
// versions remain for history.
type Ref struct {
	Chksum    Digest
	Vendor    string
	Package   string
	Version   string
	Filename  string
	Protocol  string
	Host      string
	FirstSeen time.Time
	LastSeen  time.Time
}

// NewRef constructs a Ref, deriving Protocol and Host when the filename
// is a fetchable URL. Filenames that are plain basenames (or anything
// that doesn't parse as a URL with a host) leave both empty.
func NewRef(chksum Digest, vendor, pkg, version, filename string) *Ref {
	r := Ref{
		Chksum:   chksum,
		Vendor:   vendor,
		Package:  pkg,
		Version:  version,
		Filename: filename,
	}
	if u, err := url.Parse(filename); err == nil && u.Scheme != "" && u.Hostname() != "" {
		r.Protocol = u.Scheme
		r.Host = u.Hostname()
	}
	return &r
}

// Package is the import marker for a (vendor, package, version) triple.
//
// Adapters use it to skip re-enqueueing work for identities already
// walked in a previous sync pass; it is not the authoritative package
// record (Refs are).
type Package struct {
	Vendor  string
	Package string
	Version string
}
