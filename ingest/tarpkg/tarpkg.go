// Package tarpkg walks source tarballs.
//
// One pass over the stream yields the full file listing with per-file
// digests, the digest sets of both the transport bytes and the
// uncompressed tar, and the positions of anything that warrants
// follow-up work: nested archives and dependency lockfiles.
package tarpkg

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/quay/zlog"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/chksum"
	"github.com/srctrace/srctrace/internal/zreader"
	"github.com/srctrace/srctrace/sbom"
)

// maxSBOMSize bounds how much of a lockfile entry is buffered for
// later parsing. Larger entries are listed but not indexed.
const maxSBOMSize = 16 << 20

// SBOMEntry is a lockfile found during the walk, body included.
type SBOMEntry struct {
	Strain string
	Path   string
	Data   []byte
}

// Summary is everything one walk learned about an archive.
type Summary struct {
	// Inner is the digest set of the uncompressed tar stream; its
	// sha256 is the artifact identity.
	Inner chksum.Checksums
	// Outer is the digest set of the transport bytes as fetched.
	Outer       chksum.Checksums
	Compression zreader.Compression
	Files       []srctrace.FileEntry
	SBOMs       []SBOMEntry
	// Nested lists entry paths that look like archives themselves.
	Nested []string
}

// OuterLabel is the alias reason for the outer digest set, e.g.
// "gz(tar)" for a gzipped tarball or "tar" for a plain one.
func (s *Summary) OuterLabel() string {
	if l := s.Compression.Label(); l != "" {
		return l + "(tar)"
	}
	return "tar"
}

// Walk consumes the stream to EOF, including any bytes trailing the
// tar itself, so the outer digests cover the transport bytes exactly.
func Walk(ctx context.Context, r io.Reader) (*Summary, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "ingest/tarpkg/Walk")

	outer := chksum.New()
	raw := io.TeeReader(r, outer)
	zr, compression, err := zreader.Reader(raw)
	if err != nil {
		return nil, fmt.Errorf("tarpkg: opening stream: %w", err)
	}
	defer zr.Close()
	inner := chksum.New()
	tee := io.TeeReader(zr, inner)

	s := Summary{Compression: compression}
	tr := tar.NewReader(tee)
Walk:
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			break Walk
		case err != nil:
			return nil, fmt.Errorf("tarpkg: walking archive: %w", err)
		}
		if h.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		entry := srctrace.FileEntry{
			Path:      h.Name,
			Mode:      fmt.Sprintf("0o%o", h.Mode),
			Mtime:     h.ModTime.Unix(),
			UID:       h.Uid,
			Username:  h.Uname,
			GID:       h.Gid,
			Groupname: h.Gname,
		}
		switch h.Typeflag {
		case tar.TypeSymlink:
			entry.LinksTo = &srctrace.Link{Symbolic: h.Linkname}
		case tar.TypeLink:
			entry.LinksTo = &srctrace.Link{Hard: h.Linkname}
		case tar.TypeReg:
			if err := s.walkFile(ctx, &entry, h, tr); err != nil {
				return nil, err
			}
		}
		s.Files = append(s.Files, entry)
	}

	// Drain trailing padding on both layers so the digests cover the
	// full streams.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return nil, fmt.Errorf("tarpkg: draining tar stream: %w", err)
	}
	if _, err := io.Copy(io.Discard, raw); err != nil {
		return nil, fmt.Errorf("tarpkg: draining transport stream: %w", err)
	}

	s.Inner = inner.Checksums()
	s.Outer = outer.Checksums()
	zlog.Debug(ctx).
		Str("chksum", s.Inner.SHA256.String()).
		Int("files", len(s.Files)).
		Int("sboms", len(s.SBOMs)).
		Int("nested", len(s.Nested)).
		Msg("walked archive")
	return &s, nil
}

func (s *Summary) walkFile(ctx context.Context, entry *srctrace.FileEntry, h *tar.Header, r io.Reader) error {
	base := path.Base(h.Name)
	strain, isSBOM := sbom.DetectFilename(base)
	capture := isSBOM && h.Size <= maxSBOMSize

	sum := sha256.New()
	var buf []byte
	if capture {
		buf = make([]byte, 0, h.Size)
	}
	b := make([]byte, 32<<10)
	for {
		n, err := r.Read(b)
		if n > 0 {
			sum.Write(b[:n])
			if capture {
				buf = append(buf, b[:n]...)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("tarpkg: reading %q: %w", h.Name, err)
		}
	}
	entry.Digest = "sha256:" + hex.EncodeToString(sum.Sum(nil))

	switch {
	case capture:
		zlog.Info(ctx).
			Str("strain", strain).
			Str("path", h.Name).
			Msg("found lockfile")
		s.SBOMs = append(s.SBOMs, SBOMEntry{Strain: strain, Path: h.Name, Data: buf})
	case IsArchiveName(base):
		s.Nested = append(s.Nested, h.Name)
	}
	return nil
}

// IsArchiveName reports whether a filename looks like a tar-based
// archive worth expanding.
func IsArchiveName(name string) bool {
	return strings.Contains(name, ".tar") ||
		strings.HasSuffix(name, ".crate") ||
		strings.HasSuffix(name, ".tgz")
}
