package tarpkg

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func mkTar(t *testing.T, gz bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tw *tar.Writer
	var zw *gzip.Writer
	if gz {
		zw = gzip.NewWriter(&buf)
		tw = tar.NewWriter(zw)
	} else {
		tw = tar.NewWriter(&buf)
	}
	mtime := time.Unix(1713888951, 0)
	write := func(h *tar.Header, body []byte) {
		h.ModTime = mtime
		h.Uid, h.Gid = 1000, 1000
		h.Uname, h.Gname = "user", "user"
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if body != nil {
			if _, err := tw.Write(body); err != nil {
				t.Fatal(err)
			}
		}
	}
	write(&tar.Header{Name: "foo-1.0/", Typeflag: tar.TypeDir, Mode: 0o755}, nil)
	write(&tar.Header{
		Name: "foo-1.0/original_file", Typeflag: tar.TypeReg,
		Mode: 0o644, Size: 6,
	}, []byte("hello\n"))
	write(&tar.Header{
		Name: "foo-1.0/hardlink_file", Typeflag: tar.TypeLink,
		Linkname: "foo-1.0/original_file", Mode: 0o644,
	}, nil)
	write(&tar.Header{
		Name: "foo-1.0/symlink_file", Typeflag: tar.TypeSymlink,
		Linkname: "original_file", Mode: 0o777,
	}, nil)
	write(&tar.Header{
		Name: "foo-1.0/vendor.tar.gz", Typeflag: tar.TypeReg,
		Mode: 0o644, Size: 4,
	}, []byte("stub"))
	lock := []byte("version = 3\n\n[[package]]\nname = \"serde\"\nversion = \"1.0.195\"\n")
	write(&tar.Header{
		Name: "foo-1.0/Cargo.lock", Typeflag: tar.TypeReg,
		Mode: 0o644, Size: int64(len(lock)),
	}, lock)
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	raw := mkTar(t, true)
	s, err := Walk(ctx, bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(s.Files), 6; got != want {
		t.Fatalf("got %d entries, want %d", got, want)
	}
	f := s.Files[1]
	wantSum := sha256.Sum256([]byte("hello\n"))
	if f.Digest != "sha256:"+hex.EncodeToString(wantSum[:]) {
		t.Errorf("file digest: %q", f.Digest)
	}
	if f.Mode != "0o644" || f.UID != 1000 || f.Username != "user" {
		t.Errorf("metadata: %+v", f)
	}
	if s.Files[2].LinksTo == nil || s.Files[2].LinksTo.Hard != "foo-1.0/original_file" {
		t.Errorf("hardlink: %+v", s.Files[2].LinksTo)
	}
	if s.Files[3].LinksTo == nil || s.Files[3].LinksTo.Symbolic != "original_file" {
		t.Errorf("symlink: %+v", s.Files[3].LinksTo)
	}

	if len(s.Nested) != 1 || s.Nested[0] != "foo-1.0/vendor.tar.gz" {
		t.Errorf("nested: %v", s.Nested)
	}
	if len(s.SBOMs) != 1 || s.SBOMs[0].Strain != "cargo-lock" || s.SBOMs[0].Path != "foo-1.0/Cargo.lock" {
		t.Errorf("sboms: %+v", s.SBOMs)
	}

	if s.OuterLabel() != "gz(tar)" {
		t.Errorf("outer label: %q", s.OuterLabel())
	}
	if s.Inner.SHA256.String() == s.Outer.SHA256.String() {
		t.Error("inner and outer digests should differ for a compressed stream")
	}
	if s.Outer.Size != int64(len(raw)) {
		t.Errorf("outer size: got %d, want %d", s.Outer.Size, len(raw))
	}

	// A plain tar of the same content has matching inner and outer
	// digest sets.
	plain := mkTar(t, false)
	ps, err := Walk(ctx, bytes.NewReader(plain))
	if err != nil {
		t.Fatal(err)
	}
	if ps.OuterLabel() != "tar" {
		t.Errorf("plain outer label: %q", ps.OuterLabel())
	}
	if ps.Inner.SHA256.String() != ps.Outer.SHA256.String() {
		t.Error("plain tar should have identical inner and outer digests")
	}
	if ps.Inner.SHA256.String() != s.Inner.SHA256.String() {
		t.Error("inner digest should not depend on transport compression")
	}
}

func TestIsArchiveName(t *testing.T) {
	tt := []struct {
		name string
		want bool
	}{
		{"zlib-1.3.1.tar.gz", true},
		{"serde-1.0.195.crate", true},
		{"lodash-4.17.21.tgz", true},
		{"README.md", false},
		{"archive.zip", false},
	}
	for _, tc := range tt {
		if got := IsArchiveName(tc.name); got != tc.want {
			t.Errorf("IsArchiveName(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}
