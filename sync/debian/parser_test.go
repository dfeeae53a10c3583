package debian

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sourcesFixture = `Package: zlib
Binary: zlib1g, zlib1g-dev
Version: 1:1.3.dfsg-3
Maintainer: Mark Brown <broonie@debian.org>
Architecture: any
Standards-Version: 4.6.2
Format: 3.0 (quilt)
Files:
 d0ada05a8efb0bd8f29e237e7f2e1cb7 2340 zlib_1.3.dfsg-3.dsc
Checksums-Sha1:
 2d2299d34b96c59a690470a42b0dbcf10ef15e1e 1223256 zlib_1.3.dfsg.orig.tar.gz
Checksums-Sha256:
 64d8a5180bafee1c4c4a2a9ef8e58023c63ddb7c10fe9ec0b2dbad7a4b4a37a8 1223256 zlib_1.3.dfsg.orig.tar.gz
 9442866b858cef299b4b74d7332df0156e23056a53a46d38916a4bb85c9cf47a 21988 zlib_1.3.dfsg-3.debian.tar.xz
Directory: pool/main/z/zlib
Priority: optional
Section: libs

Package: zstd
Version: 1.5.5+dfsg2-2
Checksums-Sha256:
 5af01b3dbdc3c4b0a40ba7b3915b82a0b0c9f6b0ed9034e0ef57e8f0073beae2 2368543 zstd_1.5.5+dfsg2.orig.tar.xz
Directory: pool/main/z/zstd

`

func TestParseSources(t *testing.T) {
	var got []SourcePkg
	err := parseSources(strings.NewReader(sourcesFixture), func(p *SourcePkg) error {
		got = append(got, *p)
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []SourcePkg{
		{
			Package:   "zlib",
			Version:   "1:1.3.dfsg-3",
			Directory: "pool/main/z/zlib",
			Checksums: []FileChecksum{
				{
					SHA256:   "64d8a5180bafee1c4c4a2a9ef8e58023c63ddb7c10fe9ec0b2dbad7a4b4a37a8",
					Size:     1223256,
					Filename: "zlib_1.3.dfsg.orig.tar.gz",
				},
				{
					SHA256:   "9442866b858cef299b4b74d7332df0156e23056a53a46d38916a4bb85c9cf47a",
					Size:     21988,
					Filename: "zlib_1.3.dfsg-3.debian.tar.xz",
				},
			},
		},
		{
			Package:   "zstd",
			Version:   "1.5.5+dfsg2-2",
			Directory: "pool/main/z/zstd",
			Checksums: []FileChecksum{
				{
					SHA256:   "5af01b3dbdc3c4b0a40ba7b3915b82a0b0c9f6b0ed9034e0ef57e8f0073beae2",
					Size:     2368543,
					Filename: "zstd_1.5.5+dfsg2.orig.tar.xz",
				},
			},
		},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

// A garbage continuation line must cost one checksum, not the pass.
func TestParseSourcesSkipsMalformedChecksum(t *testing.T) {
	const fixture = `Package: zlib
Version: 1:1.3.dfsg-3
Checksums-Sha256:
 not-a-checksum-line
 64d8a5180bafee1c4c4a2a9ef8e58023c63ddb7c10fe9ec0b2dbad7a4b4a37a8 notasize zlib_1.3.dfsg.orig.tar.gz
 64d8a5180bafee1c4c4a2a9ef8e58023c63ddb7c10fe9ec0b2dbad7a4b4a37a8 1223256 zlib_1.3.dfsg.orig.tar.gz
Directory: pool/main/z/zlib

Package: zstd
Version: 1.5.5+dfsg2-2
Checksums-Sha256:
 5af01b3dbdc3c4b0a40ba7b3915b82a0b0c9f6b0ed9034e0ef57e8f0073beae2 2368543 zstd_1.5.5+dfsg2.orig.tar.xz
Directory: pool/main/z/zstd

`
	var (
		got     []SourcePkg
		skipped int
	)
	err := parseSources(strings.NewReader(fixture), func(p *SourcePkg) error {
		got = append(got, *p)
		return nil
	}, func(string) { skipped++ })
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 2 {
		t.Errorf("got %d skips, want 2", skipped)
	}
	want := []SourcePkg{
		{
			Package:   "zlib",
			Version:   "1:1.3.dfsg-3",
			Directory: "pool/main/z/zlib",
			Checksums: []FileChecksum{
				{
					SHA256:   "64d8a5180bafee1c4c4a2a9ef8e58023c63ddb7c10fe9ec0b2dbad7a4b4a37a8",
					Size:     1223256,
					Filename: "zlib_1.3.dfsg.orig.tar.gz",
				},
			},
		},
		{
			Package:   "zstd",
			Version:   "1.5.5+dfsg2-2",
			Directory: "pool/main/z/zstd",
			Checksums: []FileChecksum{
				{
					SHA256:   "5af01b3dbdc3c4b0a40ba7b3915b82a0b0c9f6b0ed9034e0ef57e8f0073beae2",
					Size:     2368543,
					Filename: "zstd_1.5.5+dfsg2.orig.tar.xz",
				},
			},
		},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestIsOrigTarball(t *testing.T) {
	tt := []struct {
		name string
		want bool
	}{
		{"zlib_1.3.dfsg.orig.tar.gz", true},
		{"zstd_1.5.5+dfsg2.orig.tar.xz", true},
		{"foo_1.0.orig.tar.bz2", true},
		{"zlib_1.3.dfsg-3.debian.tar.xz", false},
		{"zlib_1.3.dfsg-3.dsc", false},
	}
	for _, tc := range tt {
		if got := isOrigTarball(tc.name); got != tc.want {
			t.Errorf("isOrigTarball(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewerVersion(t *testing.T) {
	tt := []struct {
		a, b string
		want bool
	}{
		{"1:1.3.dfsg-3", "1:1.3.dfsg-2", true},
		{"1.5.5+dfsg2-2", "1.5.5+dfsg2-3", false},
		{"2.0-1", "1:1.0-1", false},
	}
	for _, tc := range tt {
		if got := newerVersion(tc.a, tc.b); got != tc.want {
			t.Errorf("newerVersion(%q, %q): got %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
