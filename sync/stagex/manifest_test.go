package stagex

import "testing"

const manifestFixture = `
[package]
name = "zlib"
version = "1.3.1"
description = "Compression library"

[sources.main]
hash = "9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23"
format = "tar.gz"
file = "zlib-{version}.tar.gz"
mirrors = [
	"https://zlib.net/zlib-{version}.{format}",
	"https://github.com/madler/zlib/releases/download/v{version}/{file}",
]
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestFixture))
	if err != nil {
		t.Fatal(err)
	}
	if m.Package.Name != "zlib" || m.Package.Version != "1.3.1" {
		t.Errorf("got %q %q", m.Package.Name, m.Package.Version)
	}
	refs, err := m.Refs()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("got %d refs", len(refs))
	}
	r := refs[0]
	if got, want := r.Filename, "https://zlib.net/zlib-1.3.1.tar.gz"; got != want {
		t.Errorf("filename: got %q, want %q", got, want)
	}
	if got, want := r.Chksum.String(), "sha256:9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23"; got != want {
		t.Errorf("chksum: got %q, want %q", got, want)
	}
	if r.Vendor != "stagex" || r.Package != "zlib" || r.Version != "1.3.1" {
		t.Errorf("ref: %+v", r)
	}
}

func TestInterpolate(t *testing.T) {
	var m Manifest
	m.Package.Name = "example"
	m.Package.Version = "2.10.4-rc1"
	src := &Source{Format: "tar.xz", File: "example.tar.xz"}
	tt := []struct{ in, want string }{
		{"https://x.test/{version}", "https://x.test/2.10.4-rc1"},
		{"https://x.test/{version_dash}", "https://x.test/2-10-4-rc1"},
		{"https://x.test/{version_under}", "https://x.test/2_10_4-rc1"},
		{"https://x.test/{version_major}", "https://x.test/2"},
		{"https://x.test/{version_major_minor}", "https://x.test/2.10"},
		{"https://x.test/{version_strip_suffix}", "https://x.test/2.10.4"},
		{"https://x.test/{file}?fmt={format}", "https://x.test/example.tar.xz?fmt=tar.xz"},
	}
	for _, tc := range tt {
		if got := m.interpolate(tc.in, src); got != tc.want {
			t.Errorf("interpolate(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
