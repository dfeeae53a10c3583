package void

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseTemplate(t *testing.T) {
	const fixture = `# Template file for 'zlib'
pkgname=zlib
version=1.3.1
revision=1
build_style=configure
configure_args="--shared"
short_desc="Compression/decompression Library"
maintainer="Orphaned <orphan@voidlinux.org>"
license="Zlib"
homepage="https://zlib.net"
distfiles="https://zlib.net/zlib-$version.tar.gz"
checksum=9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23

post_install() {
	vlicense LICENSE
}
`
	got, err := parseTemplate(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	want := &Template{
		Pkgname:   "zlib",
		Version:   "1.3.1",
		Revision:  "1",
		Distfiles: []string{"https://zlib.net/zlib-1.3.1.tar.gz"},
		Checksum:  []string{"9a93b2b7dfdac77ceba5a558a580e74667dd6fede4585b91eefb60f03b72df23"},
	}
	if !cmp.Equal(got, want, cmp.AllowUnexported(Template{}), cmpopts.EquateEmpty()) {
		t.Error(cmp.Diff(got, want, cmp.AllowUnexported(Template{}), cmpopts.EquateEmpty()))
	}
}

func TestParseTemplateSiteVar(t *testing.T) {
	const fixture = `pkgname=gawk
version=5.3.0
revision=1
distfiles="${GNU_SITE}/gawk/gawk-${version}.tar.xz"
checksum=ca9c16d3d11d0ff8c69d79dc0b47267e1329a69b39b799895604ed447d3ca90b
`
	got, err := parseTemplate(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Distfiles) != 1 || got.Distfiles[0] != "https://ftp.gnu.org/gnu/gawk/gawk-5.3.0.tar.xz" {
		t.Errorf("distfiles: got %v", got.Distfiles)
	}
}

func TestParseTemplateMultilineChecksum(t *testing.T) {
	const fixture = `pkgname=multi
version=1.0
revision=1
distfiles="https://example.com/a-1.0.tar.gz
 https://example.com/b-1.0.tar.gz"
checksum="1111111111111111111111111111111111111111111111111111111111111111
 2222222222222222222222222222222222222222222222222222222222222222"
`
	got, err := parseTemplate(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Distfiles) != 2 || len(got.Checksum) != 2 {
		t.Errorf("got %d distfiles, %d checksums", len(got.Distfiles), len(got.Checksum))
	}
}

func TestIsTemplate(t *testing.T) {
	tt := []struct {
		name string
		want bool
	}{
		{"void-packages-master/srcpkgs/zlib/template", true},
		{"void-packages-master/srcpkgs/zlib/patches/fix.patch", false},
		{"void-packages-master/common/template", false},
		{"void-packages-master/srcpkgs/zlib/files/template", false},
	}
	for _, tc := range tt {
		if got := isTemplate(tc.name); got != tc.want {
			t.Errorf("isTemplate(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}
