package gentoo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseManifestEntry(t *testing.T) {
	const line = "DIST aho-corasick-1.1.2.crate 183136 BLAKE2B 2d4306d8968061b9f7e50190be6a92b3f668169ba1b9f9691de08a57c96185f7a4288d20c64cb8488a260eb18d3ed4b0e8358b0cca47aa44759b2e448049cbaa SHA512 61ef5092673ab5a60bec4e92df28a91fe6171ba59d5829ffe41fc55aff3bfb755533a4ad53dc7bf827a0b789fcce593b17e69d1fcfb3694f06ed3b1bd535d40c"
	got, err := parseManifestEntry(line)
	if err != nil {
		t.Fatal(err)
	}
	want := &ManifestEntry{
		Filename: "aho-corasick-1.1.2.crate",
		Size:     183136,
		BLAKE2b:  "2d4306d8968061b9f7e50190be6a92b3f668169ba1b9f9691de08a57c96185f7a4288d20c64cb8488a260eb18d3ed4b0e8358b0cca47aa44759b2e448049cbaa",
		SHA512:   "61ef5092673ab5a60bec4e92df28a91fe6171ba59d5829ffe41fc55aff3bfb755533a4ad53dc7bf827a0b789fcce593b17e69d1fcfb3694f06ed3b1bd535d40c",
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestParseSrcURIWithoutSrcURI(t *testing.T) {
	const data = `DEFINED_PHASES=install preinst pretend
DESCRIPTION=A group for sys-process/systemd-cron failure emails
EAPI=8
SLOT=0
`
	if got := parseSrcURI(data); len(got) != 0 {
		t.Errorf("expected no inputs, got %v", got)
	}
}

func TestParseSrcURI(t *testing.T) {
	const data = `EAPI=8
HOMEPAGE=https://github.com/BurntSushi/ripgrep
SRC_URI=https://github.com/BurntSushi/ripgrep/archive/14.1.0.tar.gz -> ripgrep-14.1.0.tar.gz https://crates.io/api/v1/crates/aho-corasick/1.1.2/download -> aho-corasick-1.1.2.crate https://example.com/plain-1.0.tar.bz2
SLOT=0
`
	got := parseSrcURI(data)
	want := map[string]string{
		"ripgrep-14.1.0.tar.gz":    "https://github.com/BurntSushi/ripgrep/archive/14.1.0.tar.gz",
		"aho-corasick-1.1.2.crate": "https://crates.io/api/v1/crates/aho-corasick/1.1.2/download",
		"plain-1.0.tar.bz2":        "https://example.com/plain-1.0.tar.bz2",
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestParsePkgnameVersion(t *testing.T) {
	tt := []struct {
		in, pkg, version string
	}{
		{"ripgrep-14.1.0", "ripgrep", "14.1.0"},
		{"foo-1.2.3-r1", "foo", "1.2.3-r1"},
		{"acct-group-root-0", "acct-group-root", "0"},
	}
	for _, tc := range tt {
		pkg, version, err := parsePkgnameVersion(tc.in)
		if err != nil {
			t.Errorf("parsePkgnameVersion(%q): %v", tc.in, err)
			continue
		}
		if pkg != tc.pkg || version != tc.version {
			t.Errorf("parsePkgnameVersion(%q): got (%q, %q), want (%q, %q)",
				tc.in, pkg, version, tc.pkg, tc.version)
		}
	}
}
