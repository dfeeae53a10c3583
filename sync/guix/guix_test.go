package guix

import (
	"encoding/json"
	"strings"
	"testing"
)

const packageFixture = `
{
  "name": "zig",
  "version": "0.9.1",
  "variable_name": "zig-0.9",
  "source": [
    {
      "type": "git",
      "git_url": "https://github.com/ziglang/zig.git",
      "integrity": "sha256-x2c4c9RSrNWGqEngio4ArW7dJjW0gg+8nqBwPcR721k=",
      "outputHashAlgo": "sha256",
      "outputHashMode": "recursive",
      "git_ref": "0.9.1"
    }
  ],
  "synopsis": "General purpose programming language and toolchain",
  "homepage": "https://github.com/ziglang/zig"
}
`

func TestDecodePackage(t *testing.T) {
	var p Package
	if err := json.NewDecoder(strings.NewReader(packageFixture)).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "zig" || p.Version != "0.9.1" {
		t.Errorf("got %q %q", p.Name, p.Version)
	}
	if len(p.Source) != 1 || p.Source[0].Type != "git" {
		t.Fatalf("source: %+v", p.Source)
	}
	if p.Source[0].OutputHashMode != "recursive" {
		t.Errorf("hash mode: %q", p.Source[0].OutputHashMode)
	}
}

func TestSourceDigest(t *testing.T) {
	s := Source{Integrity: "sha256-x2c4c9RSrNWGqEngio4ArW7dJjW0gg+8nqBwPcR721k="}
	d, err := s.Digest()
	if err != nil {
		t.Fatal(err)
	}
	const want = "sha256:c7673873d452acd586a849e08a8e00ad6edd2635b4820fbc9ea0703dc47bdb59"
	if d.String() != want {
		t.Errorf("got %q, want %q", d.String(), want)
	}
}

func TestSourceDigestUnsupported(t *testing.T) {
	s := Source{Integrity: "sha512-deadbeef"}
	if _, err := s.Digest(); err == nil {
		t.Error("expected an error for non-sha256 integrity")
	}
}
