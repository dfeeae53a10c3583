package sbom

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetectFilename(t *testing.T) {
	tt := []struct {
		name   string
		strain string
		ok     bool
	}{
		{"Cargo.lock", StrainCargoLock, true},
		{"package-lock.json", StrainPackageLock, true},
		{"yarn.lock", StrainYarnLock, true},
		{"composer.lock", StrainComposerLock, true},
		{"uv.lock", StrainUvLock, true},
		{"bun.lock", StrainBunLock, true},
		{"Cargo.toml", "", false},
		{"README.md", "", false},
	}
	for _, tc := range tt {
		strain, ok := DetectFilename(tc.name)
		if strain != tc.strain || ok != tc.ok {
			t.Errorf("DetectFilename(%q): got (%q, %v), want (%q, %v)",
				tc.name, strain, ok, tc.strain, tc.ok)
		}
	}
}

const cargoLockFixture = `
version = 3

[[package]]
name = "aho-corasick"
version = "1.1.2"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "b2969dcb958b36655471fc61f7e416fa76033bdd4bfed0678d8fee1e2d07a1f0"

[[package]]
name = "mycrate"
version = "0.1.0"
`

func TestParseCargoLock(t *testing.T) {
	got, err := Parse(StrainCargoLock, cargoLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	want := []Package{
		{
			Name:             "aho-corasick",
			Version:          "1.1.2",
			URL:              "https://crates.io/api/v1/crates/aho-corasick/1.1.2/download",
			Checksum:         "sha256:b2969dcb958b36655471fc61f7e416fa76033bdd4bfed0678d8fee1e2d07a1f0",
			OfficialRegistry: true,
		},
		{Name: "mycrate", Version: "0.1.0"},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

const packageLockFixture = `{
  "name": "demo",
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "demo", "version": "1.0.0"},
    "node_modules/lodash": {
      "version": "4.17.21",
      "resolved": "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz",
      "integrity": "sha512-v2kDEe57lecTulaDIuNTPy3Ry4gLGJ6Z1O3vE1krgXZNrsQ+LFTGHVxVjcXPs17LhbZVGedAJv8XZ1tvj5FvSg=="
    }
  }
}`

func TestParsePackageLock(t *testing.T) {
	got, err := Parse(StrainPackageLock, packageLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packages, want 1", len(got))
	}
	p := got[0]
	if p.Name != "lodash" || p.Version != "4.17.21" {
		t.Errorf("identity: %+v", p)
	}
	if !p.OfficialRegistry {
		t.Error("expected official registry")
	}
	if !strings.HasPrefix(p.Checksum, "sha512:") {
		t.Errorf("checksum: %q", p.Checksum)
	}
}

const yarnLockFixture = `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1


"@babel/code-frame@^7.0.0", "@babel/code-frame@^7.22.13":
  version "7.22.13"
  resolved "https://registry.yarnpkg.com/@babel/code-frame/-/code-frame-7.22.13.tgz#e3c1c099402598483b7a8c46a721d1038803755e"
  integrity sha512-XktuhWlJ5g+3TJXc5upd9Ks1HutSArik6jf2eAjYFyIOf4ej3RN+184cZbzDvbPnuTJIUhPKKJE3cIsYTiAT3w==

lodash@^4.17.21:
  version "4.17.21"
  resolved "https://registry.yarnpkg.com/lodash/-/lodash-4.17.21.tgz#679591c564c3bffaae8454cf0b3df370c3d6911c"
`

func TestParseYarnLock(t *testing.T) {
	got, err := Parse(StrainYarnLock, yarnLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d packages, want 2", len(got))
	}
	if got[0].Name != "@babel/code-frame" || got[0].Version != "7.22.13" {
		t.Errorf("first entry: %+v", got[0])
	}
	if got[0].Checksum == "" {
		t.Error("expected a checksum on the first entry")
	}
	if got[1].Name != "lodash" || !got[1].OfficialRegistry {
		t.Errorf("second entry: %+v", got[1])
	}
}

const composerLockFixture = `{
  "packages": [
    {
      "name": "psr/log",
      "version": "3.0.0",
      "source": {
        "type": "git",
        "url": "https://github.com/php-fig/log.git",
        "reference": "fe5ea303b0887d5caefd3d431c3e61ad47037001"
      }
    }
  ]
}`

func TestParseComposerLock(t *testing.T) {
	got, err := Parse(StrainComposerLock, composerLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	want := []Package{{
		Name:             "psr/log",
		Version:          "3.0.0",
		URL:              "https://github.com/php-fig/log.git",
		Checksum:         "git:fe5ea303b0887d5caefd3d431c3e61ad47037001",
		OfficialRegistry: true,
	}}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

const uvLockFixture = `
version = 1

[[package]]
name = "idna"
version = "3.6"

[package.source]
registry = "https://pypi.org/simple"

[package.sdist]
url = "https://files.pythonhosted.org/packages/bf/3f/ea4b9117521a1e9c50344b909be7886dd00a519552724809bb1f486986c2/idna-3.6.tar.gz"
hash = "sha256:9ecdbbd083b06798ae1e86adcbfe8ab1479cf864e4ee30fe4e46a003d12491ca"
`

func TestParseUvLock(t *testing.T) {
	got, err := Parse(StrainUvLock, uvLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packages, want 1", len(got))
	}
	p := got[0]
	if p.Name != "idna" || p.Version != "3.6" || !p.OfficialRegistry {
		t.Errorf("identity: %+v", p)
	}
	if p.Checksum != "sha256:9ecdbbd083b06798ae1e86adcbfe8ab1479cf864e4ee30fe4e46a003d12491ca" {
		t.Errorf("checksum: %q", p.Checksum)
	}
}

const bunLockFixture = `{
  "lockfileVersion": 1,
  "workspaces": {
    "": {
      "dependencies": {
        "lodash": "^4.17.21",
      },
    },
  },
  "packages": {
    "lodash": ["lodash@4.17.21", "", {}, "sha512-v2kDEe57lecTulaDIuNTPy3Ry4gLGJ6Z1O3vE1krgXZNrsQ+LFTGHVxVjcXPs17LhbZVGedAJv8XZ1tvj5FvSg=="],
  }
}`

func TestParseBunLock(t *testing.T) {
	got, err := Parse(StrainBunLock, bunLockFixture)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packages, want 1", len(got))
	}
	p := got[0]
	if p.Name != "lodash" || p.Version != "4.17.21" {
		t.Errorf("identity: %+v", p)
	}
	if !p.OfficialRegistry {
		t.Error("expected official registry")
	}
	if p.URL != "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz" {
		t.Errorf("url: %q", p.URL)
	}
}

func TestPURL(t *testing.T) {
	tt := []struct {
		pkg    Package
		strain string
		want   string
	}{
		{Package{Name: "serde", Version: "1.0.195"}, StrainCargoLock, "pkg:cargo/serde@1.0.195"},
		{Package{Name: "@babel/core", Version: "7.0.0"}, StrainYarnLock, "pkg:npm/%40babel/core@7.0.0"},
		{Package{Name: "idna", Version: "3.6"}, StrainUvLock, "pkg:pypi/idna@3.6"},
	}
	for _, tc := range tt {
		if got := tc.pkg.PURL(tc.strain); got != tc.want {
			t.Errorf("PURL(%q, %s): got %q, want %q", tc.pkg.Name, tc.strain, got, tc.want)
		}
	}
}
