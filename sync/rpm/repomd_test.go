package rpm

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const repomdFixture = `<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo" xmlns:rpm="http://linux.duke.edu/metadata/rpm">
  <revision>1712990641</revision>
  <data type="primary">
    <checksum type="sha256">fa72c03d43e9ffe131633347045c0c56fbeacbd3281b2b03a6351f487218a158</checksum>
    <open-checksum type="sha256">259d84fce5ecb46226a21765561539eb992fff76356df088f9ed3d1d3d44cd28</open-checksum>
    <location href="repodata/fa72c03d43e9ffe131633347045c0c56fbeacbd3281b2b03a6351f487218a158-primary.xml.gz"/>
    <timestamp>1712990625</timestamp>
    <size>7587566</size>
    <open-size>49907129</open-size>
  </data>
  <data type="filelists">
    <checksum type="sha256">caf9e9202dbd97fcf4da6ca3f228fd459505f0b17d37fb387240b03c8dc0e84a</checksum>
    <location href="repodata/caf9e9202dbd97fcf4da6ca3f228fd459505f0b17d37fb387240b03c8dc0e84a-filelists.xml.gz"/>
    <timestamp>1712990625</timestamp>
  </data>
</repomd>
`

const primaryFixture = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" xmlns:rpm="http://linux.duke.edu/metadata/rpm" packages="23891">
<package type="rpm">
  <name>0ad</name>
  <arch>src</arch>
  <version epoch="0" ver="0.0.26" rel="21.fc41"/>
  <checksum type="sha256" pkgid="YES">2368bc4da6effe91983f4136e651834cc3b547cecafaed3bf06bf2fcfdc53848</checksum>
  <summary>Cross-Platform RTS Game of Ancient Warfare</summary>
  <packager>Fedora Project</packager>
  <url>http://play0ad.com</url>
  <time file="1710852923" build="1710842313"/>
  <size package="80972827" installed="83795861" archive="83797864"/>
  <location href="Packages/0/0ad-0.0.26-21.fc41.src.rpm"/>
</package>
</metadata>
`

func TestParseRepoMD(t *testing.T) {
	var md RepoMD
	if err := xml.NewDecoder(strings.NewReader(repomdFixture)).Decode(&md); err != nil {
		t.Fatal(err)
	}
	if md.Revision != 1712990641 {
		t.Errorf("revision: got %d", md.Revision)
	}
	loc, err := md.PrimaryLocation("https://example.com/repo")
	if err != nil {
		t.Fatal(err)
	}
	const want = "https://example.com/repo/repodata/fa72c03d43e9ffe131633347045c0c56fbeacbd3281b2b03a6351f487218a158-primary.xml.gz"
	if loc != want {
		t.Errorf("primary location: got %q, want %q", loc, want)
	}
}

func TestParseRepoMDNoPrimary(t *testing.T) {
	md := RepoMD{RepoList: []Repo{{Type: "filelists"}}}
	if _, err := md.PrimaryLocation("https://example.com"); err != ErrNoPrimary {
		t.Errorf("got %v, want ErrNoPrimary", err)
	}
}

func TestParsePrimary(t *testing.T) {
	var got []Package
	err := parsePrimary(strings.NewReader(primaryFixture), func(p *Package) error {
		got = append(got, *p)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []Package{
		{
			Name:     "0ad",
			Arch:     "src",
			Version:  Version{Epoch: "0", Ver: "0.0.26", Rel: "21.fc41"},
			Location: Location{Href: "Packages/0/0ad-0.0.26-21.fc41.src.rpm"},
		},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
	if evr := got[0].Version.EVR(); evr != "0.0.26-21.fc41" {
		t.Errorf("EVR: got %q", evr)
	}
}
