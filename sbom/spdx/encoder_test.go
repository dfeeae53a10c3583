package spdx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/srctrace/srctrace"
)

func TestEncoder(t *testing.T) {
	ctx := context.Background()

	chksum, err := srctrace.ParseDigest("sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	fileSum, err := srctrace.ParseDigest("sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err != nil {
		t.Fatal(err)
	}

	r := &Report{
		Artifact: &srctrace.Artifact{
			Chksum: chksum,
			Files: []srctrace.FileEntry{
				{Path: "pkg-1.0/", Mode: "0o755"},
				{Path: "pkg-1.0/Cargo.lock", Mode: "0o644", Digest: fileSum.String()},
			},
		},
		Refs: []srctrace.Ref{
			*srctrace.NewRef(chksum, "debian", "pkg", "1.0", "https://deb.debian.org/pool/p/pkg_1.0.orig.tar.gz"),
			*srctrace.NewRef(chksum, "crates.io", "pkg", "1.0", "pkg-1.0.crate"),
		},
		SBOMRefs: []srctrace.SBOMRef{
			{FromArchive: chksum, Strain: "cargo-lock", Chksum: fileSum, Path: "pkg-1.0/Cargo.lock"},
		},
	}

	e := &Encoder{
		Version: V2_3,
		Format:  FormatJSON,
		Creators: []Creator{
			{Creator: "srctrace", CreatorType: "Tool"},
		},
		DocumentNamespace: "https://example.com/spdx/" + chksum.String(),
	}

	var buf bytes.Buffer
	if err := e.Encode(ctx, &buf, r); err != nil {
		t.Fatal(err)
	}

	var got struct {
		SPDXVersion string `json:"spdxVersion"`
		Name        string `json:"name"`
		Packages    []struct {
			SPDXID                string `json:"SPDXID"`
			Name                  string `json:"name"`
			VersionInfo           string `json:"versionInfo"`
			DownloadLocation      string `json:"downloadLocation"`
			Supplier              string `json:"supplier"`
			PrimaryPackagePurpose string `json:"primaryPackagePurpose"`
		} `json:"packages"`
		Files []struct {
			SPDXID    string `json:"SPDXID"`
			FileName  string `json:"fileName"`
			Checksums []struct {
				Algorithm string `json:"algorithm"`
				Value     string `json:"checksumValue"`
			} `json:"checksums"`
		} `json:"files"`
		Relationships []struct {
			A    string `json:"spdxElementId"`
			B    string `json:"relatedSpdxElement"`
			Type string `json:"relationshipType"`
		} `json:"relationships"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}

	if got.SPDXVersion != "SPDX-2.3" {
		t.Errorf("spdxVersion: %q", got.SPDXVersion)
	}
	if got.Name != chksum.String() {
		t.Errorf("document name: %q", got.Name)
	}

	var pkgNames []string
	for _, p := range got.Packages {
		pkgNames = append(pkgNames, p.SPDXID)
	}
	want := []string{"SPDXRef-Artifact", "SPDXRef-Ref-0", "SPDXRef-Ref-1"}
	if !cmp.Equal(want, pkgNames) {
		t.Error(cmp.Diff(want, pkgNames))
	}

	// Refs sort by vendor, so crates.io comes first.
	if got.Packages[1].Supplier != "Organization: crates.io" {
		t.Errorf("supplier: %q", got.Packages[1].Supplier)
	}
	if got.Packages[1].DownloadLocation != "NOASSERTION" {
		t.Errorf("bare filename should not become a download location: %q", got.Packages[1].DownloadLocation)
	}
	if want := "https://deb.debian.org/pool/p/pkg_1.0.orig.tar.gz"; got.Packages[2].DownloadLocation != want {
		t.Errorf("downloadLocation: got %q, want %q", got.Packages[2].DownloadLocation, want)
	}

	if len(got.Files) != 2 {
		t.Fatalf("files: %+v", got.Files)
	}
	if got.Files[0].FileName != "pkg-1.0/" || len(got.Files[0].Checksums) != 0 {
		t.Errorf("directory entry: %+v", got.Files[0])
	}
	lock := got.Files[1]
	if lock.FileName != "pkg-1.0/Cargo.lock" ||
		len(lock.Checksums) != 1 ||
		lock.Checksums[0].Algorithm != "SHA256" {
		t.Errorf("lockfile entry: %+v", lock)
	}

	type rel struct{ A, B, Type string }
	var rels []rel
	for _, r := range got.Relationships {
		rels = append(rels, rel{r.A, r.B, r.Type})
	}
	wantRels := []rel{
		{"SPDXRef-DOCUMENT", "SPDXRef-Artifact", "DESCRIBES"},
		{"SPDXRef-Artifact", "SPDXRef-Ref-0", "COPY_OF"},
		{"SPDXRef-Artifact", "SPDXRef-Ref-1", "COPY_OF"},
		{lock.SPDXID, "SPDXRef-Artifact", "DEPENDENCY_MANIFEST_OF"},
	}
	if !cmp.Equal(wantRels, rels) {
		t.Error(cmp.Diff(wantRels, rels))
	}
}
