// Package sbom parses dependency lockfiles found inside source
// archives.
//
// A lockfile pins the full dependency closure of a package at build
// time, so indexing one extends provenance past the archive that
// carried it. Each supported format is a "strain"; documents are
// stored verbatim and keyed by strain plus content digest.
package sbom

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"
)

// Known strains.
const (
	StrainCargoLock    = "cargo-lock"
	StrainPackageLock  = "package-lock-json"
	StrainYarnLock     = "yarn-lock"
	StrainComposerLock = "composer-lock"
	StrainUvLock       = "uv-lock"
	StrainBunLock      = "bun-lock"
)

// DetectFilename reports the strain a filename belongs to.
func DetectFilename(name string) (string, bool) {
	switch name {
	case "Cargo.lock":
		return StrainCargoLock, true
	case "package-lock.json":
		return StrainPackageLock, true
	case "yarn.lock":
		return StrainYarnLock, true
	case "composer.lock":
		return StrainComposerLock, true
	case "uv.lock":
		return StrainUvLock, true
	case "bun.lock":
		return StrainBunLock, true
	}
	return "", false
}

// Package is one pinned component of a parsed lockfile.
type Package struct {
	Name    string
	Version string
	// URL is the source download location, when the lockfile pins one.
	URL string
	// Checksum is in "family:hex" form, e.g. "sha512:...".
	Checksum string
	// OfficialRegistry reports whether the component resolves to the
	// ecosystem's canonical registry. Only those are safe to fetch by
	// constructed URL.
	OfficialRegistry bool
}

// PURL renders the component as a package-url for the given strain.
func (p *Package) PURL(strain string) string {
	var typ, namespace, name string
	switch strain {
	case StrainCargoLock:
		typ = packageurl.TypeCargo
	case StrainPackageLock, StrainYarnLock, StrainBunLock:
		typ = packageurl.TypeNPM
	case StrainComposerLock:
		typ = packageurl.TypeComposer
	case StrainUvLock:
		typ = packageurl.TypePyPi
	default:
		typ = packageurl.TypeGeneric
	}
	name = p.Name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		namespace, name = name[:i], name[i+1:]
	}
	return packageurl.NewPackageURL(typ, namespace, name, p.Version, nil, "").String()
}

// Parse dispatches on the strain.
func Parse(strain, data string) ([]Package, error) {
	switch strain {
	case StrainCargoLock:
		return parseCargoLock(data)
	case StrainPackageLock:
		return parsePackageLock(data)
	case StrainYarnLock:
		return parseYarnLock(data)
	case StrainComposerLock:
		return parseComposerLock(data)
	case StrainUvLock:
		return parseUvLock(data)
	case StrainBunLock:
		return parseBunLock(data)
	}
	return nil, fmt.Errorf("sbom: unknown strain %q", strain)
}

// decodeIntegrity converts an SRI "family-base64" value into
// "family:hex" form. Unparseable values report false.
func decodeIntegrity(integrity string) (string, bool) {
	family, b64, ok := strings.Cut(integrity, "-")
	if !ok {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", false
	}
	return family + ":" + hex.EncodeToString(raw), true
}
