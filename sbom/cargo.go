package sbom

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// CratesRegistry is the source string Cargo.lock uses for crates.io.
const CratesRegistry = "registry+https://github.com/rust-lang/crates.io-index"

// CrateURL is the canonical download location of a crates.io crate.
func CrateURL(name, version string) string {
	return fmt.Sprintf("https://crates.io/api/v1/crates/%s/%s/download", name, version)
}

type cargoLock struct {
	Packages []cargoPackage `toml:"package"`
}

type cargoPackage struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Source   string `toml:"source"`
	Checksum string `toml:"checksum"`
}

// parseCargoLock reads a Cargo.lock document. Path and git
// dependencies carry no checksum and are surfaced without one.
func parseCargoLock(data string) ([]Package, error) {
	var lock cargoLock
	if err := toml.Unmarshal([]byte(data), &lock); err != nil {
		return nil, fmt.Errorf("sbom: decoding Cargo.lock: %w", err)
	}
	out := make([]Package, 0, len(lock.Packages))
	for _, p := range lock.Packages {
		if p.Name == "" || p.Version == "" {
			continue
		}
		pkg := Package{
			Name:             p.Name,
			Version:          p.Version,
			OfficialRegistry: p.Source == CratesRegistry,
		}
		if pkg.OfficialRegistry {
			pkg.URL = CrateURL(p.Name, p.Version)
			if p.Checksum != "" {
				pkg.Checksum = "sha256:" + p.Checksum
			}
		}
		out = append(out, pkg)
	}
	return out, nil
}
