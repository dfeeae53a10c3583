package sbom

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PypiFilesHost is the prefix of official sdist download locations.
const PypiFilesHost = "https://files.pythonhosted.org/packages/"

type uvLock struct {
	Packages []uvPackage `toml:"package"`
}

type uvPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Source  struct {
		Registry string `toml:"registry"`
	} `toml:"source"`
	SDist struct {
		URL  string `toml:"url"`
		Hash string `toml:"hash"`
	} `toml:"sdist"`
}

// parseUvLock reads a uv.lock. Only sdists are pinned with a fetchable
// source location; wheel-only and virtual entries pass through without
// one.
func parseUvLock(data string) ([]Package, error) {
	var lock uvLock
	if err := toml.Unmarshal([]byte(data), &lock); err != nil {
		return nil, fmt.Errorf("sbom: decoding uv.lock: %w", err)
	}
	var out []Package
	for _, p := range lock.Packages {
		if p.Name == "" || p.Version == "" {
			continue
		}
		pkg := Package{
			Name:             p.Name,
			Version:          p.Version,
			OfficialRegistry: p.Source.Registry == "https://pypi.org/simple",
		}
		if p.SDist.URL != "" {
			if !strings.HasPrefix(p.SDist.URL, PypiFilesHost) {
				pkg.OfficialRegistry = false
			}
			pkg.URL = p.SDist.URL
			pkg.Checksum = p.SDist.Hash
		}
		out = append(out, pkg)
	}
	return out, nil
}
