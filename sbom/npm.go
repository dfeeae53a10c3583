package sbom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NpmRegistry is the host official npm tarballs resolve to.
const NpmRegistry = "https://registry.npmjs.org/"

type packageLock struct {
	Packages map[string]npmPackage `json:"packages"`
}

type npmPackage struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Resolved  string `json:"resolved"`
	Integrity string `json:"integrity"`
}

// parsePackageLock reads an npm package-lock.json (v2/v3 layout). The
// empty-keyed root entry and unnamed link entries are dropped.
func parsePackageLock(data string) ([]Package, error) {
	var lock packageLock
	if err := json.Unmarshal([]byte(data), &lock); err != nil {
		return nil, fmt.Errorf("sbom: decoding package-lock.json: %w", err)
	}
	keys := make([]string, 0, len(lock.Packages))
	for k := range lock.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Package
	for _, key := range keys {
		p := lock.Packages[key]
		name := p.Name
		if name == "" {
			// The map key is a node_modules path; the last
			// node_modules segment prefixes the package name.
			if i := strings.LastIndex(key, "node_modules/"); i >= 0 {
				name = key[i+len("node_modules/"):]
			}
		}
		if name == "" {
			continue
		}
		pkg := Package{
			Name:             name,
			Version:          p.Version,
			URL:              p.Resolved,
			OfficialRegistry: isOfficialNpmURL(name, p.Resolved),
		}
		if sum, ok := decodeIntegrity(p.Integrity); ok {
			pkg.Checksum = sum
		}
		out = append(out, pkg)
	}
	return out, nil
}

func isOfficialNpmURL(name, url string) bool {
	rest, ok := strings.CutPrefix(url, NpmRegistry)
	if !ok {
		return false
	}
	rest, ok = strings.CutPrefix(rest, name)
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, "/-/")
}
