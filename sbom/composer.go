package sbom

import (
	"encoding/json"
	"fmt"
	"strings"
)

type composerLock struct {
	Packages []composerPackage `json:"packages"`
}

type composerPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  struct {
		Type      string `json:"type"`
		URL       string `json:"url"`
		Reference string `json:"reference"`
	} `json:"source"`
}

// parseComposerLock reads a composer.lock. Composer pins git revisions
// rather than tarball digests, so the checksum records the revision.
func parseComposerLock(data string) ([]Package, error) {
	var lock composerLock
	if err := json.Unmarshal([]byte(data), &lock); err != nil {
		return nil, fmt.Errorf("sbom: decoding composer.lock: %w", err)
	}
	out := make([]Package, 0, len(lock.Packages))
	for _, p := range lock.Packages {
		pkg := Package{
			Name:             p.Name,
			Version:          p.Version,
			OfficialRegistry: true,
		}
		if p.Source.Type == "git" && strings.HasPrefix(p.Source.URL, "https://") {
			pkg.URL = p.Source.URL
			pkg.Checksum = "git:" + p.Source.Reference
		}
		out = append(out, pkg)
	}
	return out, nil
}
