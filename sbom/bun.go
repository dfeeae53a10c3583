package sbom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type bunLock struct {
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]json.RawMessage `json:"packages"`
}

// parseBunLock reads a bun.lock. The file is JSONC with trailing
// commas, so it is normalized to strict JSON first. Registry entries
// are 4-tuples of [id, url, meta, integrity]; anything else (git,
// github, workspace pins) is skipped.
func parseBunLock(data string) ([]Package, error) {
	var lock bunLock
	if err := json.Unmarshal(stripJSONC(data), &lock); err != nil {
		return nil, fmt.Errorf("sbom: decoding bun.lock: %w", err)
	}
	keys := make([]string, 0, len(lock.Packages))
	for k := range lock.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		out  []Package
		seen = map[Package]struct{}{}
	)
	for _, key := range keys {
		var tuple []json.RawMessage
		if err := json.Unmarshal(lock.Packages[key], &tuple); err != nil || len(tuple) < 4 {
			continue
		}
		var id, url, integrity string
		if json.Unmarshal(tuple[0], &id) != nil ||
			json.Unmarshal(tuple[1], &url) != nil ||
			json.Unmarshal(tuple[3], &integrity) != nil {
			continue
		}
		i := strings.LastIndex(id, "@")
		if i <= 0 {
			continue
		}
		name, version := id[:i], id[i+1:]
		official := url == ""
		if official {
			unnamespaced := name
			if j := strings.LastIndex(name, "/"); j >= 0 {
				unnamespaced = name[j+1:]
			}
			url = fmt.Sprintf("%s%s/-/%s-%s.tgz", NpmRegistry, name, unnamespaced, version)
		}
		pkg := Package{
			Name:             name,
			Version:          version,
			URL:              url,
			OfficialRegistry: official,
		}
		if sum, ok := decodeIntegrity(integrity); ok {
			pkg.Checksum = sum
		}
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}
		out = append(out, pkg)
	}
	return out, nil
}

// stripJSONC removes the trailing commas bun emits, leaving strict
// JSON. String contents are left untouched.
func stripJSONC(data string) []byte {
	var (
		out     = make([]byte, 0, len(data))
		inStr   bool
		escaped bool
	)
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case inStr:
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == ',':
			// Drop the comma when the next non-space byte closes a
			// container.
			j := i + 1
			for j < len(data) && (data[j] == ' ' || data[j] == '\t' || data[j] == '\n' || data[j] == '\r') {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
