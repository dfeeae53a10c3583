package sbom

import (
	"bufio"
	"strings"
)

// parseYarnLock reads a classic (v1) yarn.lock. The format is
// line-oriented: an unindented "name@range[, name@range]:" line opens
// an entry and indented key/value lines fill it in.
func parseYarnLock(data string) ([]Package, error) {
	var (
		out []Package
		cur *Package
	)
	flush := func() {
		if cur != nil && cur.Name != "" && cur.Version != "" {
			out = append(out, *cur)
		}
		cur = nil
	}
	s := bufio.NewScanner(strings.NewReader(data))
	for s.Scan() {
		line := s.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case !strings.HasPrefix(line, " "):
			flush()
			cur = &Package{Name: yarnEntryName(line)}
		case cur == nil:
			continue
		default:
			key, val, ok := yarnField(line)
			if !ok {
				continue
			}
			switch key {
			case "version":
				cur.Version = val
			case "resolved":
				cur.URL = val
				cur.OfficialRegistry = strings.HasPrefix(val, "https://registry.yarnpkg.com/") ||
					strings.HasPrefix(val, NpmRegistry)
			case "integrity":
				if sum, ok := decodeIntegrity(val); ok {
					cur.Checksum = sum
				}
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// yarnEntryName extracts the package name from an entry header like
// `"@babel/core@^7.0.0", "@babel/core@^7.1.0":`.
func yarnEntryName(line string) string {
	line = strings.TrimSuffix(line, ":")
	first, _, _ := strings.Cut(line, ",")
	first = strings.Trim(strings.TrimSpace(first), `"`)
	// The version range starts at the last "@"; scoped names keep
	// their leading one.
	if i := strings.LastIndex(first, "@"); i > 0 {
		return first[:i]
	}
	return first
}

func yarnField(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	key, val, ok = strings.Cut(line, " ")
	if !ok {
		return "", "", false
	}
	return strings.Trim(key, `"`), strings.Trim(val, `"`), true
}
