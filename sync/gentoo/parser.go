package gentoo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ManifestEntry is one DIST line of an ebuild Manifest.
type ManifestEntry struct {
	Filename string
	Size     int64
	BLAKE2b  string
	SHA512   string
}

// parseManifestEntry parses a "DIST <file> <size> [ALGO hex]..." line.
func parseManifestEntry(line string) (*ManifestEntry, error) {
	rest, ok := strings.CutPrefix(line, "DIST ")
	if !ok {
		return nil, fmt.Errorf("gentoo: not a DIST line: %q", line)
	}
	filename, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, fmt.Errorf("gentoo: malformed DIST line: %q", line)
	}
	size, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, fmt.Errorf("gentoo: malformed DIST line: %q", line)
	}
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gentoo: malformed size in DIST line: %q", line)
	}
	e := ManifestEntry{Filename: filename, Size: n}
	fields := strings.Fields(rest)
	for i := 0; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "BLAKE2B":
			e.BLAKE2b = fields[i+1]
		case "SHA512":
			e.SHA512 = fields[i+1]
		}
	}
	return &e, nil
}

// parseSrcURI extracts the filename → URL pairs of an md5-cache
// SRC_URI value. Entries default their filename to the URL basename
// unless an explicit "-> name" rename follows; USE-conditional
// groupings are skipped over.
func parseSrcURI(data string) map[string]string {
	inputs := make(map[string]string)
	var value string
	for _, line := range strings.Split(data, "\n") {
		if v, ok := strings.CutPrefix(line, "SRC_URI="); ok {
			value = v
			break
		}
	}
	for value != "" {
		url, remaining, _ := cutOr(value, " ")
		var filename string
		if r, ok := strings.CutPrefix(remaining, "-> "); ok {
			filename, remaining, _ = cutOr(r, " ")
		} else {
			_, filename = rsplit(url, '/')
		}
		remaining = strings.TrimPrefix(remaining, "verify-sig? ")
		if strings.HasPrefix(remaining, "(") {
			if _, r, ok := strings.Cut(remaining, ")"); ok {
				remaining = r
			}
		}
		inputs[filename] = url
		value = strings.TrimLeft(remaining, " ")
	}
	return inputs
}

func cutOr(s, sep string) (string, string, bool) {
	if a, b, ok := strings.Cut(s, sep); ok {
		return a, b, true
	}
	return s, "", false
}

func rsplit(s string, sep byte) (string, string) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// parsePkgnameVersion splits an md5-cache entry name like
// "ripgrep-14.1.0" or "foo-1.2.3-r1" into package and version.
func parsePkgnameVersion(name string) (pkg, version string, err error) {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return "", "", errors.New("gentoo: malformed cache entry name: " + name)
	}
	pkg, version = name[:i], name[i+1:]
	if strings.HasPrefix(version, "r") {
		j := strings.LastIndexByte(pkg, '-')
		if j < 0 {
			return "", "", errors.New("gentoo: malformed cache entry name: " + name)
		}
		pkg, version = name[:j], name[j+1:]
	}
	return pkg, version, nil
}
