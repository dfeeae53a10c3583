package debian

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SourcePkg is one stanza of a Sources control index.
type SourcePkg struct {
	Package   string
	Version   string
	Directory string
	// Checksums holds the Checksums-Sha256 continuation lines.
	Checksums []FileChecksum
}

// FileChecksum is one "hash size filename" line.
type FileChecksum struct {
	SHA256   string
	Size     int64
	Filename string
}

// parseSources reads an uncompressed Sources index, calling fn once
// per complete stanza. Continuation lines outside a Checksums-Sha256
// section are ignored. A malformed checksum line is reported through
// skip and dropped; it never aborts the parse.
func parseSources(r io.Reader, fn func(*SourcePkg) error, skip func(reason string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var (
		cur         *SourcePkg
		inChecksums bool
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		p := cur
		cur, inChecksums = nil, false
		return fn(p)
	}
	for s.Scan() {
		line := s.Text()
		switch {
		case strings.HasPrefix(line, "Package: "):
			if err := flush(); err != nil {
				return err
			}
			cur = &SourcePkg{Package: strings.TrimPrefix(line, "Package: ")}
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case cur == nil:
			// Preamble or a stanza whose Package line was malformed.
		case strings.HasPrefix(line, "Version: "):
			cur.Version = strings.TrimPrefix(line, "Version: ")
		case strings.HasPrefix(line, "Directory: "):
			cur.Directory = strings.TrimPrefix(line, "Directory: ")
		case strings.TrimRight(line, " \t") == "Checksums-Sha256:":
			inChecksums = true
		case strings.HasPrefix(line, " "):
			if !inChecksums {
				continue
			}
			c, err := parseChecksumLine(line[1:])
			if err != nil {
				if skip != nil {
					skip("malformed checksum line")
				}
				continue
			}
			cur.Checksums = append(cur.Checksums, *c)
		default:
			inChecksums = false
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("debian: reading index: %w", err)
	}
	return flush()
}

func parseChecksumLine(line string) (*FileChecksum, error) {
	hash, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("debian: malformed checksum line %q", line)
	}
	size, name, ok := strings.Cut(rest, " ")
	if !ok {
		return nil, fmt.Errorf("debian: malformed checksum line %q", line)
	}
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("debian: malformed size in checksum line %q", line)
	}
	return &FileChecksum{SHA256: hash, Size: n, Filename: name}, nil
}

// isOrigTarball reports whether the filename is an upstream source
// tarball, the only members worth fetching.
func isOrigTarball(name string) bool {
	for _, suffix := range []string{".orig.tar.gz", ".orig.tar.xz", ".orig.tar.bz2"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
