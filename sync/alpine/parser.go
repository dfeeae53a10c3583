package alpine

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Pkg is one package stanza of an APKINDEX.
type Pkg struct {
	Package string
	// Origin is always set in Alpine but sometimes missing in Wolfi.
	Origin  string
	Version string
	// Commit is sometimes missing in Wolfi; packages without one are
	// not importable.
	Commit string
}

// findIndexEntry walks the tar stream until the APKINDEX member.
func findIndexEntry(r io.Reader) (io.Reader, error) {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil, errors.New("alpine: no APKINDEX member in index tar")
		case err != nil:
			return nil, fmt.Errorf("alpine: walking index tar: %w", err)
		}
		if h.Typeflag != tar.TypeReg || h.Name != "APKINDEX" {
			continue
		}
		return tr, nil
	}
}

// parse reads APKINDEX stanzas, calling fn once per package. Stanzas
// are blank-line separated "K:value" lines; only a handful of keys
// matter here. A stanza missing P or V is reported through skip and
// dropped; it never aborts the parse.
func parse(r io.Reader, fn func(*Pkg) error, skip func(reason string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	cur := make(map[string]string)
	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		p := Pkg{
			Package: cur["P"],
			Origin:  cur["o"],
			Version: cur["V"],
			Commit:  cur["c"],
		}
		clear(cur)
		if p.Package == "" || p.Version == "" {
			if skip != nil {
				skip("package stanza missing P or V")
			}
			return nil
		}
		return fn(&p)
	}
	for s.Scan() {
		line := s.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			cur[k] = v
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("alpine: reading index: %w", err)
	}
	return flush()
}
