package stagex

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/srctrace/srctrace"
)

// Manifest is the package.toml document of one stagex package.
type Manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Sources map[string]Source `toml:"sources"`
}

// Source is one pinned upstream artifact.
type Source struct {
	Hash    string   `toml:"hash"`
	Format  string   `toml:"format"`
	File    string   `toml:"file"`
	Mirrors []string `toml:"mirrors"`
}

// ParseManifest decodes one package.toml.
func ParseManifest(buf []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("stagex: decoding manifest: %w", err)
	}
	if m.Package.Name == "" || m.Package.Version == "" {
		return nil, fmt.Errorf("stagex: manifest missing package name or version")
	}
	return &m, nil
}

// Refs builds one ref per source, using the first mirror of each.
func (m *Manifest) Refs() ([]srctrace.Ref, error) {
	refs := make([]srctrace.Ref, 0, len(m.Sources))
	for _, src := range m.Sources {
		if src.Hash == "" || len(src.Mirrors) == 0 {
			continue
		}
		d, err := srctrace.ParseDigest("sha256:" + src.Hash)
		if err != nil {
			return nil, fmt.Errorf("stagex: source of %q: %w", m.Package.Name, err)
		}
		url := m.interpolate(src.Mirrors[0], &src)
		refs = append(refs, *srctrace.NewRef(d, "stagex", m.Package.Name, m.Package.Version, url))
	}
	return refs, nil
}

// interpolate expands the placeholder scheme mirror URLs use.
func (m *Manifest) interpolate(url string, src *Source) string {
	v := m.Package.Version
	major, rest, _ := strings.Cut(v, ".")
	minor, _, _ := strings.Cut(rest, ".")
	r := strings.NewReplacer(
		"{version}", v,
		"{version_dash}", strings.ReplaceAll(v, ".", "-"),
		"{version_under}", strings.ReplaceAll(v, ".", "_"),
		"{version_major}", major,
		"{version_major_minor}", major+"."+minor,
		"{version_strip_suffix}", stripSuffix(v),
		"{format}", src.Format,
		"{file}", src.File,
	)
	return r.Replace(url)
}

// stripSuffix drops a trailing non-numeric version component, like the
// "-beta" of "1.2.0-beta".
func stripSuffix(v string) string {
	if i := strings.IndexAny(v, "-+~"); i >= 0 {
		return v[:i]
	}
	return v
}
