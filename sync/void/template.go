package void

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Template is the subset of a void-packages build template a sync
// pass cares about.
type Template struct {
	Pkgname   string
	Version   string
	Revision  string
	Distfiles []string
	Checksum  []string
	// extra holds helper variables (_pkgname and friends) kept only
	// for interpolation.
	extra map[string]string
}

// siteVars mirror common/environment/setup/misc.sh of void-packages.
var siteVars = map[string]string{
	"SOURCEFORGE_SITE": "https://downloads.sourceforge.net/sourceforge",
	"NONGNU_SITE":      "https://download.savannah.nongnu.org/releases",
	"UBUNTU_SITE":      "http://archive.ubuntu.com/ubuntu/pool",
	"XORG_SITE":        "https://www.x.org/releases/individual",
	"DEBIAN_SITE":      "https://ftp.debian.org/debian/pool",
	"GNOME_SITE":       "https://download.gnome.org/sources",
	"KERNEL_SITE":      "https://www.kernel.org/pub/linux",
	"CPAN_SITE":        "https://www.cpan.org/modules/by-module",
	"PYPI_SITE":        "https://files.pythonhosted.org/packages/source",
	"MOZILLA_SITE":     "https://ftp.mozilla.org/pub",
	"GNU_SITE":         "https://ftp.gnu.org/gnu",
	"FREEDESKTOP_SITE": "https://freedesktop.org/software",
	"KDE_SITE":         "https://download.kde.org/stable",
	"VIDEOLAN_SITE":    "https://download.videolan.org/pub/videolan",
}

// trackedVars are helper assignments kept for interpolation only.
var trackedVars = map[string]bool{
	"_pkgname": true,
	"_pkgver":  true,
	"_gitrev":  true,
	"_commit":  true,
	"url":      true,
}

// parseTemplate reads the variable assignments of a build template.
// Templates are shell, but the assignments that matter are plain
// "name=value" lines, with double-quoted values continuing across
// lines. Function bodies are skipped wholesale.
func parseTemplate(r io.Reader) (*Template, error) {
	t := Template{extra: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	depth := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if depth > 0 {
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			continue
		}
		if strings.HasSuffix(line, "{") {
			depth = 1
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || !validVarName(name) {
			continue
		}
		if strings.HasPrefix(value, `"`) && !closedQuote(value) {
			var b strings.Builder
			b.WriteString(value)
			for sc.Scan() {
				b.WriteString(" ")
				b.WriteString(strings.TrimSpace(sc.Text()))
				if closedQuote(b.String()) {
					break
				}
			}
			value = b.String()
		}
		value = strings.Trim(value, `"'`)
		value, err := t.resolveVars(value)
		if err != nil {
			// A variable this parser doesn't track; the template is
			// still usable if distfiles don't depend on it.
			continue
		}
		switch {
		case name == "pkgname":
			t.Pkgname = value
		case name == "version":
			t.Version = value
		case name == "revision":
			t.Revision = value
		case name == "distfiles":
			t.Distfiles = strings.Fields(value)
		case name == "checksum":
			t.Checksum = strings.Fields(value)
		case trackedVars[name]:
			t.extra[name] = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("void: reading template: %w", err)
	}
	return &t, nil
}

// resolveVars interpolates $name and ${name} against the variables
// the parser tracks.
func (t *Template) resolveVars(text string) (string, error) {
	var out strings.Builder
	for text != "" {
		before, after, ok := strings.Cut(text, "$")
		out.WriteString(before)
		if !ok {
			break
		}
		after, curly := strings.CutPrefix(after, "{")
		name := varPrefix(after)
		if name == "" {
			return "", fmt.Errorf("void: dangling $ in %q", text)
		}
		value, ok := t.lookup(name)
		if !ok {
			return "", fmt.Errorf("void: unknown variable %q", name)
		}
		out.WriteString(value)
		rest := after[len(name):]
		if curly {
			rest, ok = strings.CutPrefix(rest, "}")
			if !ok {
				return "", fmt.Errorf("void: missing closing brace in %q", text)
			}
		}
		text = rest
	}
	return out.String(), nil
}

func (t *Template) lookup(name string) (string, bool) {
	switch name {
	case "pkgname":
		return t.Pkgname, t.Pkgname != ""
	case "version":
		return t.Version, t.Version != ""
	}
	if v, ok := siteVars[name]; ok {
		return v, true
	}
	v, ok := t.extra[name]
	return v, ok
}

func varPrefix(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return s[:i]
	}
	return s
}

func validVarName(s string) bool {
	if s == "" {
		return false
	}
	return varPrefix(s) == s
}

func closedQuote(s string) bool {
	return strings.Count(s, `"`)%2 == 0
}
