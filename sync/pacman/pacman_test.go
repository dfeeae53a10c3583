package pacman

import "testing"

func TestParseStateLine(t *testing.T) {
	pkgbase, version, tag, ok := parseStateLine("zlib 1:1.3.1-2 1-1.3.1-2\n")
	if !ok {
		t.Fatal("expected ok")
	}
	if pkgbase != "zlib" || version != "1:1.3.1-2" || tag != "1-1.3.1-2" {
		t.Errorf("got (%q, %q, %q)", pkgbase, version, tag)
	}
	if _, _, _, ok := parseStateLine("zlib 1:1.3.1-2"); ok {
		t.Error("expected short line to fail")
	}
}

func TestMatchesRepo(t *testing.T) {
	s := &Syncer{repos: defaultRepos}
	tt := []struct {
		name string
		want bool
	}{
		{"state-main/core-x86_64/zlib", true},
		{"state-main/extra-x86_64/ripgrep", true},
		{"state-main/multilib-x86_64/wine", false},
		{"state-main/README.md", false},
	}
	for _, tc := range tt {
		if got := s.matchesRepo(tc.name); got != tc.want {
			t.Errorf("matchesRepo(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}
