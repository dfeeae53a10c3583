package driver

import "testing"

func TestIsTarArtifactURL(t *testing.T) {
	tt := []struct {
		url  string
		want bool
	}{
		{"https://example.com/foo-1.0.tar.gz", true},
		{"http://example.com/foo-1.0.tar.xz", true},
		{"https://crates.io/api/v1/crates/serde/1.0.195/download", false},
		{"https://example.com/serde-1.0.195.crate", true},
		{"https://example.com/foo-1.0.tgz", true},
		{"https://example.com/foo-1.0.zip", false},
		{"git+https://github.com/example/repo", false},
		{"ftp://example.com/foo.tar.gz", false},
	}
	for _, tc := range tt {
		if got := IsTarArtifactURL(tc.url); got != tc.want {
			t.Errorf("IsTarArtifactURL(%q): got %v, want %v", tc.url, got, tc.want)
		}
	}
}
