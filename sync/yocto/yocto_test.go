package yocto

import "testing"

func TestExpandSrcURI(t *testing.T) {
	r := &Recipe{PN: "zlib", PV: "1.3.1"}
	tt := []struct {
		in   string
		want string
		ok   bool
	}{
		{
			in:   "https://zlib.net/${BP}.tar.xz;name=tarball",
			want: "https://zlib.net/zlib-1.3.1.tar.xz",
			ok:   true,
		},
		{
			in:   "${GNU_MIRROR}/gawk/gawk-${PV}.tar.gz",
			want: "https://ftp.gnu.org/gnu/gawk/gawk-1.3.1.tar.gz",
			ok:   true,
		},
		{
			in: "git://github.com/example/${BPN};branch=master",
			ok: false,
		},
		{
			in: "https://example.com/${UNCLOSED",
			ok: false,
		},
	}
	for _, tc := range tt {
		got, ok := expandSrcURI(tc.in, r)
		if ok != tc.ok {
			t.Errorf("expandSrcURI(%q): ok=%v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("expandSrcURI(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
