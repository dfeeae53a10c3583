package srctrace

import (
	"strings"
	"testing"
)

func TestDigestRoundtrip(t *testing.T) {
	tt := []string{
		"sha256:55f514c48ef9359b792e23abbad6ca8a1e999065ba8879d8717fecb52efc1ea0",
		"sha512:d2d14d47a23f20ef522b76765b9feb80d6d66f06b97d8ba8cbabebdee483880d31cf0522eb318613d94a808cde4e8ef8860733f8bde41dd7c4fca3b82cd354eb",
		"blake2b:601ba064ff937c07e0695408111694230af5eeef97bd3d783d619d88dcb4a434cebb38d2eb6fc7a3b9b36e9e76676c18ba237c3eea922fe7cf41d61bcf86f65a",
	}
	for _, want := range tt {
		d, err := ParseDigest(want)
		if err != nil {
			t.Fatalf("%s: %v", want, err)
		}
		if got := d.String(); got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
		algo, _, _ := strings.Cut(want, ":")
		if got := d.Algorithm(); got != algo {
			t.Errorf("got: %q, want: %q", got, algo)
		}
		h := d.Hash()
		if h.Size() != len(d.Checksum()) {
			t.Errorf("hash size %d does not match checksum length %d", h.Size(), len(d.Checksum()))
		}
	}
}

func TestDigestInvalid(t *testing.T) {
	tt := []string{
		"",
		"sha256",
		"sha256:",
		"sha256:абвгд",
		"sha256:9f86d0",
		"md5:9e107d9d372bb6826bd81d3542a419d6",
	}
	for _, in := range tt {
		if _, err := ParseDigest(in); err == nil {
			t.Errorf("%q: expected error, got nil", in)
		}
	}
}

func TestDigestScanValue(t *testing.T) {
	const want = "sha256:9390fb29874d4e70ae4e8379aa7fc396e0a44cacf8256aa8d87fdec9b56261d4"
	var d Digest
	if err := d.Scan(want); err != nil {
		t.Fatal(err)
	}
	v, err := d.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != want {
		t.Errorf("got: %v, want: %q", v, want)
	}
	if err := d.Scan(42); err == nil {
		t.Error("expected error scanning non-string")
	}
}
