package zreader

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

func TestRoundtrip(t *testing.T) {
	const payload = "hello hello this hopefully compresses well"

	mk := map[string]struct {
		Kind Compression
		Enc  func(t *testing.T) []byte
	}{
		"Plain": {KindNone, func(t *testing.T) []byte {
			return []byte(payload)
		}},
		"Gzip": {KindGzip, func(t *testing.T) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write([]byte(payload))
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			return buf.Bytes()
		}},
		"Zstd": {KindZstd, func(t *testing.T) []byte {
			var buf bytes.Buffer
			w, err := zstd.NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			w.Write([]byte(payload))
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			return buf.Bytes()
		}},
		"Xz": {KindXz, func(t *testing.T) []byte {
			var buf bytes.Buffer
			w, err := xz.NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			w.Write([]byte(payload))
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			return buf.Bytes()
		}},
	}

	for name, tc := range mk {
		t.Run(name, func(t *testing.T) {
			in := tc.Enc(t)
			r, c, err := Reader(bytes.NewReader(in))
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			if c != tc.Kind {
				t.Errorf("got compression %v, want %v", c, tc.Kind)
			}
			out, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != payload {
				t.Errorf("got: %q, want: %q", out, payload)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	want := map[Compression]string{
		KindNone:  "",
		KindGzip:  "gz",
		KindZstd:  "zstd",
		KindXz:    "xz",
		KindBzip2: "bz2",
	}
	for c, label := range want {
		if got := c.Label(); got != label {
			t.Errorf("got: %q, want: %q", got, label)
		}
	}
}
