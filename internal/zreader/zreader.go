// Package zreader provides transparent decompression based on
// magic-byte sniffing, for upstreams that serve archives with useless
// or absent content types.
package zreader

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression is the detected framing of a stream.
type Compression int

const (
	KindNone Compression = iota
	KindGzip
	KindZstd
	KindXz
	KindBzip2
)

// Label is the short name used in alias reasons, e.g. "gz" in
// "gz(tar)". Plain streams have no label.
func (c Compression) Label() string {
	switch c {
	case KindGzip:
		return "gz"
	case KindZstd:
		return "zstd"
	case KindXz:
		return "xz"
	case KindBzip2:
		return "bz2"
	}
	return ""
}

var magic = map[Compression][]byte{
	KindGzip:  {0x1F, 0x8B, 0x08},
	KindZstd:  {0x28, 0xB5, 0x2F, 0xFD},
	KindXz:    {0xFD, '7', 'z', 'X', 'Z', 0x00},
	KindBzip2: {'B', 'Z', 'h'},
}

// Detect sniffs the compression of the stream without consuming it.
func Detect(br *bufio.Reader) (Compression, error) {
	b, err := br.Peek(6)
	if err != nil && len(b) == 0 {
		return KindNone, err
	}
	for c, h := range magic {
		if len(b) >= len(h) && bytes.Equal(b[:len(h)], h) {
			return c, nil
		}
	}
	return KindNone, nil
}

// Reader wraps r in the appropriate decompressor. The returned reader
// must be closed; closing it does not close r.
func Reader(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	c, err := Detect(br)
	if err != nil {
		return nil, KindNone, err
	}
	zr, err := reader(br, c)
	return zr, c, err
}

func reader(br *bufio.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case KindGzip:
		g, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return g, nil
	case KindZstd:
		z, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &zstdCloser{z}, nil
	case KindXz:
		x, err := xz.NewReader(br)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(x), nil
	case KindBzip2:
		return io.NopCloser(bzip2.NewReader(br)), nil
	}
	return io.NopCloser(br), nil
}

// zstdCloser adapts zstd.Decoder's non-standard Close.
type zstdCloser struct {
	*zstd.Decoder
}

func (z *zstdCloser) Close() error {
	z.Decoder.Close()
	return nil
}
