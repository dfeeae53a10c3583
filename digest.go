package srctrace

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Digest is a content checksum tagged with the algorithm that produced
// it, e.g. "sha256:9f86d0…".
//
// The canonical algorithm for artifact identity is sha256; sha512 and
// blake2b digests of the same content are recorded as aliases of the
// sha256 digest.
type Digest struct {
	algo     string
	checksum []byte
}

// Supported digest algorithms.
const (
	SHA256  = "sha256"
	SHA512  = "sha512"
	BLAKE2b = "blake2b"
)

func (d Digest) Checksum() []byte { return d.checksum }

func (d Digest) Algorithm() string { return d.algo }

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool { return d.algo == "" }

// Equal reports whether both digests carry the same algorithm and
// checksum.
func (d Digest) Equal(o Digest) bool {
	return d.algo == o.algo && bytes.Equal(d.checksum, o.checksum)
}

// Hash returns a new hash.Hash for the digest's algorithm.
func (d Digest) Hash() hash.Hash {
	switch d.algo {
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	case BLAKE2b:
		h, err := blake2b.New512(nil)
		if err != nil {
			panic("blake2b: " + err.Error())
		}
		return h
	default:
		panic(fmt.Sprintf("digest: unknown algorithm %q", d.algo))
	}
}

func (d Digest) String() string {
	b, _ := d.MarshalText()
	return string(b)
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	el := hex.EncodedLen(len(d.checksum))
	hl := len(d.algo) + 1
	b := make([]byte, hl+el)
	copy(b, d.algo)
	b[len(d.algo)] = ':'
	hex.Encode(b[hl:], d.checksum)
	return b, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(t []byte) error {
	i := bytes.IndexByte(t, ':')
	if i == -1 {
		return fmt.Errorf("invalid digest format")
	}
	d.algo = string(t[:i])
	t = t[i+1:]
	d.checksum = make([]byte, hex.DecodedLen(len(t)))
	if _, err := hex.Decode(d.checksum, t); err != nil {
		return fmt.Errorf("invalid digest format")
	}
	switch l := len(d.checksum); {
	case d.algo == SHA256 && l == sha256.Size:
	case d.algo == SHA512 && l == sha512.Size:
	case d.algo == BLAKE2b && l == blake2b.Size:
	default:
		return fmt.Errorf("invalid digest length %d for %q", l, d.algo)
	}
	return nil
}

// Scan implements sql.Scanner.
func (d *Digest) Scan(i interface{}) error {
	s, ok := i.(string)
	if !ok {
		return fmt.Errorf("invalid digest type")
	}
	return d.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer.
func (d Digest) Value() (driver.Value, error) {
	b, err := d.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func NewDigest(algo string, sum []byte) Digest {
	return Digest{
		algo:     algo,
		checksum: sum,
	}
}

func ParseDigest(digest string) (Digest, error) {
	d := Digest{}
	return d, d.UnmarshalText([]byte(digest))
}
