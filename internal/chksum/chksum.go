// Package chksum computes the full set of content digests over a
// single pass of a byte stream.
//
// Every archive is hashed with sha256, sha512 and blake2b at once;
// sha256 is the canonical identity and the other two are registered as
// aliases, so third-party checksums in any of the three algorithms can
// be resolved to the same artifact.
package chksum

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/srctrace/srctrace"
)

// Checksums is the digest set of one stream.
type Checksums struct {
	SHA256  srctrace.Digest
	SHA512  srctrace.Digest
	BLAKE2b srctrace.Digest
	Size    int64
}

// Hasher is an io.Writer fanning out to all supported hash functions.
// Wire it up with an io.TeeReader over the stream being consumed.
type Hasher struct {
	sha256  hash.Hash
	sha512  hash.Hash
	blake2b hash.Hash
	size    int64
}

var _ io.Writer = (*Hasher)(nil)

func New() *Hasher {
	b, err := blake2b.New512(nil)
	if err != nil {
		// Only reachable with a non-nil key.
		panic("chksum: " + err.Error())
	}
	return &Hasher{
		sha256:  sha256.New(),
		sha512:  sha512.New(),
		blake2b: b,
	}
}

// Write implements io.Writer. It never errors.
func (h *Hasher) Write(p []byte) (int, error) {
	h.sha256.Write(p)
	h.sha512.Write(p)
	h.blake2b.Write(p)
	h.size += int64(len(p))
	return len(p), nil
}

// Checksums finalizes the digests. The Hasher remains usable; digests
// reflect everything written so far.
func (h *Hasher) Checksums() Checksums {
	return Checksums{
		SHA256:  srctrace.NewDigest(srctrace.SHA256, h.sha256.Sum(nil)),
		SHA512:  srctrace.NewDigest(srctrace.SHA512, h.sha512.Sum(nil)),
		BLAKE2b: srctrace.NewDigest(srctrace.BLAKE2b, h.blake2b.Sum(nil)),
		Size:    h.size,
	}
}

// Sum256 is a one-shot sha256 digest of in-memory data.
func Sum256(b []byte) srctrace.Digest {
	sum := sha256.Sum256(b)
	return srctrace.NewDigest(srctrace.SHA256, sum[:])
}
