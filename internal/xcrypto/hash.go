package xcrypto

import (
	"lukechampine.com/blake3"
)

// HashSize is the length in bytes of a Blake3 digest as used throughout the
// store (node/edge signing hashes, daily and history hashes).
const HashSize = 32

// Hash returns the Blake3 digest of data.
func Hash(data ...[]byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveKey derives context-bound key material from keyMaterial, matching
// Blake3's keyed-derivation construction: a fixed, well-known context string
// combined with arbitrary key material to produce a new pseudo-random key.
func DeriveKey(context string, keyMaterial []byte) [HashSize]byte {
	var out [HashSize]byte
	digest := blake3.DeriveKey(context, keyMaterial)
	copy(out[:], digest)
	return out
}

// Hasher is an incremental Blake3 hasher, used where a digest is built up
// from many pieces written one at a time (the daily log's per-room digest
// over an unbounded number of signatures) rather than from a single slice.
type Hasher struct {
	h     *blake3.Hasher
	count int
}

// NewHasher returns an empty incremental hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(HashSize, nil)}
}

// Write feeds data into the digest.
func (h *Hasher) Write(data []byte) {
	h.h.Write(data)
	h.count++
}

// Count reports how many times Write has been called.
func (h *Hasher) Count() int { return h.count }

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() [HashSize]byte {
	var out [HashSize]byte
	copy(out[:], h.h.Sum(nil))
	return out
}
