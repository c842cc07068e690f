// Package xcrypto implements the crypto primitives shared by every other
// package: content hashing, Ed25519 signing, the Argon2id passphrase KDF,
// the X25519 meeting-secret derivation, and the opaque identifier types
// used throughout the replica (Uid, MeetingToken).
package xcrypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// UidSize is the length in bytes of a Uid: a 6-byte big-endian millisecond
// timestamp followed by 10 random bytes, giving time-locality in B-tree
// indexes without sacrificing collision resistance.
const UidSize = 16

// Uid is the 16-byte opaque identifier used for nodes, edges, rooms and
// authorisations.
type Uid [UidSize]byte

// ErrInvalidUid is returned when decoding a value that cannot be a Uid.
var ErrInvalidUid = errors.New("invalid uid")

// NewUid generates a time-ordered Uid: the first 6 bytes are the current
// time in milliseconds since epoch (big-endian), the remaining 10 are
// cryptographically random.
func NewUid() (Uid, error) {
	var uid Uid
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixMilli()))
	copy(uid[:6], buf[2:8])
	if _, err := rand.Read(uid[6:]); err != nil {
		return Uid{}, err
	}
	return uid, nil
}

// DeriveUid derives a deterministic Uid from a context string and key
// material via Blake3's keyed derivation, used for well-known system
// identifiers (e.g. a device's private room) that must be the same across
// restarts without being persisted separately.
func DeriveUid(context string, keyMaterial []byte) Uid {
	h := DeriveKey(context, keyMaterial)
	var uid Uid
	copy(uid[:], h[:UidSize])
	return uid
}

// Time returns the millisecond timestamp encoded in the Uid's first 6 bytes.
func (u Uid) Time() int64 {
	var buf [8]byte
	copy(buf[2:8], u[:6])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// String returns the URL-safe, unpadded base64 encoding of the Uid.
func (u Uid) String() string {
	return Base64Encode(u[:])
}

// IsZero reports whether u is the zero-value Uid.
func (u Uid) IsZero() bool {
	return u == Uid{}
}

// MarshalText implements encoding.TextMarshaler so a Uid can be used
// directly as a JSON object key or string value (room/authorisation
// projections key their maps by Uid).
func (u Uid) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the inverse of
// MarshalText.
func (u *Uid) UnmarshalText(text []byte) error {
	parsed, err := ParseUid(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUid decodes a base64-encoded Uid produced by String.
func ParseUid(s string) (Uid, error) {
	b, err := Base64Decode(s)
	if err != nil {
		return Uid{}, err
	}
	return UidFromBytes(b)
}

// UidFromBytes validates and copies a raw byte slice into a Uid.
func UidFromBytes(b []byte) (Uid, error) {
	if len(b) != UidSize {
		return Uid{}, ErrInvalidUid
	}
	var uid Uid
	copy(uid[:], b)
	return uid, nil
}
