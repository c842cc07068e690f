package xcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// KeyType identifies the signature algorithm a verifying/signing key was
// generated with. Export formats are prefixed with it so the wire format
// can evolve without breaking older peers.
type KeyType byte

// KeyTypeEd25519 is the only key type currently implemented.
const KeyTypeEd25519 KeyType = 1

var (
	// ErrInvalidKeyType is returned when an exported key's algorithm tag is
	// not recognised.
	ErrInvalidKeyType = errors.New("xcrypto: invalid key type")
	// ErrInvalidKeyLength is returned when an exported key's length does not
	// match its declared key type.
	ErrInvalidKeyLength = errors.New("xcrypto: invalid key length")
	// ErrInvalidSignature is returned by Verify when the signature does not
	// match the given data and verifying key.
	ErrInvalidSignature = errors.New("xcrypto: invalid signature")
)

// SigningKey signs data with a private Ed25519 key.
type SigningKey struct {
	key ed25519.PrivateKey
}

// VerifyingKey verifies Ed25519 signatures against a public key. It carries
// its own algorithm tag so it round-trips through Export/ImportVerifyingKey
// unambiguously.
type VerifyingKey struct {
	keyType KeyType
	key     ed25519.PublicKey
}

// GenerateSigningKey creates a new random Ed25519 keypair.
func GenerateSigningKey() (SigningKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SigningKey{}, err
	}
	return SigningKey{key: priv}, nil
}

// Sign signs data, returning a 64-byte Ed25519 signature.
func (k SigningKey) Sign(data []byte) []byte {
	return ed25519.Sign(k.key, data)
}

// VerifyingKey returns the public half of k, tagged with KeyTypeEd25519.
func (k SigningKey) VerifyingKey() VerifyingKey {
	pub := k.key.Public().(ed25519.PublicKey)
	return VerifyingKey{keyType: KeyTypeEd25519, key: pub}
}

// Export returns the raw 32-byte private seed, with no algorithm tag
// (private key material never crosses the wire, only the verifying key
// does, so there is nothing to disambiguate on import).
func (k SigningKey) Export() []byte {
	seed := k.key.Seed()
	out := make([]byte, len(seed))
	copy(out, seed)
	return out
}

// ImportSigningKey reconstructs a SigningKey from a 32-byte seed produced by
// Export.
func ImportSigningKey(seed []byte) (SigningKey, error) {
	if len(seed) != ed25519.SeedSize {
		return SigningKey{}, ErrInvalidKeyLength
	}
	return SigningKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Export returns the key type tag byte followed by the 32-byte Ed25519
// public key.
func (k VerifyingKey) Export() []byte {
	out := make([]byte, 1+len(k.key))
	out[0] = byte(k.keyType)
	copy(out[1:], k.key)
	return out
}

// Bytes returns the raw public key without the algorithm tag, used as the
// database-level identity of a user.
func (k VerifyingKey) Bytes() []byte {
	return k.key
}

// IsZero reports whether k carries no key material.
func (k VerifyingKey) IsZero() bool {
	return len(k.key) == 0
}

// Equal reports whether two verifying keys carry the same key material.
func (k VerifyingKey) Equal(other VerifyingKey) bool {
	return k.keyType == other.keyType && string(k.key) == string(other.key)
}

// ImportVerifyingKey decodes a tagged key produced by Export, rejecting
// unknown algorithm tags or mismatched lengths.
func ImportVerifyingKey(data []byte) (VerifyingKey, error) {
	if len(data) < 1 {
		return VerifyingKey{}, ErrInvalidKeyType
	}
	kt := KeyType(data[0])
	switch kt {
	case KeyTypeEd25519:
		if len(data)-1 != ed25519.PublicKeySize {
			return VerifyingKey{}, ErrInvalidKeyLength
		}
		key := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(key, data[1:])
		return VerifyingKey{keyType: kt, key: key}, nil
	default:
		return VerifyingKey{}, ErrInvalidKeyType
	}
}

// Verify reports whether signature is a valid Ed25519 signature of data
// under k.
func (k VerifyingKey) Verify(data, signature []byte) error {
	if k.keyType != KeyTypeEd25519 {
		return ErrInvalidKeyType
	}
	if !ed25519.Verify(k.key, data, signature) {
		return ErrInvalidSignature
	}
	return nil
}
