package xcrypto

import "golang.org/x/crypto/argon2"

// Argon2id parameters matching the original store's memory-hardened
// passphrase derivation: 20MiB memory, 2 passes, 2 parallel lanes.
const (
	argon2Time    = 2
	argon2MemoryK = 20480
	argon2Lanes   = 2
	argon2KeyLen  = 32
)

// DerivePassphrase derives a 32-byte key from a login and passphrase. The
// login salts the derivation so that two users choosing the same passphrase
// do not end up with the same key, and the result is re-hashed with Blake3
// so callers always receive a fixed-size key regardless of the Argon2
// parameters used.
func DerivePassphrase(login, passphrase string) [HashSize]byte {
	salt := Hash([]byte(login))
	derived := argon2.IDKey([]byte(passphrase), salt[:], argon2Time, argon2MemoryK, argon2Lanes, argon2KeyLen)
	return Hash(derived)
}
