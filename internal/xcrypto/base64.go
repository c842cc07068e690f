package xcrypto

import "encoding/base64"

// Base64Encode encodes data using URL-safe base64 without padding, the
// encoding used for every externally-visible identifier and token in the
// store (keys, uids, meeting tokens).
func Base64Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64Decode is the inverse of Base64Encode.
func Base64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
