package xcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigningKey_SignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	data := []byte("room mutation payload")
	sig := key.Sign(data)

	vk := key.VerifyingKey()
	assert.NoError(t, vk.Verify(data, sig))
}

func TestVerifyingKey_RejectsTamperedData(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	sig := key.Sign([]byte("original"))
	vk := key.VerifyingKey()

	err = vk.Verify([]byte("tampered"), sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyingKey_ExportImportRoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	vk := key.VerifyingKey()
	exported := vk.Export()
	assert.Equal(t, byte(KeyTypeEd25519), exported[0])

	imported, err := ImportVerifyingKey(exported)
	require.NoError(t, err)
	assert.True(t, vk.Equal(imported))
}

func TestImportVerifyingKey_RejectsUnknownAlgorithm(t *testing.T) {
	bad := make([]byte, 33)
	bad[0] = 0xFF
	_, err := ImportVerifyingKey(bad)
	assert.ErrorIs(t, err, ErrInvalidKeyType)
}

func TestImportVerifyingKey_RejectsWrongLength(t *testing.T) {
	bad := []byte{byte(KeyTypeEd25519), 1, 2, 3}
	_, err := ImportVerifyingKey(bad)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestSigningKey_ExportImportRoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	seed := key.Export()
	imported, err := ImportSigningKey(seed)
	require.NoError(t, err)

	data := []byte("round trip")
	assert.Equal(t, key.Sign(data), imported.Sign(data))
}
