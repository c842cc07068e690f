package xcrypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUid_IsTimeOrdered(t *testing.T) {
	a, err := NewUid()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := NewUid()
	require.NoError(t, err)

	assert.Less(t, a.Time(), b.Time())
}

func TestUid_StringParseRoundTrip(t *testing.T) {
	uid, err := NewUid()
	require.NoError(t, err)

	parsed, err := ParseUid(uid.String())
	require.NoError(t, err)
	assert.Equal(t, uid, parsed)
}

func TestParseUid_RejectsWrongLength(t *testing.T) {
	_, err := ParseUid(Base64Encode([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidUid)
}

func TestDeriveUid_IsDeterministic(t *testing.T) {
	material := []byte("device-identity-key")
	a := DeriveUid("private_room", material)
	b := DeriveUid("private_room", material)
	assert.Equal(t, a, b)

	c := DeriveUid("other_context", material)
	assert.NotEqual(t, a, c)
}

func TestUid_IsZero(t *testing.T) {
	var zero Uid
	assert.True(t, zero.IsZero())

	uid, err := NewUid()
	require.NoError(t, err)
	assert.False(t, uid.IsZero())
}
