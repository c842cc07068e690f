package xcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingSecret_TokenAgreesBetweenPeers(t *testing.T) {
	alice, err := NewMeetingSecret()
	require.NoError(t, err)
	bob, err := NewMeetingSecret()
	require.NoError(t, err)

	alicePub, err := alice.PublicKey()
	require.NoError(t, err)
	bobPub, err := bob.PublicKey()
	require.NoError(t, err)

	aliceToken, err := alice.Token(bobPub)
	require.NoError(t, err)
	bobToken, err := bob.Token(alicePub)
	require.NoError(t, err)

	assert.Equal(t, aliceToken, bobToken)
}

func TestMeetingSecret_SelfPairingIsStable(t *testing.T) {
	secret, err := NewMeetingSecret()
	require.NoError(t, err)
	pub, err := secret.PublicKey()
	require.NoError(t, err)

	token, err := secret.Token(pub)
	require.NoError(t, err)
	assert.NotEqual(t, MeetingToken{}, token)

	again, err := secret.Token(pub)
	require.NoError(t, err)
	assert.Equal(t, token, again)
}

func TestMeetingToken_StringDecodeRoundTrip(t *testing.T) {
	secret, err := NewMeetingSecret()
	require.NoError(t, err)
	pub, err := secret.PublicKey()
	require.NoError(t, err)

	token, err := secret.Token(pub)
	require.NoError(t, err)

	decoded, err := DecodeMeetingToken(token.String())
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func TestMeetingSecretFromBytes_RejectsWrongLength(t *testing.T) {
	_, err := MeetingSecretFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}
