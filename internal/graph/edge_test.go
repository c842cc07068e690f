package graph

import (
	"testing"

	"github.com/ringdb/ringdb/internal/xcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdge_SignVerifyRoundTrip(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	e := &Edge{Src: mustUid(t), SrcEntity: "Owner", Label: "pet", Dest: mustUid(t)}
	require.NoError(t, e.Sign(key, DefaultMaxRowLength))
	assert.NoError(t, e.Verify(DefaultMaxRowLength))
}

func TestEdge_VerifyFailsWhenSourceChanges(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	e := &Edge{Src: mustUid(t), SrcEntity: "Owner", Label: "pet", Dest: mustUid(t)}
	require.NoError(t, e.Sign(key, DefaultMaxRowLength))

	e.Src = mustUid(t)
	assert.Error(t, e.Verify(DefaultMaxRowLength))
}

func TestEdge_VerifyFailsWhenDestChanges(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	e := &Edge{Src: mustUid(t), SrcEntity: "Owner", Label: "pet", Dest: mustUid(t)}
	require.NoError(t, e.Sign(key, DefaultMaxRowLength))

	e.Dest = mustUid(t)
	assert.Error(t, e.Verify(DefaultMaxRowLength))
}

func TestEdge_SignRejectsEmptyLabel(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	e := &Edge{Src: mustUid(t), SrcEntity: "Owner", Dest: mustUid(t)}
	err = e.Sign(key, DefaultMaxRowLength)
	assert.ErrorIs(t, err, ErrEmptyLabel)
}

func TestEdge_SignRejectsEmptySrcEntity(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	e := &Edge{Src: mustUid(t), Label: "pet", Dest: mustUid(t)}
	err = e.Sign(key, DefaultMaxRowLength)
	assert.ErrorIs(t, err, ErrEmptyEntity)
}

func TestEdgeDeletionEntry_SignVerifyRoundTrip(t *testing.T) {
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)

	room := mustUid(t)
	e := &Edge{Src: mustUid(t), SrcEntity: "Owner", Label: "pet", Dest: mustUid(t), CDate: 3}
	require.NoError(t, e.Sign(key, DefaultMaxRowLength))

	entry := BuildEdgeDeletionEntry(room, e, 9, key)
	assert.NoError(t, entry.Verify())

	entry.Label = "other"
	assert.Error(t, entry.Verify())
}

func TestIsSystemEntity(t *testing.T) {
	assert.True(t, IsSystemEntity(string(SystemEntityRoom)))
	assert.True(t, IsSystemEntity(string(SystemEntityAuthorisation)))
	assert.False(t, IsSystemEntity("Pet"))
}
