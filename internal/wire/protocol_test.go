package wire_test

import (
	"bytes"
	"testing"

	"github.com/ringdb/ringdb/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryProtocol_RoundTrip(t *testing.T) {
	room := mustUid(t)
	p := wire.NewQueryProtocol(wire.RoomDefinitionQuery(room))

	data, err := p.Encode()
	require.NoError(t, err)

	got, err := wire.DecodeQueryProtocol(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestQueryProtocol_IDsAreDistinct(t *testing.T) {
	p1 := wire.NewQueryProtocol(wire.RoomListQuery())
	p2 := wire.NewQueryProtocol(wire.RoomListQuery())
	assert.NotEqual(t, p1.ID, p2.ID)
}

func TestQueryProtocol_OverFrame(t *testing.T) {
	p := wire.NewQueryProtocol(wire.ProveIdentityQuery([]byte("challenge")))
	data, err := p.Encode()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, data))

	frame, err := wire.ReadFrame(&buf)
	require.NoError(t, err)

	got, err := wire.DecodeQueryProtocol(frame)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
