package wire_test

import (
	"bytes"
	"testing"

	"github.com/ringdb/ringdb/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello peer")

	require.NoError(t, wire.WriteFrame(&buf, payload))

	got, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteReadFrame_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, nil))

	got, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteFrame_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, wire.MaxFrameSize+1)

	err := wire.WriteFrame(&buf, oversized)
	assert.ErrorIs(t, err, wire.ErrFrameTooLarge)
}

func TestReadFrame_RejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a header claiming a payload larger than MaxFrameSize.
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := wire.ReadFrame(&buf)
	assert.ErrorIs(t, err, wire.ErrFrameTooLarge)
}

func TestReadFrame_TruncatedPayloadErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte("full payload")))
	truncated := buf.Bytes()[:len(buf.Bytes())-3]

	_, err := wire.ReadFrame(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestWriteReadFrame_MultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, []byte("first")))
	require.NoError(t, wire.WriteFrame(&buf, []byte("second")))

	first, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), first)

	second, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), second)
}
