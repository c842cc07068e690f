package queryapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringdb/ringdb/internal/config"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:            dataDir,
		LogLevel:           "error",
		Parallelism:        2,
		MaxObjectSizeInKB:  256,
		ReadCacheSizeInKB:  64,
		WriteCacheSizeInKB: 64,
		WriteBufferLength:  16,
	}
}

func newTestHandle(t *testing.T, datamodel string) *Handle {
	t.Helper()
	dir := t.TempDir()
	h, err := New(datamodel, "test-app", []byte("01234567890123456789012345678901"), dir, testConfig(t, dir))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNew_CreatesPrivateRoomAndIdentity(t *testing.T) {
	h := newTestHandle(t, "Greetings{message:String}")

	assert.NotEmpty(t, h.VerifyingKey())
	assert.NotEmpty(t, h.PrivateRoom())
	assert.NotEmpty(t, h.HardwareName())

	r, err := h.replicaSt.Room(context.Background(), h.privateRoom)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestNew_RejectsShortKeyMaterial(t *testing.T) {
	dir := t.TempDir()
	_, err := New("Greetings{message:String}", "test-app", []byte("short"), dir, testConfig(t, dir))
	assert.Error(t, err)
}

func TestNew_SameIdentityDerivesSameKeys(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	keyMaterial := []byte("01234567890123456789012345678901")

	h1, err := New("Greetings{message:String}", "test-app", keyMaterial, dir1, testConfig(t, dir1))
	require.NoError(t, err)
	defer h1.Close()

	h2, err := New("Greetings{message:String}", "test-app", keyMaterial, dir2, testConfig(t, dir2))
	require.NoError(t, err)
	defer h2.Close()

	assert.Equal(t, h1.VerifyingKey(), h2.VerifyingKey())
	assert.Equal(t, h1.PrivateRoom(), h2.PrivateRoom())
}

func TestAcceptsAutomatically_LocalDevice(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.AutoAcceptLocalDevice = true
	h, err := New("Greetings{message:String}", "test-app", []byte("01234567890123456789012345678901"), dir, cfg)
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, h.AcceptsAutomatically(h.HardwareID()))
}

func TestAcceptsAutomatically_AutoAllowNewPeers(t *testing.T) {
	h := newTestHandle(t, "Greetings{message:String}")
	h.cfg.AutoAllowNewPeers = true

	other := h.HardwareID()
	other[0] ^= 0xFF
	assert.True(t, h.AcceptsAutomatically(other))
}

func TestAcceptsAutomatically_Rejects(t *testing.T) {
	h := newTestHandle(t, "Greetings{message:String}")

	other := h.HardwareID()
	other[0] ^= 0xFF
	assert.False(t, h.AcceptsAutomatically(other))
}

func TestDataModel_RoundTrips(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")

	out, err := h.DataModel()
	require.NoError(t, err)
	assert.Contains(t, out, "Greetings")
}

func TestUpdateDataModel_AddsEntity(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")

	out, err := h.UpdateDataModel("Greetings{message},Person{name}")
	require.NoError(t, err)
	assert.Contains(t, out, "Person")

	_, err = h.entity("Person")
	assert.NoError(t, err)
}

func TestUpdateDataModel_RejectsBadSource(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")

	_, err := h.UpdateDataModel("not a datamodel")
	assert.ErrorIs(t, err, ErrParsing)
}

func TestMetrics_ReturnsSharedRegistry(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	assert.Same(t, h.metrics, h.Metrics())
}
