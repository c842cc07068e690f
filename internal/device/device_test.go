package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesFingerprintOnFirstRun(t *testing.T) {
	dir := t.TempDir()

	id, err := Load(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id.HardwareName)

	_, err = os.Stat(filepath.Join(dir, fingerprintFile))
	require.NoError(t, err)
}

func TestLoad_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := Load(dir)
	require.NoError(t, err)

	second, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, first.HardwareID, second.HardwareID)
}

func TestLoad_DifferentDirsDifferentFingerprints(t *testing.T) {
	a, err := Load(t.TempDir())
	require.NoError(t, err)
	b, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, a.HardwareID, b.HardwareID)
}

func TestLoadOrCreateFingerprint_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fingerprintFile), []byte("short"), 0o600))

	_, err := loadOrCreateFingerprint(dir)
	assert.Error(t, err)
}

func TestHostName_ReturnsNonEmpty(t *testing.T) {
	name, err := hostName()
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}
