package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "info", v.GetString("log_level"))
	assert.Equal(t, 4, v.GetInt("parallelism"))
	assert.True(t, v.GetBool("auto_accept_local_device"))
	assert.False(t, v.GetBool("auto_allow_new_peers"))
}

func TestSetDefaults_Sizing(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, 256, v.GetInt("max_object_size_in_kb"))
	assert.Equal(t, 2048, v.GetInt("read_cache_size_in_kb"))
	assert.Equal(t, 2048, v.GetInt("write_cache_size_in_kb"))
	assert.Equal(t, 1024, v.GetInt("write_buffer_length"))
}

func TestSetDefaults_Discovery(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, 60000, v.GetInt("announce_frequency_in_ms"))
	assert.False(t, v.GetBool("enable_multicast"))
	assert.Equal(t, "239.192.0.1:4020", v.GetString("multicast_ipv4_group"))
	assert.False(t, v.GetBool("enable_beacons"))
}

func TestConfig_Struct(t *testing.T) {
	cfg := Config{
		DataDir:     "/tmp/data",
		LogLevel:    "info",
		Parallelism: 8,
	}

	assert.Equal(t, "/tmp/data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Parallelism)
}

func TestBeaconEntry_Struct(t *testing.T) {
	b := BeaconEntry{Hostname: "relay.example.com", CertHash: "deadbeef"}
	assert.Equal(t, "relay.example.com", b.Hostname)
	assert.Equal(t, "deadbeef", b.CertHash)
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := &Config{}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_dir is required")
}

func TestValidate_ValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &Config{DataDir: tempDir}
	err := validate(cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, 256, cfg.MaxObjectSizeInKB)
	assert.Equal(t, 1024, cfg.WriteBufferLength)
	assert.Equal(t, 2048, cfg.ReadCacheSizeInKB)
	assert.Equal(t, 2048, cfg.WriteCacheSizeInKB)
}

func TestValidate_PreservesExplicitValues(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &Config{
		DataDir:           tempDir,
		Parallelism:       16,
		MaxObjectSizeInKB: 512,
	}
	err := validate(cfg)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Parallelism)
	assert.Equal(t, 512, cfg.MaxObjectSizeInKB)
}

func TestValidate_BeaconRequiresHostname(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &Config{
		DataDir:       tempDir,
		EnableBeacons: true,
		Beacons:       []BeaconEntry{{CertHash: "abc"}},
	}
	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hostname")
}

// Test bindFlags() function
func TestBindFlags_Success(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("parallelism", 4, "parallelism")
	cmd.Flags().Int("max-object-size", 256, "max object size in KB")

	v := viper.New()
	err := bindFlags(cmd, v)
	require.NoError(t, err)
}

func TestBindFlags_MissingFlagsAreSkipped(t *testing.T) {
	cmd := &cobra.Command{}

	v := viper.New()
	err := bindFlags(cmd, v)
	require.NoError(t, err)
}

// Test Load() function
func TestLoad_WithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", tempDir, "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("parallelism", 4, "parallelism")
	cmd.Flags().Int("max-object-size", 256, "max object size in KB")
	cmd.Flags().String("config", "", "config file")

	require.NoError(t, cmd.Flags().Set("data-dir", tempDir))

	cfg, err := Load(cmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, tempDir, cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, 256, cfg.MaxObjectSizeInKB)
}

func TestLoad_FromConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := "data_dir: \"" + filepath.ToSlash(tempDir) + "\"\n" +
		"log_level: \"debug\"\n" +
		"parallelism: 8\n" +
		"max_object_size_in_kb: 512\n"

	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("parallelism", 4, "parallelism")
	cmd.Flags().Int("max-object-size", 256, "max object size in KB")
	cmd.Flags().String("config", configFile, "config file")

	require.NoError(t, cmd.Flags().Set("config", configFile))

	cfg, err := Load(cmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, filepath.Clean(tempDir), filepath.Clean(cfg.DataDir))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, 512, cfg.MaxObjectSizeInKB)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid-config.yaml")

	configContent := `
data_dir: "/tmp"
invalid yaml content [[[
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("config", configFile, "config file")

	require.NoError(t, cmd.Flags().Set("config", configFile))

	cfg, err := Load(cmd)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_NonExistentConfigFile(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("config", "/nonexistent/config.yaml", "config file")

	require.NoError(t, cmd.Flags().Set("config", "/nonexistent/config.yaml"))

	cfg, err := Load(cmd)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MissingDataDir(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("config", "", "config file")

	cfg, err := Load(cmd)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "data_dir is required")
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	tempDir := t.TempDir()

	os.Setenv("RINGDB_DATA_DIR", tempDir)
	os.Setenv("RINGDB_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("RINGDB_DATA_DIR")
		os.Unsetenv("RINGDB_LOG_LEVEL")
	}()

	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", "", "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("config", "", "config file")

	cfg, err := Load(cmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, tempDir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FlagOverridesEnvironment(t *testing.T) {
	tempDir := t.TempDir()

	os.Setenv("RINGDB_PARALLELISM", "99")
	defer os.Unsetenv("RINGDB_PARALLELISM")

	cmd := &cobra.Command{}
	cmd.Flags().String("data-dir", tempDir, "data directory")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("parallelism", 4, "parallelism")
	cmd.Flags().String("config", "", "config file")

	require.NoError(t, cmd.Flags().Set("parallelism", "7"))
	require.NoError(t, cmd.Flags().Set("data-dir", tempDir))

	cfg, err := Load(cmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 7, cfg.Parallelism)
}
