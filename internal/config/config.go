package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the replica-wide settings a ringdb process starts with (§6
// "Configuration"). Every field has a default so a replica can start from an
// empty config file; only data_dir has no sensible default.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	// Parallelism bounds both the room-lock service's concurrent sync count
	// and the signature-verification pool's worker count.
	Parallelism int `mapstructure:"parallelism"`

	// AutoAcceptLocalDevice lets a second process signing with the same
	// identity join without an explicit invite, since it can prove
	// possession of the same key material.
	AutoAcceptLocalDevice bool `mapstructure:"auto_accept_local_device"`
	// AutoAllowNewPeers makes Handle.AcceptsAutomatically accept a
	// connection from any device; no invite, shared contact or approval is
	// checked.
	AutoAllowNewPeers bool `mapstructure:"auto_allow_new_peers"`

	// MaxObjectSizeInKB bounds a single node/edge row's JSON+binary payload;
	// internal/graph.Store rejects larger writes with ErrRowTooLong.
	MaxObjectSizeInKB int `mapstructure:"max_object_size_in_kb"`
	// ReadCacheSizeInKB/WriteCacheSizeInKB size internal/cache's two
	// ristretto instances.
	ReadCacheSizeInKB  int `mapstructure:"read_cache_size_in_kb"`
	WriteCacheSizeInKB int `mapstructure:"write_cache_size_in_kb"`
	// WriteBufferLength bounds the verification pool's queue depth and the
	// mutation_stream channel buffer.
	WriteBufferLength int `mapstructure:"write_buffer_length"`

	// AnnounceFrequencyInMs controls how often a replica broadcasts its
	// presence on the local network (out of scope transport, kept here so
	// the setting round-trips through config files that already carry it).
	AnnounceFrequencyInMs int `mapstructure:"announce_frequency_in_ms"`

	EnableMulticast         bool   `mapstructure:"enable_multicast"`
	MulticastIPv4Interface  string `mapstructure:"multicast_ipv4_interface"`
	MulticastIPv4Group      string `mapstructure:"multicast_ipv4_group"`

	EnableBeacons bool          `mapstructure:"enable_beacons"`
	Beacons       []BeaconEntry `mapstructure:"beacons"`

	// EnableDatabaseMemorySecurity zeroes decrypted buffers as soon as they
	// are no longer needed, at a performance cost.
	EnableDatabaseMemorySecurity bool `mapstructure:"enable_database_memory_security"`
}

// BeaconEntry names a fixed rendezvous host a replica can announce to or
// poll when multicast discovery is unavailable (e.g. across networks).
type BeaconEntry struct {
	Hostname string `mapstructure:"hostname"`
	CertHash string `mapstructure:"cert_hash"`
}

// Load loads configuration from flags, an optional config file, and
// RINGDB_-prefixed environment variables. An explicitly set flag wins over
// an environment variable, which wins over the config file; built-in
// defaults fill whatever none of them set.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("RINGDB")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("parallelism", 4)

	v.SetDefault("auto_accept_local_device", true)
	v.SetDefault("auto_allow_new_peers", false)

	v.SetDefault("max_object_size_in_kb", 256)
	v.SetDefault("read_cache_size_in_kb", 2048)
	v.SetDefault("write_cache_size_in_kb", 2048)
	v.SetDefault("write_buffer_length", 1024)

	v.SetDefault("announce_frequency_in_ms", 60000)
	v.SetDefault("enable_multicast", false)
	v.SetDefault("multicast_ipv4_interface", "")
	v.SetDefault("multicast_ipv4_group", "239.192.0.1:4020")

	v.SetDefault("enable_beacons", false)

	v.SetDefault("enable_database_memory_security", false)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"data-dir":        "data_dir",
		"log-level":       "log_level",
		"parallelism":     "parallelism",
		"max-object-size": "max_object_size_in_kb",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or RINGDB_DATA_DIR environment variable")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.MaxObjectSizeInKB <= 0 {
		cfg.MaxObjectSizeInKB = 256
	}
	if cfg.WriteBufferLength <= 0 {
		cfg.WriteBufferLength = 1024
	}
	if cfg.ReadCacheSizeInKB <= 0 {
		cfg.ReadCacheSizeInKB = 2048
	}
	if cfg.WriteCacheSizeInKB <= 0 {
		cfg.WriteCacheSizeInKB = 2048
	}

	if cfg.EnableBeacons {
		for _, b := range cfg.Beacons {
			if b.Hostname == "" {
				return fmt.Errorf("beacons entries require a hostname")
			}
		}
	}

	return nil
}
