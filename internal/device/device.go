// Package device identifies the local machine this replica runs on: a
// stable per-installation fingerprint persisted alongside the database, and
// a human-readable name pulled from the host OS, both used to tell a
// replica's own devices apart in room membership and the peer connection
// service's peer_map (§6 "Device identity").
package device

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

const fingerprintFile = "hardware_fingerprint.bin"

// Identity names the local machine for room membership and connection
// bookkeeping.
type Identity struct {
	HardwareID   xcrypto.Uid
	HardwareName string
}

// Load reads this installation's hardware fingerprint from dataDir,
// generating and persisting a fresh one on first run, and fills in the
// host's name via the OS.
func Load(dataDir string) (*Identity, error) {
	id, err := loadOrCreateFingerprint(dataDir)
	if err != nil {
		return nil, err
	}
	name, err := hostName()
	if err != nil {
		name = "unknown"
	}
	return &Identity{HardwareID: id, HardwareName: name}, nil
}

func loadOrCreateFingerprint(dataDir string) (xcrypto.Uid, error) {
	path := filepath.Join(dataDir, fingerprintFile)
	data, err := os.ReadFile(path)
	if err == nil {
		return xcrypto.UidFromBytes(data)
	}
	if !os.IsNotExist(err) {
		return xcrypto.Uid{}, fmt.Errorf("device: read fingerprint: %w", err)
	}

	id, err := xcrypto.NewUid()
	if err != nil {
		return xcrypto.Uid{}, err
	}
	if err := os.WriteFile(path, id[:], 0600); err != nil {
		return xcrypto.Uid{}, fmt.Errorf("device: write fingerprint: %w", err)
	}
	return id, nil
}

func hostName() (string, error) {
	info, err := host.Info()
	if err != nil {
		return "", err
	}
	return info.Hostname, nil
}
