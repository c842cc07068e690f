package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DBFileName is the name of the replica's single SQLite file inside the
// configured data directory.
const DBFileName = "ringdb.db"

// Open creates dataDir if needed, opens the replica database with the
// pragmas the single-writer/many-readers model depends on (WAL so readers
// never block the writer), and brings the schema up to date.
func Open(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	manager := NewMigrationManager(db, logrus.StandardLogger())
	if err := manager.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	logrus.WithField("path", dbPath).Info("replica database ready")
	return db, nil
}

// OpenInMemory opens a throwaway in-memory database with the schema
// applied, used by tests that need a real SQLite engine without touching
// disk.
func OpenInMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	manager := NewMigrationManager(db, logrus.StandardLogger())
	if err := manager.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}
