package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration represents a single schema migration.
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
}

// MigrationManager applies pending schema migrations in order and records
// the applied version so restarts are idempotent.
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
	logger     *logrus.Logger
}

// NewMigrationManager returns a manager that will bring db up to the latest
// known schema version.
func NewMigrationManager(db *sql.DB, logger *logrus.Logger) *MigrationManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &MigrationManager{
		db:         db,
		migrations: schemaMigrations(),
		logger:     logger,
	}
}

// Initialize creates the schema_version table if it doesn't exist.
func (m *MigrationManager) Initialize() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create schema_version table: %w", err)
	}
	return nil
}

// CurrentVersion returns the current database schema version.
func (m *MigrationManager) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("store: get current schema version: %w", err)
	}
	return version, nil
}

func (m *MigrationManager) targetVersion() int {
	max := 0
	for _, migration := range m.migrations {
		if migration.Version > max {
			max = migration.Version
		}
	}
	return max
}

// Migrate runs every migration not yet applied, in version order.
func (m *MigrationManager) Migrate() error {
	if err := m.Initialize(); err != nil {
		return err
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}

	target := m.targetVersion()
	if current == target {
		m.logger.WithField("version", current).Debug("schema is up to date")
		return nil
	}
	if current > target {
		return fmt.Errorf("store: schema version %d is newer than this binary's known version %d", current, target)
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.runMigration(migration); err != nil {
			return fmt.Errorf("store: migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		m.logger.WithFields(logrus.Fields{"version": migration.Version, "description": migration.Description}).Info("applied schema migration")
	}
	return nil
}

func (m *MigrationManager) runMigration(migration Migration) (err error) {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = migration.Up(tx); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if _, err = tx.Exec(
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version, migration.Description, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
