package store

import "database/sql"

// schemaMigrations returns the full migration history for the replica
// database: the signed graph tables (§3.1-3.2), their deletion logs (§3.6)
// and the per-room daily log (§3.5). Table names are prefixed with an
// underscore, matching the original store's convention of keeping
// system-reserved tables out of the entity namespace applications mutate.
func schemaMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "signed graph store: nodes, edges, deletion logs, daily log",
			Up:          migration1,
		},
	}
}

func migration1(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE _node (
			id BLOB NOT NULL,
			room_id BLOB NOT NULL,
			cdate INTEGER NOT NULL,
			mdate INTEGER NOT NULL,
			entity TEXT NOT NULL,
			json_data TEXT,
			binary_data BLOB,
			verifying_key BLOB NOT NULL,
			signature BLOB NOT NULL,
			PRIMARY KEY (id)
		) WITHOUT ROWID, STRICT`,
		`CREATE INDEX _node_room_entity_idx ON _node (room_id, entity)`,

		`CREATE TABLE _edge (
			src BLOB NOT NULL,
			src_entity TEXT NOT NULL,
			label TEXT NOT NULL,
			dest BLOB NOT NULL,
			cdate INTEGER NOT NULL,
			verifying_key BLOB NOT NULL,
			signature BLOB NOT NULL,
			PRIMARY KEY (src, label, dest)
		) WITHOUT ROWID, STRICT`,
		`CREATE UNIQUE INDEX _edge_dest_label_src_idx ON _edge (dest, label, src)`,

		`CREATE TABLE _node_deletion_log (
			room BLOB NOT NULL,
			id BLOB NOT NULL,
			entity TEXT NOT NULL,
			deletion_date INTEGER NOT NULL,
			verifying_key BLOB NOT NULL,
			signature BLOB NOT NULL,
			PRIMARY KEY (room, deletion_date, id)
		) WITHOUT ROWID, STRICT`,

		`CREATE TABLE _edge_deletion_log (
			room BLOB NOT NULL,
			src BLOB NOT NULL,
			src_entity TEXT NOT NULL,
			dest BLOB NOT NULL,
			label TEXT NOT NULL,
			deletion_date INTEGER NOT NULL,
			verifying_key BLOB NOT NULL,
			signature BLOB NOT NULL,
			PRIMARY KEY (room, deletion_date, src, label, dest)
		) WITHOUT ROWID, STRICT`,

		`CREATE TABLE _daily_log (
			room_id BLOB NOT NULL,
			date INTEGER NOT NULL,
			entry_number INTEGER NOT NULL DEFAULT 0,
			daily_hash BLOB,
			history_hash BLOB,
			need_recompute INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (room_id, date)
		) WITHOUT ROWID, STRICT`,
		`CREATE INDEX _daily_log_recompute_idx ON _daily_log (need_recompute, room_id, date)`,

		`CREATE TABLE _room_changelog (
			room_id BLOB NOT NULL,
			mdate INTEGER NOT NULL,
			PRIMARY KEY (room_id)
		) WITHOUT ROWID, STRICT`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
