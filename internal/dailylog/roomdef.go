package dailylog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// RoomDefinitionLog bundles a room's definition modification date with its
// latest daily log entry, so a peer can tell in one round trip whether it
// needs to sync the room's membership/rights as well as its data.
type RoomDefinitionLog struct {
	RoomID       xcrypto.Uid
	RoomDefDate  int64
	LastDataDate int64
	EntryNumber  int64
	DailyHash    []byte
	HistoryHash  []byte
}

// RecordRoomMutation stamps room's definition modification date, overwriting
// any previous entry. Called whenever a Room or Authorisation system entity
// is written, so _room_changelog always reflects the latest mdate.
func RecordRoomMutation(ctx context.Context, tx *sql.Tx, room xcrypto.Uid, mdate int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _room_changelog (room_id, mdate) VALUES (?, ?)
		ON CONFLICT(room_id) DO UPDATE SET mdate = excluded.mdate
	`, room[:], mdate)
	if err != nil {
		return fmt.Errorf("dailylog: record room mutation: %w", err)
	}
	return nil
}

// GetRoomDefinitionLogs returns one RoomDefinitionLog per room in rooms that
// has a changelog entry, each carrying its most recent daily log row.
func GetRoomDefinitionLogs(ctx context.Context, db *sql.DB, rooms []xcrypto.Uid) ([]RoomDefinitionLog, error) {
	if len(rooms) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(rooms)), ",")
	args := make([]any, len(rooms))
	for i, r := range rooms {
		args[i] = r[:]
	}

	query := fmt.Sprintf(`
		SELECT
			rcl.room_id,
			rcl.mdate,
			dl.date,
			dl.entry_number,
			dl.daily_hash,
			dl.history_hash
		FROM _room_changelog rcl
		LEFT JOIN (
			SELECT room_id, date, entry_number, daily_hash, history_hash
			FROM _daily_log _dl
			WHERE date = (SELECT MAX(date) FROM _daily_log WHERE _dl.room_id = room_id)
		) AS dl ON rcl.room_id = dl.room_id
		WHERE rcl.room_id IN (%s)
	`, placeholders)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dailylog: room definition logs: %w", err)
	}
	defer rows.Close()

	var result []RoomDefinitionLog
	for rows.Next() {
		var (
			roomBytes              []byte
			lastData, entryNumber  sql.NullInt64
			dailyHash, historyHash []byte
			l                      RoomDefinitionLog
		)
		if err := rows.Scan(&roomBytes, &l.RoomDefDate, &lastData, &entryNumber, &dailyHash, &historyHash); err != nil {
			return nil, fmt.Errorf("dailylog: scan room definition log: %w", err)
		}
		room, err := xcrypto.UidFromBytes(roomBytes)
		if err != nil {
			return nil, err
		}
		l.RoomID = room
		l.LastDataDate = lastData.Int64
		l.EntryNumber = entryNumber.Int64
		l.DailyHash = dailyHash
		l.HistoryHash = historyHash
		result = append(result, l)
	}
	return result, rows.Err()
}
