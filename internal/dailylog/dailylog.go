// Package dailylog computes the per-room, per-day digest that anti-entropy
// sync compares instead of walking every row (§4.3). A room's history is a
// chain: each day's history_hash folds the previous day's history_hash
// together with that day's own daily_hash, so two peers whose latest
// history hashes match hold the same history; when they differ, the peers
// compare per-day daily hashes and re-synchronise only the days whose
// daily hash differs.
package dailylog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// DailyLog is one computed (room, day) entry.
type DailyLog struct {
	RoomID      xcrypto.Uid
	Date        int64
	EntryNumber uint32
	// DailyHash is nil when the day ended up with no qualifying rows (every
	// touched row turned out to belong to a system entity, or the marks
	// were stale).
	DailyHash []byte
	// HistoryHash chains this day's DailyHash onto the previous day's
	// HistoryHash for the same room; nil only while DailyHash is nil and no
	// earlier day of the room has a HistoryHash.
	HistoryHash []byte
}

// RoomLog is the record peer sync exchanges to find the oldest day at which
// two replicas of a room diverge.
type RoomLog struct {
	Date        int64
	EntryNumber uint32
	DailyHash   []byte
}

const selectPendingSQL = `
	SELECT room_id, date, need_recompute, daily_hash, history_hash
	FROM _daily_log daily
	WHERE date >= (
		IFNULL(
			(
				SELECT max(date) FROM _daily_log
				WHERE daily.room_id = room_id
				AND date < (
					SELECT min(date) FROM _daily_log
					WHERE daily.room_id = room_id
					AND need_recompute = 1
				)
			),
			(
				SELECT min(date) FROM _daily_log
				WHERE daily.room_id = room_id
				AND need_recompute = 1
			)
		)
	)
	ORDER BY room_id, date
`

const recomputeSQL = `
	SELECT signature FROM _node_deletion_log
	WHERE room = ? AND deletion_date >= ? AND deletion_date < ?
	UNION ALL
	SELECT signature FROM _edge_deletion_log
	WHERE room = ? AND deletion_date >= ? AND deletion_date < ?
	UNION ALL
	SELECT signature FROM _node
	WHERE room_id = ? AND mdate >= ? AND mdate < ?
	AND entity NOT IN (?, ?, ?, ?)
	ORDER BY signature
`

const updateComputedSQL = `
	UPDATE _daily_log
	SET entry_number = ?, daily_hash = ?, history_hash = ?, need_recompute = 0
	WHERE room_id = ? AND date = ?
`

const updateHistorySQL = `
	UPDATE _daily_log SET history_hash = ? WHERE room_id = ? AND date = ?
`

type pendingRow struct {
	room          xcrypto.Uid
	date          int64
	needRecompute bool
	dailyHash     []byte
	historyHash   []byte
}

// Compute scans every (room, day) marked need_recompute, recomputes its
// digest, and rebuilds the history chain for any later, already-computed
// day that follows it, all within tx. It returns the entries it actually
// recomputed, in room/date order, for the caller to publish as an event.
//
// An unrecomputed day whose chain still depends on it is carried forward:
// the WHERE clause in selectPendingSQL always starts from one day before
// the earliest dirty day per room, so the first loop iteration for that
// room has a correct previous history hash to fold forward from.
func Compute(ctx context.Context, tx *sql.Tx) ([]DailyLog, error) {
	pending, err := queryPending(ctx, tx)
	if err != nil {
		return nil, err
	}

	var (
		computed        []DailyLog
		previousRoom    xcrypto.Uid
		havePrevious    bool
		previousHistory []byte
	)

	for _, p := range pending {
		sameRoom := havePrevious && previousRoom == p.room

		if !p.needRecompute {
			if sameRoom {
				if previousHistory != nil {
					sum := chain(previousHistory, p.dailyHash)
					if _, err := tx.ExecContext(ctx, updateHistorySQL, sum[:], p.room[:], p.date); err != nil {
						return nil, fmt.Errorf("dailylog: update history: %w", err)
					}
					previousHistory = sum[:]
				} else {
					previousHistory = p.historyHash
				}
			} else {
				previousHistory = p.historyHash
			}
			previousRoom = p.room
			havePrevious = true
			continue
		}

		dailyHash, entryNumber, err := recomputeDay(ctx, tx, p.room, p.date)
		if err != nil {
			return nil, err
		}

		var historyHash []byte
		if sameRoom {
			if previousHistory != nil {
				sum := chain(previousHistory, dailyHash)
				historyHash = sum[:]
			} else {
				historyHash = dailyHash
			}
		} else {
			historyHash = dailyHash
		}

		if _, err := tx.ExecContext(ctx, updateComputedSQL, entryNumber, dailyHash, historyHash, p.room[:], p.date); err != nil {
			return nil, fmt.Errorf("dailylog: update computed: %w", err)
		}

		computed = append(computed, DailyLog{
			RoomID:      p.room,
			Date:        p.date,
			EntryNumber: entryNumber,
			DailyHash:   dailyHash,
			HistoryHash: historyHash,
		})

		previousHistory = historyHash
		previousRoom = p.room
		havePrevious = true
	}

	return computed, nil
}

func queryPending(ctx context.Context, tx *sql.Tx) ([]pendingRow, error) {
	rows, err := tx.QueryContext(ctx, selectPendingSQL)
	if err != nil {
		return nil, fmt.Errorf("dailylog: select pending: %w", err)
	}
	defer rows.Close()

	var pending []pendingRow
	for rows.Next() {
		var (
			roomBytes     []byte
			needRecompute int64
			p             pendingRow
		)
		if err := rows.Scan(&roomBytes, &p.date, &needRecompute, &p.dailyHash, &p.historyHash); err != nil {
			return nil, fmt.Errorf("dailylog: scan pending: %w", err)
		}
		room, err := xcrypto.UidFromBytes(roomBytes)
		if err != nil {
			return nil, err
		}
		p.room = room
		p.needRecompute = needRecompute != 0
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func recomputeDay(ctx context.Context, tx *sql.Tx, room xcrypto.Uid, day int64) ([]byte, uint32, error) {
	next := dayNext(day)
	rows, err := tx.QueryContext(ctx, recomputeSQL,
		room[:], day, next,
		room[:], day, next,
		room[:], day, next,
		string(graph.SystemEntityRoom), string(graph.SystemEntityAuthorisation),
		string(graph.SystemEntityUserAuth), string(graph.SystemEntityEntityRight),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("dailylog: recompute: %w", err)
	}
	defer rows.Close()

	hasher := xcrypto.NewHasher()
	var entryNumber uint32
	for rows.Next() {
		var signature []byte
		if err := rows.Scan(&signature); err != nil {
			return nil, 0, fmt.Errorf("dailylog: scan signature: %w", err)
		}
		hasher.Write(signature)
		entryNumber++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if hasher.Count() == 0 {
		return nil, 0, nil
	}
	sum := hasher.Sum()
	return sum[:], entryNumber, nil
}

// chain folds history onto daily, the same construction used for every
// history_hash: Hash(history || daily) when daily is present, Hash(history)
// otherwise.
func chain(history, daily []byte) [xcrypto.HashSize]byte {
	h := xcrypto.NewHasher()
	h.Write(history)
	if daily != nil {
		h.Write(daily)
	}
	return h.Sum()
}

// GetRoomLog returns room's full day-by-day log (date, entry count, daily
// hash), oldest first; a peer compares each day's daily hash against its
// own to pick the days to re-synchronise.
func GetRoomLog(ctx context.Context, db *sql.DB, room xcrypto.Uid) ([]RoomLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, entry_number, daily_hash
		FROM _daily_log
		WHERE room_id = ?
		ORDER BY date ASC
	`, room[:])
	if err != nil {
		return nil, fmt.Errorf("dailylog: room log: %w", err)
	}
	defer rows.Close()

	var log []RoomLog
	for rows.Next() {
		var l RoomLog
		if err := rows.Scan(&l.Date, &l.EntryNumber, &l.DailyHash); err != nil {
			return nil, fmt.Errorf("dailylog: scan room log: %w", err)
		}
		log = append(log, l)
	}
	return log, rows.Err()
}
