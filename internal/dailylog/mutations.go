package dailylog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Mutations buffers the (room, day) pairs touched by a batch of writes,
// implementing graph.MutationRecorder. It exists so a batch insert does not
// recompute the daily hash on every row: each touched day is marked
// need_recompute once and the actual hashing happens later, in Compute.
type Mutations struct {
	mu    sync.Mutex
	dirty map[xcrypto.Uid]map[int64]struct{}
}

// NewMutations returns an empty buffer.
func NewMutations() *Mutations {
	return &Mutations{dirty: make(map[xcrypto.Uid]map[int64]struct{})}
}

// MarkDirty records that room had a row change at mutationDateMs, bucketing
// it to the containing day.
func (m *Mutations) MarkDirty(room xcrypto.Uid, mutationDateMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.dirty[room]
	if !ok {
		days = make(map[int64]struct{})
		m.dirty[room] = days
	}
	days[dayStart(mutationDateMs)] = struct{}{}
}

// IsEmpty reports whether anything has been marked dirty since the last
// Flush.
func (m *Mutations) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty) == 0
}

// Flush upserts every buffered (room, day) pair into _daily_log, marking
// each need_recompute, then clears the buffer. It must run in the same
// transaction as the writes that produced the marks, so a crash between the
// two never loses a dirty mark.
func (m *Mutations) Flush(ctx context.Context, tx *sql.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO _daily_log (room_id, date, entry_number, daily_hash, history_hash, need_recompute)
		VALUES (?, ?, 0, NULL, NULL, 1)
		ON CONFLICT(room_id, date) DO UPDATE SET need_recompute = 1
	`)
	if err != nil {
		return fmt.Errorf("dailylog: prepare flush: %w", err)
	}
	defer stmt.Close()

	for room, days := range m.dirty {
		for day := range days {
			if _, err := stmt.ExecContext(ctx, room[:], day); err != nil {
				return fmt.Errorf("dailylog: flush: %w", err)
			}
		}
	}
	m.dirty = make(map[xcrypto.Uid]map[int64]struct{})
	return nil
}
