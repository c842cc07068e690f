package dailylog_test

import (
	"context"
	"testing"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/xcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutations_FlushMarksDirtyRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	m := dailylog.NewMutations()
	assert.True(t, m.IsEmpty())
	m.MarkDirty(room, 1_700_000_000_000)
	m.MarkDirty(room, 1_700_000_000_999) // same day, should collapse to one row
	assert.False(t, m.IsEmpty())

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx, tx))
	require.NoError(t, tx.Commit())
	assert.True(t, m.IsEmpty())

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM _daily_log WHERE room_id = ?`, room[:]).Scan(&count))
	assert.Equal(t, 1, count)

	var needRecompute int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT need_recompute FROM _daily_log WHERE room_id = ?`, room[:]).Scan(&needRecompute))
	assert.Equal(t, 1, needRecompute)
}

func TestMutations_FlushIsIdempotentAcrossBatches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	m := dailylog.NewMutations()
	m.MarkDirty(room, 1_700_000_000_000)
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	// Manually clear need_recompute to simulate a prior Compute run, then
	// flush a second dirty mark for the same day and confirm it is
	// re-raised rather than left clear.
	_, err = db.ExecContext(ctx, `UPDATE _daily_log SET need_recompute = 0 WHERE room_id = ?`, room[:])
	require.NoError(t, err)

	m.MarkDirty(room, 1_700_000_000_500)
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	var needRecompute int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT need_recompute FROM _daily_log WHERE room_id = ?`, room[:]).Scan(&needRecompute))
	assert.Equal(t, 1, needRecompute)
}
