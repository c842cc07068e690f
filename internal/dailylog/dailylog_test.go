package dailylog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/store"
	"github.com/ringdb/ringdb/internal/xcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeNode(t *testing.T, ctx context.Context, s *graph.Store, tx *sql.Tx, key xcrypto.SigningKey, room xcrypto.Uid, entity string, date int64, mutations *dailylog.Mutations) {
	t.Helper()
	id, err := xcrypto.NewUid()
	require.NoError(t, err)
	node := &graph.Node{ID: id, RoomID: room, CDate: date, MDate: date, Entity: entity, JSONData: "{}"}
	require.NoError(t, s.SignAndWriteNode(ctx, tx, node, key, mutations))
}

func TestCompute_SingleDaySingleRoom(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := graph.NewStore(db, graph.DefaultMaxRowLength)
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	mutations := dailylog.NewMutations()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	writeNode(t, ctx, s, tx, key, room, "Pet", 1_700_000_000_000, mutations)
	writeNode(t, ctx, s, tx, key, room, "Pet", 1_700_000_000_500, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	computed, err := dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, computed, 1)
	assert.Equal(t, uint32(2), computed[0].EntryNumber)
	assert.NotNil(t, computed[0].DailyHash)
	assert.Equal(t, computed[0].DailyHash, computed[0].HistoryHash, "first day's history hash equals its own daily hash")
}

func TestCompute_SystemEntityExcluded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := graph.NewStore(db, graph.DefaultMaxRowLength)
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	mutations := dailylog.NewMutations()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	// System entity writes never mark the room dirty, so there is nothing
	// for Compute to do.
	writeNode(t, ctx, s, tx, key, room, string(graph.SystemEntityRoom), 1_700_000_000_000, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())
	assert.True(t, mutations.IsEmpty())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	computed, err := dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Empty(t, computed)
}

func TestCompute_HistoryChainsAcrossDays(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := graph.NewStore(db, graph.DefaultMaxRowLength)
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	const day1 = 1_700_000_000_000
	const day2 = day1 + 24*60*60*1000

	mutations := dailylog.NewMutations()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	writeNode(t, ctx, s, tx, key, room, "Pet", day1, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	_, err = dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	writeNode(t, ctx, s, tx, key, room, "Pet", day2, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	computed, err := dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, computed, 1)
	assert.NotEqual(t, computed[0].DailyHash, computed[0].HistoryHash, "second day's history hash folds in the first day's")

	log, err := dailylog.GetRoomLog(ctx, db, room)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, int64(day1), log[0].Date)
	assert.Equal(t, int64(day2), log[1].Date)
}

func TestCompute_RecomputeOldDayUpdatesLaterHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := graph.NewStore(db, graph.DefaultMaxRowLength)
	key, err := xcrypto.GenerateSigningKey()
	require.NoError(t, err)
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	const day1 = 1_700_000_000_000
	const day2 = day1 + 24*60*60*1000

	mutations := dailylog.NewMutations()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	writeNode(t, ctx, s, tx, key, room, "Pet", day1, mutations)
	writeNode(t, ctx, s, tx, key, room, "Pet", day2, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	computed, err := dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Len(t, computed, 2)
	firstHistory := computed[1].HistoryHash

	// A late-arriving mutation against day1 invalidates day1, which must
	// ripple forward into day2's already-computed history hash even though
	// day2 itself was never marked dirty again.
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	writeNode(t, ctx, s, tx, key, room, "Pet", day1+1, mutations)
	require.NoError(t, mutations.Flush(ctx, tx))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	computed, err = dailylog.Compute(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, computed, 1)
	assert.Equal(t, int64(day1), computed[0].Date)

	var day2History []byte
	require.NoError(t, db.QueryRowContext(ctx, `SELECT history_hash FROM _daily_log WHERE room_id = ? AND date = ?`, room[:], day2).Scan(&day2History))
	assert.NotEqual(t, firstHistory, day2History, "day2's history hash must be rebuilt once day1 changes underneath it")
}

func TestRoomDefinitionLog_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	room, err := xcrypto.NewUid()
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, dailylog.RecordRoomMutation(ctx, tx, room, 42))
	require.NoError(t, tx.Commit())

	logs, err := dailylog.GetRoomDefinitionLogs(ctx, db, []xcrypto.Uid{room})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, room, logs[0].RoomID)
	assert.Equal(t, int64(42), logs[0].RoomDefDate)
}
