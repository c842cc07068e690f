package peer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/verifypool"
	"github.com/ringdb/ringdb/internal/wire"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// NetworkTimeout bounds how long a single outbound query or event send
// waits before giving up on an unresponsive peer.
const NetworkTimeout = 10 * time.Second

// maxDeletionBatch and maxNodeBatch cap how many rows Reconciler asks the
// store to apply/request in one call, mirroring local_peer.rs's batching of
// deletions (512) and full-node fetches (128, the same ceiling
// wire.MaxFullNodesIDs enforces on the wire).
const (
	maxDeletionBatch = 512
	maxNodeBatch     = wire.MaxFullNodesIDs
)

// Reconciler drives one room's anti-entropy pass against a connected peer:
// it asks the peer what it has, compares against the local store, and pulls
// whatever is missing or stale, verifying every row through verifyPool
// before it ever reaches store and skipping whichever individual rows fail
// (§4.8 step 4).
type Reconciler struct {
	driver       *Driver
	store        Store
	verifyPool   *verifypool.Pool
	maxRowLength int
	log          *slog.Logger
}

// NewReconciler returns a Reconciler pulling from driver into store,
// verifying inbound rows on verifyPool against maxRowLength.
func NewReconciler(driver *Driver, store Store, verifyPool *verifypool.Pool, maxRowLength int, log *slog.Logger) *Reconciler {
	return &Reconciler{driver: driver, store: store, verifyPool: verifyPool, maxRowLength: maxRowLength, log: log}
}

// logSkipped reports the rows a verification pass dropped, identifying the
// batch they came from.
func (r *Reconciler) logSkipped(kind string, failures []error) {
	if r.log == nil {
		return
	}
	for _, err := range failures {
		r.log.Warn("dropping unverifiable row from peer", "kind", kind, "error", err)
	}
}

func (r *Reconciler) query(ctx context.Context, q wire.Query, out any) error {
	ctx, cancel := context.WithTimeout(ctx, NetworkTimeout)
	defer cancel()
	answer, err := r.driver.Query(ctx, q)
	if err != nil {
		return err
	}
	if !answer.Success {
		return fmt.Errorf("peer: remote query failed: %s", answer.Error)
	}
	if out == nil {
		return nil
	}
	return decodePayload(answer.Serialized, out)
}

// SynchroniseRoom reconciles one room: its definition (membership/rights),
// then its data, recomputing the daily log if anything changed.
func (r *Reconciler) SynchroniseRoom(ctx context.Context, roomID xcrypto.Uid) error {
	var defPayload roomDefinitionPayload
	if err := r.query(ctx, wire.RoomDefinitionQuery(roomID), &defPayload); err != nil {
		return err
	}
	if defPayload.Log == nil {
		return ErrRoomUnknown
	}
	remoteDef := defPayload.Log

	localDef, err := r.store.RoomDefinitionLog(ctx, roomID)
	if err != nil {
		return err
	}

	if err := r.synchroniseRoomDefinition(ctx, remoteDef, localDef); err != nil {
		return err
	}

	changed, err := r.synchroniseRoomData(ctx, remoteDef, localDef)
	if err != nil {
		return err
	}
	if changed {
		return r.store.ComputeDailyLog(ctx)
	}
	return nil
}

func (r *Reconciler) synchroniseRoomDefinition(ctx context.Context, remote *dailylog.RoomDefinitionLog, local *dailylog.RoomDefinitionLog) error {
	needsLoad := local == nil || local.RoomDefDate < remote.RoomDefDate
	if !needsLoad {
		return nil
	}
	var nodePayload roomNodePayload
	if err := r.query(ctx, wire.RoomNodeQuery(remote.RoomID), &nodePayload); err != nil {
		return err
	}
	if nodePayload.Room == nil {
		return ErrRoomUnknown
	}
	return r.store.PutRoom(ctx, nodePayload.Room)
}

// synchroniseRoomData decides whether a full per-day history walk is
// needed, or whether only the most recent day could possibly have changed,
// and reports whether anything was actually written.
func (r *Reconciler) synchroniseRoomData(ctx context.Context, remote *dailylog.RoomDefinitionLog, local *dailylog.RoomDefinitionLog) (bool, error) {
	syncHistory := local == nil ||
		len(remote.HistoryHash) == 0 ||
		string(local.HistoryHash) != string(remote.HistoryHash) ||
		local.LastDataDate != remote.LastDataDate

	if syncHistory {
		return r.synchroniseHistory(ctx, remote.RoomID)
	}
	return r.synchroniseLastDay(ctx, remote, local)
}

func (r *Reconciler) synchroniseHistory(ctx context.Context, roomID xcrypto.Uid) (bool, error) {
	var logPayload roomLogPayload
	if err := r.query(ctx, wire.RoomLogQuery(roomID), &logPayload); err != nil {
		return false, err
	}

	localLog, err := r.store.RoomLog(ctx, roomID)
	if err != nil {
		return false, err
	}
	localByDate := make(map[int64]dailylog.RoomLog, len(localLog))
	for _, l := range localLog {
		localByDate[l.Date] = l
	}

	modified := false
	for _, remoteDay := range logPayload.Log {
		local, ok := localByDate[remoteDay.Date]
		if ok && string(local.DailyHash) == string(remoteDay.DailyHash) {
			continue
		}
		if err := r.synchroniseDay(ctx, roomID, remoteDay.Date); err != nil {
			return modified, err
		}
		modified = true
	}
	return modified, nil
}

func (r *Reconciler) synchroniseLastDay(ctx context.Context, remote *dailylog.RoomDefinitionLog, local *dailylog.RoomDefinitionLog) (bool, error) {
	syncDay := local == nil ||
		len(local.DailyHash) == 0 ||
		local.LastDataDate == 0 ||
		string(local.DailyHash) != string(remote.DailyHash)
	if !syncDay {
		return false, nil
	}
	if err := r.synchroniseDay(ctx, remote.RoomID, remote.LastDataDate); err != nil {
		return false, err
	}
	return true, nil
}

// synchroniseDay pulls one room/day's deletions and new or updated nodes,
// verifying every row's signature before any of it reaches store. A row
// that fails verification is reported and skipped rather than aborting the
// rest of the day's batch (§4.8 step 4).
func (r *Reconciler) synchroniseDay(ctx context.Context, roomID xcrypto.Uid, date int64) error {
	var edgePayload edgeDeletionPayload
	if err := r.query(ctx, wire.EdgeDeletionLogQuery(roomID, date), &edgePayload); err != nil {
		return err
	}
	if len(edgePayload.Entries) > 0 {
		verified, failures, err := r.verifyPool.VerifyEdgeDeletions(ctx, edgePayload.Entries)
		if err != nil {
			return err
		}
		r.logSkipped("edge deletion", failures)
		if len(verified) > 0 {
			if err := r.store.ApplyEdgeDeletions(ctx, roomID, verified); err != nil {
				return err
			}
		}
	}

	var nodeDeletions nodeDeletionPayload
	if err := r.query(ctx, wire.NodeDeletionLogQuery(roomID, date), &nodeDeletions); err != nil {
		return err
	}
	for batch := range batches(nodeDeletions.Entries, maxDeletionBatch) {
		verified, failures, err := r.verifyPool.VerifyNodeDeletions(ctx, batch)
		if err != nil {
			return err
		}
		r.logSkipped("node deletion", failures)
		if len(verified) == 0 {
			continue
		}
		if err := r.store.ApplyNodeDeletions(ctx, roomID, verified); err != nil {
			return err
		}
	}

	var dailyPayload dailyNodesPayload
	if err := r.query(ctx, wire.RoomDailyNodesQuery(roomID, date), &dailyPayload); err != nil {
		return err
	}
	missing, err := r.store.FilterExisting(ctx, dailyPayload.Nodes)
	if err != nil {
		return err
	}

	ids := make([]xcrypto.Uid, len(missing))
	for i, m := range missing {
		ids[i] = m.ID
	}
	for idBatch := range batches(ids, maxNodeBatch) {
		var full fullNodesPayload
		q, err := wire.FullNodesQuery(roomID, idBatch)
		if err != nil {
			return err
		}
		if err := r.query(ctx, q, &full); err != nil {
			return err
		}
		verified, err := r.verifyFullNodes(ctx, full.Nodes)
		if err != nil {
			return err
		}
		if len(verified) == 0 {
			continue
		}
		if err := r.store.ApplyFullNodes(ctx, roomID, verified); err != nil {
			return err
		}
	}
	return nil
}

// verifyFullNodes checks every node's and every one of its inbound edges'
// signatures, dropping a node entirely if it fails verification and
// dropping only the individual edges of a node that survives but whose
// edges don't.
func (r *Reconciler) verifyFullNodes(ctx context.Context, full []FullNode) ([]FullNode, error) {
	nodes := make([]*graph.Node, len(full))
	for i, fn := range full {
		nodes[i] = fn.Node
	}
	verifiedNodes, failures, err := r.verifyPool.VerifyNodes(ctx, nodes, r.maxRowLength)
	if err != nil {
		return nil, err
	}
	r.logSkipped("node", failures)

	validByID := make(map[xcrypto.Uid]*graph.Node, len(verifiedNodes))
	for _, n := range verifiedNodes {
		validByID[n.ID] = n
	}

	out := make([]FullNode, 0, len(verifiedNodes))
	for _, fn := range full {
		n, ok := validByID[fn.Node.ID]
		if !ok {
			continue
		}
		verifiedEdges, edgeFailures, err := r.verifyPool.VerifyEdges(ctx, fn.Edges, r.maxRowLength)
		if err != nil {
			return nil, err
		}
		r.logSkipped("edge", edgeFailures)
		out = append(out, FullNode{Node: n, Edges: verifiedEdges})
	}
	return out, nil
}

// batches yields successive slices of at most size items from items.
func batches[T any](items []T, size int) func(func([]T) bool) {
	return func(yield func([]T) bool) {
		for len(items) > 0 {
			n := size
			if n > len(items) {
				n = len(items)
			}
			if !yield(items[:n]) {
				return
			}
			items = items[n:]
		}
	}
}
