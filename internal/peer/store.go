// Package peer implements the per-connection synchronisation protocol
// (§4.7-§4.9): the inbound handler that answers a connected peer's queries,
// the outbound driver that reconciles local rooms against a connected
// peer's state, and the connection service that ties both to the room
// lock and event bus.
package peer

import (
	"context"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// FullNode is one row of a FullNodes answer: a node alongside the inbound
// edges it needs reattached on the receiving side (§4.7, §3.2 edges as a
// first-class replicated type).
type FullNode struct {
	Node  *graph.Node
	Edges []*graph.Edge
}

// Store is everything a peer session needs from the local replica: signing
// its own identity proof, deciding which rooms a remote user may see, and
// reading/writing the graph, room and daily-log state a reconcile pass
// touches. internal/queryapi's embedder-facing facade implements it over
// internal/graph, internal/room and internal/dailylog.
type Store interface {
	// Sign proves this replica's identity by signing the xcrypto.Hash of
	// challenge, returning the local device's verifying key alongside the
	// signature.
	Sign(challenge []byte) (verifyingKey, signature []byte, err error)

	// RoomsForUser returns the rooms a user (identified by verifying key)
	// belongs to.
	RoomsForUser(ctx context.Context, verifyingKey []byte) ([]xcrypto.Uid, error)

	// RoomDefinitionLog reports room's definition/data freshness, or
	// (nil, nil) if the room is unknown locally.
	RoomDefinitionLog(ctx context.Context, room xcrypto.Uid) (*dailylog.RoomDefinitionLog, error)

	// Room returns the full room definition, used both to answer a
	// RoomNode query and to apply one received from a peer.
	Room(ctx context.Context, id xcrypto.Uid) (*room.Room, error)
	PutRoom(ctx context.Context, r *room.Room) error

	// RoomLog returns every daily log entry the local replica has for room.
	RoomLog(ctx context.Context, room xcrypto.Uid) ([]dailylog.RoomLog, error)

	// EdgeDeletions/NodeDeletions answer the deletion-log queries for one
	// room/day.
	EdgeDeletions(ctx context.Context, room xcrypto.Uid, date int64) ([]*graph.EdgeDeletionEntry, error)
	NodeDeletions(ctx context.Context, room xcrypto.Uid, date int64) ([]*graph.NodeDeletionEntry, error)

	// DailyNodeIdentifiers lists (id, mdate) for every node touched on
	// room/date, used by the requester to filter out what it already has.
	DailyNodeIdentifiers(ctx context.Context, room xcrypto.Uid, date int64) ([]graph.IDWithMDate, error)

	// FilterExisting returns the subset of candidates not already held
	// locally at an equal-or-newer mdate.
	FilterExisting(ctx context.Context, candidates []graph.IDWithMDate) ([]graph.IDWithMDate, error)

	// FullNodes returns the full signed rows for the given ids, each
	// alongside the inbound edges needed to reattach it.
	FullNodes(ctx context.Context, ids []xcrypto.Uid) ([]FullNode, error)

	// ApplyEdgeDeletions/ApplyNodeDeletions/ApplyFullNodes persist rows
	// received from a remote peer. Reconciler verifies every row through
	// internal/verifypool, skipping the individual rows that fail, before
	// calling any of these.
	ApplyEdgeDeletions(ctx context.Context, room xcrypto.Uid, entries []*graph.EdgeDeletionEntry) error
	ApplyNodeDeletions(ctx context.Context, room xcrypto.Uid, entries []*graph.NodeDeletionEntry) error
	ApplyFullNodes(ctx context.Context, room xcrypto.Uid, nodes []FullNode) error

	// ComputeDailyLog runs internal/dailylog.Compute over whatever is
	// currently dirty, after a reconcile pass has written new rows.
	ComputeDailyLog(ctx context.Context) error
}
