// Package queryapi implements the embedder-facing facade (§6): mutate,
// query, delete, mutation streaming, invite/accept-invite, event
// subscription and data-model introspection, against a minimal
// scalar-field entity model sufficient to drive the end-to-end scenarios
// of spec.md §8. The query/mutation language itself (parser, planner,
// execution) is out of scope (spec.md §1); this package implements only
// the narrow boundary a front-end would sit behind.
package queryapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/peer"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// replicaStore ties internal/graph, internal/room and internal/dailylog
// together into the single interface internal/peer.Store needs, and is
// also what Handle's mutate/query/delete operations write through. Rooms
// are themselves graph nodes: the whole Room (admins, user-admins, every
// Authorisation) is serialised to JSON and stored as one sys.Room node per
// room, so it replicates through the ordinary FullNodes/RoomNode queries
// without a bespoke wire format (§4.2 "loaded from JSON projections of the
// system entities stored as ordinary graph nodes").
type replicaStore struct {
	db         *sql.DB
	graph      *graph.Store
	signingKey xcrypto.SigningKey
}

func newReplicaStore(db *sql.DB, g *graph.Store, signingKey xcrypto.SigningKey) *replicaStore {
	return &replicaStore{db: db, graph: g, signingKey: signingKey}
}

// Sign proves this replica's identity by signing the xcrypto.Hash of
// challenge (§4.8 startup).
func (s *replicaStore) Sign(challenge []byte) (verifyingKey, signature []byte, err error) {
	h := xcrypto.Hash(challenge)
	return s.signingKey.VerifyingKey().Export(), s.signingKey.Sign(h[:]), nil
}

// RoomsForUser returns every room whose sys.Room projection lists
// verifyingKey as an admin, user-admin, or authorisation member.
func (s *replicaStore) RoomsForUser(ctx context.Context, verifyingKey []byte) ([]xcrypto.Uid, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, json_data FROM _node WHERE entity = ?`, string(graph.SystemEntityRoom))
	if err != nil {
		return nil, fmt.Errorf("queryapi: rooms for user: %w", err)
	}
	defer rows.Close()

	key := xcrypto.Base64Encode(verifyingKey)
	var out []xcrypto.Uid
	for rows.Next() {
		var idBytes []byte
		var jsonData string
		if err := rows.Scan(&idBytes, &jsonData); err != nil {
			return nil, err
		}
		r, err := decodeRoom(jsonData)
		if err != nil {
			continue
		}
		if r.HasUser(key) {
			id, err := xcrypto.UidFromBytes(idBytes)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

// Room loads and decodes room's sys.Room projection, or (nil, nil) if this
// replica does not have it.
func (s *replicaStore) Room(ctx context.Context, id xcrypto.Uid) (*room.Room, error) {
	n, err := s.graph.GetNode(ctx, id)
	if err == graph.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(n.JSONData)
}

// PutRoom persists r as a signed sys.Room node and stamps the room
// changelog so RoomDefinition queries see the new mdate (§4.7, §4.2).
func (s *replicaStore) PutRoom(ctx context.Context, r *room.Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("queryapi: encode room: %w", err)
	}
	node := &graph.Node{
		ID:       r.ID,
		RoomID:   r.ID,
		CDate:    r.MDate,
		MDate:    r.MDate,
		Entity:   string(graph.SystemEntityRoom),
		JSONData: string(data),
	}

	tx, err := s.graph.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.graph.SignAndWriteNode(ctx, tx, node, s.signingKey, nil); err != nil {
		return fmt.Errorf("queryapi: write room: %w", err)
	}
	if err := dailylog.RecordRoomMutation(ctx, tx, r.ID, r.MDate); err != nil {
		return err
	}
	return tx.Commit()
}

func decodeRoom(jsonData string) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal([]byte(jsonData), &r); err != nil {
		return nil, fmt.Errorf("queryapi: decode room: %w", err)
	}
	return &r, nil
}

// RoomDefinitionLog reports room's definition/data freshness (§4.7).
func (s *replicaStore) RoomDefinitionLog(ctx context.Context, roomID xcrypto.Uid) (*dailylog.RoomDefinitionLog, error) {
	logs, err := dailylog.GetRoomDefinitionLogs(ctx, s.db, []xcrypto.Uid{roomID})
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// RoomLog returns every daily log entry for roomID (§4.7 RoomLog query).
func (s *replicaStore) RoomLog(ctx context.Context, roomID xcrypto.Uid) ([]dailylog.RoomLog, error) {
	return dailylog.GetRoomLog(ctx, s.db, roomID)
}

// EdgeDeletions answers the EdgeDeletionLog query for one (room, day).
func (s *replicaStore) EdgeDeletions(ctx context.Context, roomID xcrypto.Uid, date int64) ([]*graph.EdgeDeletionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room, src, src_entity, dest, label, deletion_date, verifying_key, signature
		FROM _edge_deletion_log WHERE room = ? AND deletion_date >= ? AND deletion_date < ?`,
		roomID[:], date, date+dailylogDayMillis)
	if err != nil {
		return nil, fmt.Errorf("queryapi: edge deletions: %w", err)
	}
	defer rows.Close()

	var out []*graph.EdgeDeletionEntry
	for rows.Next() {
		var e graph.EdgeDeletionEntry
		var roomBytes, src, dest []byte
		if err := rows.Scan(&roomBytes, &src, &e.SrcEntity, &dest, &e.Label, &e.DeletionDate, &e.VerifyingKey, &e.Signature); err != nil {
			return nil, err
		}
		if e.Room, err = xcrypto.UidFromBytes(roomBytes); err != nil {
			return nil, err
		}
		if e.Src, err = xcrypto.UidFromBytes(src); err != nil {
			return nil, err
		}
		if e.Dest, err = xcrypto.UidFromBytes(dest); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NodeDeletions answers the NodeDeletionLog query for one (room, day).
func (s *replicaStore) NodeDeletions(ctx context.Context, roomID xcrypto.Uid, date int64) ([]*graph.NodeDeletionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room, id, entity, deletion_date, verifying_key, signature
		FROM _node_deletion_log WHERE room = ? AND deletion_date >= ? AND deletion_date < ?`,
		roomID[:], date, date+dailylogDayMillis)
	if err != nil {
		return nil, fmt.Errorf("queryapi: node deletions: %w", err)
	}
	defer rows.Close()

	var out []*graph.NodeDeletionEntry
	for rows.Next() {
		var e graph.NodeDeletionEntry
		var roomBytes, id []byte
		if err := rows.Scan(&roomBytes, &id, &e.Entity, &e.DeletionDate, &e.VerifyingKey, &e.Signature); err != nil {
			return nil, err
		}
		if e.Room, err = xcrypto.UidFromBytes(roomBytes); err != nil {
			return nil, err
		}
		if e.ID, err = xcrypto.UidFromBytes(id); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DailyNodeIdentifiers lists (id, mdate) for every non-system node written
// in room on date (§4.7 RoomDailyNodes).
func (s *replicaStore) DailyNodeIdentifiers(ctx context.Context, roomID xcrypto.Uid, date int64) ([]graph.IDWithMDate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mdate FROM _node
		WHERE room_id = ? AND mdate >= ? AND mdate < ? AND entity NOT LIKE 'sys.%'`,
		roomID[:], date, date+dailylogDayMillis)
	if err != nil {
		return nil, fmt.Errorf("queryapi: daily node identifiers: %w", err)
	}
	defer rows.Close()

	var out []graph.IDWithMDate
	for rows.Next() {
		var idBytes []byte
		var mdate int64
		if err := rows.Scan(&idBytes, &mdate); err != nil {
			return nil, err
		}
		id, err := xcrypto.UidFromBytes(idBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, graph.IDWithMDate{ID: id, MDate: mdate})
	}
	return out, rows.Err()
}

// FilterExisting delegates to internal/graph.Store.FilterExisting.
func (s *replicaStore) FilterExisting(ctx context.Context, candidates []graph.IDWithMDate) ([]graph.IDWithMDate, error) {
	return s.graph.FilterExisting(ctx, candidates)
}

// FullNodes returns the full signed rows for ids, each alongside the
// inbound edges it needs reattached on the receiving side (§4.7 FullNodes,
// §3.2 edges replicate with the node they point at rather than on their
// own).
func (s *replicaStore) FullNodes(ctx context.Context, ids []xcrypto.Uid) ([]peer.FullNode, error) {
	out := make([]peer.FullNode, 0, len(ids))
	for _, id := range ids {
		n, err := s.graph.GetNode(ctx, id)
		if err == graph.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		edges, err := s.graph.GetInboundEdges(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, peer.FullNode{Node: n, Edges: edges})
	}
	return out, nil
}

// ApplyEdgeDeletions persists tombstones received from a peer. Reconciler
// verifies each entry through internal/verifypool before calling this
// (§4.8 day sync step a).
func (s *replicaStore) ApplyEdgeDeletions(ctx context.Context, roomID xcrypto.Uid, entries []*graph.EdgeDeletionEntry) error {
	return s.inMutationTx(ctx, func(tx *sql.Tx, recorder *dailylog.Mutations) error {
		for _, e := range entries {
			if err := s.graph.ApplyEdgeDeletion(ctx, tx, e, recorder); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyNodeDeletions persists tombstones received from a peer, already
// verified by Reconciler through internal/verifypool (§4.8 day sync step
// b).
func (s *replicaStore) ApplyNodeDeletions(ctx context.Context, roomID xcrypto.Uid, entries []*graph.NodeDeletionEntry) error {
	return s.inMutationTx(ctx, func(tx *sql.Tx, recorder *dailylog.Mutations) error {
		for _, e := range entries {
			if err := s.graph.ApplyNodeDeletion(ctx, tx, e, recorder); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyFullNodes persists nodes and their inbound edges received from a
// peer, already verified by Reconciler through internal/verifypool (§4.8
// day sync step d), upserting sys.Room projections' changelog entry too so
// a future RoomDefinition query reflects what was just received.
func (s *replicaStore) ApplyFullNodes(ctx context.Context, roomID xcrypto.Uid, nodes []peer.FullNode) error {
	return s.inMutationTx(ctx, func(tx *sql.Tx, recorder *dailylog.Mutations) error {
		for _, fn := range nodes {
			n := fn.Node
			if err := s.graph.WriteForeignNode(ctx, tx, n, recorder); err != nil {
				return err
			}
			if n.Entity == string(graph.SystemEntityRoom) {
				if err := dailylog.RecordRoomMutation(ctx, tx, n.RoomID, n.MDate); err != nil {
					return err
				}
			}
			for _, e := range fn.Edges {
				if err := s.graph.WriteForeignEdge(ctx, tx, roomID, e, recorder); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ComputeDailyLog runs internal/dailylog.Compute over whatever is dirty
// (§4.8 step 5, after a reconcile pass finishes).
func (s *replicaStore) ComputeDailyLog(ctx context.Context) error {
	tx, err := s.graph.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := dailylog.Compute(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *replicaStore) inMutationTx(ctx context.Context, fn func(tx *sql.Tx, recorder *dailylog.Mutations) error) error {
	tx, err := s.graph.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recorder := dailylog.NewMutations()
	if err := fn(tx, recorder); err != nil {
		return err
	}
	if err := recorder.Flush(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// dailylogDayMillis is one day in milliseconds, used to bound the
// half-open [date, date+1 day) ranges the deletion-log and daily-nodes
// queries scan.
const dailylogDayMillis = 24 * 60 * 60 * 1000
