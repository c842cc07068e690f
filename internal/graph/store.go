package graph

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// MutationRecorder buffers the (room, day) pairs touched by a write so the
// daily log can recompute them in one batch instead of per-row. It is
// implemented by internal/dailylog.Mutations and is always passed the same
// instance for every write inside one writer-task batch.
type MutationRecorder interface {
	MarkDirty(room xcrypto.Uid, mutationDateMs int64)
}

// IDWithMDate is one entry of a FilterExisting request: a candidate row
// identity alongside the mdate the requesting peer already has for it.
type IDWithMDate struct {
	ID    xcrypto.Uid
	MDate int64
}

// Store is the signed graph store (§4.1): Node and Edge persistence backed
// by the tables internal/store creates (_node, _edge and their deletion
// logs). Reads take a *sql.DB (or any read-capable executor); writes take
// the caller's *sql.Tx so a batch of signed writes and the resulting
// daily-log dirty marks commit atomically, matching the single-writer
// transaction model of §5.
type Store struct {
	db           *sql.DB
	maxRowLength int
}

// NewStore returns a Store backed by db, rejecting rows whose encoded size
// exceeds maxRowLength (§6 max_object_size_in_kb).
func NewStore(db *sql.DB, maxRowLength int) *Store {
	if maxRowLength <= 0 {
		maxRowLength = DefaultMaxRowLength
	}
	return &Store{db: db, maxRowLength: maxRowLength}
}

// Begin starts a transaction for the writer task to batch one or more
// signed writes into.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// SignAndWriteNode stamps, signs and upserts node within tx, recording the
// touched (room, day) in recorder.
func (s *Store) SignAndWriteNode(ctx context.Context, tx *sql.Tx, node *Node, key xcrypto.SigningKey, recorder MutationRecorder) error {
	if err := node.Sign(key, s.maxRowLength); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _node (id, room_id, cdate, mdate, entity, json_data, binary_data, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mdate = excluded.mdate,
			json_data = excluded.json_data,
			binary_data = excluded.binary_data,
			verifying_key = excluded.verifying_key,
			signature = excluded.signature
	`, node.ID[:], node.RoomID[:], node.CDate, node.MDate, node.Entity, node.JSONData, node.BinaryData, node.VerifyingKey, node.Signature)
	if err != nil {
		return fmt.Errorf("graph: write node: %w", err)
	}
	if recorder != nil && !IsSystemEntity(node.Entity) {
		recorder.MarkDirty(node.RoomID, node.MDate)
	}
	return nil
}

// SignAndWriteEdge stamps, signs and upserts edge within tx.
func (s *Store) SignAndWriteEdge(ctx context.Context, tx *sql.Tx, roomID xcrypto.Uid, edge *Edge, key xcrypto.SigningKey, recorder MutationRecorder) error {
	if err := edge.Sign(key, s.maxRowLength); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _edge (src, src_entity, label, dest, cdate, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src, label, dest) DO UPDATE SET
			verifying_key = excluded.verifying_key,
			signature = excluded.signature
	`, edge.Src[:], edge.SrcEntity, edge.Label, edge.Dest[:], edge.CDate, edge.VerifyingKey, edge.Signature)
	if err != nil {
		return fmt.Errorf("graph: write edge: %w", err)
	}
	if recorder != nil && !IsSystemEntity(edge.SrcEntity) {
		recorder.MarkDirty(roomID, edge.CDate)
	}
	return nil
}

// WriteForeignNode upserts a node signed by a remote peer, trusting the
// caller (internal/verifypool) has already checked its signature; unlike
// SignAndWriteNode it never re-signs, since the remote author's signature
// must be preserved for other peers to verify the same row later.
func (s *Store) WriteForeignNode(ctx context.Context, tx *sql.Tx, node *Node, recorder MutationRecorder) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _node (id, room_id, cdate, mdate, entity, json_data, binary_data, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mdate = excluded.mdate,
			json_data = excluded.json_data,
			binary_data = excluded.binary_data,
			verifying_key = excluded.verifying_key,
			signature = excluded.signature
		WHERE excluded.mdate > _node.mdate
	`, node.ID[:], node.RoomID[:], node.CDate, node.MDate, node.Entity, node.JSONData, node.BinaryData, node.VerifyingKey, node.Signature)
	if err != nil {
		return fmt.Errorf("graph: write foreign node: %w", err)
	}
	if recorder != nil && !IsSystemEntity(node.Entity) {
		recorder.MarkDirty(node.RoomID, node.MDate)
	}
	return nil
}

// WriteForeignEdge upserts an edge signed by a remote peer without
// re-signing it, mirroring WriteForeignNode.
func (s *Store) WriteForeignEdge(ctx context.Context, tx *sql.Tx, roomID xcrypto.Uid, edge *Edge, recorder MutationRecorder) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _edge (src, src_entity, label, dest, cdate, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src, label, dest) DO NOTHING
	`, edge.Src[:], edge.SrcEntity, edge.Label, edge.Dest[:], edge.CDate, edge.VerifyingKey, edge.Signature)
	if err != nil {
		return fmt.Errorf("graph: write foreign edge: %w", err)
	}
	if recorder != nil && !IsSystemEntity(edge.SrcEntity) {
		recorder.MarkDirty(roomID, edge.CDate)
	}
	return nil
}

// ApplyNodeDeletion persists a tombstone received from a remote peer
// (already verified by internal/verifypool) and removes the live row if
// still present locally.
func (s *Store) ApplyNodeDeletion(ctx context.Context, tx *sql.Tx, entry *NodeDeletionEntry, recorder MutationRecorder) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM _node WHERE id = ?`, entry.ID[:]); err != nil {
		return fmt.Errorf("graph: apply node deletion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _node_deletion_log (room, id, entity, deletion_date, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Room[:], entry.ID[:], entry.Entity, entry.DeletionDate, entry.VerifyingKey, entry.Signature); err != nil {
		return fmt.Errorf("graph: write foreign node tombstone: %w", err)
	}
	if recorder != nil && !IsSystemEntity(entry.Entity) {
		recorder.MarkDirty(entry.Room, entry.Date)
	}
	return nil
}

// ApplyEdgeDeletion persists an edge tombstone received from a remote peer,
// mirroring ApplyNodeDeletion.
func (s *Store) ApplyEdgeDeletion(ctx context.Context, tx *sql.Tx, entry *EdgeDeletionEntry, recorder MutationRecorder) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM _edge WHERE src = ? AND label = ? AND dest = ?`, entry.Src[:], entry.Label, entry.Dest[:]); err != nil {
		return fmt.Errorf("graph: apply edge deletion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _edge_deletion_log (room, src, src_entity, dest, label, deletion_date, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Room[:], entry.Src[:], entry.SrcEntity, entry.Dest[:], entry.Label, entry.DeletionDate, entry.VerifyingKey, entry.Signature); err != nil {
		return fmt.Errorf("graph: write foreign edge tombstone: %w", err)
	}
	if recorder != nil && !IsSystemEntity(entry.SrcEntity) {
		recorder.MarkDirty(entry.Room, entry.Date)
	}
	return nil
}

// GetNode looks up a node by id.
func (s *Store) GetNode(ctx context.Context, id xcrypto.Uid) (*Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room_id, cdate, mdate, entity, json_data, binary_data, verifying_key, signature
		FROM _node WHERE id = ?`, id[:])
	return scanNode(row)
}

// GetEdge looks up the single edge identified by (src, label, dest).
func (s *Store) GetEdge(ctx context.Context, src xcrypto.Uid, label string, dest xcrypto.Uid) (*Edge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT src, src_entity, label, dest, cdate, verifying_key, signature
		FROM _edge WHERE src = ? AND label = ? AND dest = ?`, src[:], label, dest[:])
	return scanEdge(row)
}

// GetEdges returns every edge with the given source and label.
func (s *Store) GetEdges(ctx context.Context, src xcrypto.Uid, label string) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, src_entity, label, dest, cdate, verifying_key, signature
		FROM _edge WHERE src = ? AND label = ?`, src[:], label)
	if err != nil {
		return nil, fmt.Errorf("graph: get edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// GetInboundEdges returns every edge whose destination is dest, i.e. the
// edges a received node must be reattached to when it arrives via FullNodes.
func (s *Store) GetInboundEdges(ctx context.Context, dest xcrypto.Uid) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, src_entity, label, dest, cdate, verifying_key, signature
		FROM _edge WHERE dest = ?`, dest[:])
	if err != nil {
		return nil, fmt.Errorf("graph: get inbound edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// Exists reports whether the edge (src, label, dest) is present.
func (s *Store) Exists(ctx context.Context, src xcrypto.Uid, label string, dest xcrypto.Uid) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM _edge WHERE src = ? AND label = ? AND dest = ?`, src[:], label, dest[:]).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("graph: exists: %w", err)
	}
	return true, nil
}

// DeleteNode hard-deletes a node and writes its signed tombstone.
func (s *Store) DeleteNode(ctx context.Context, tx *sql.Tx, room xcrypto.Uid, node *Node, deletionDate int64, key xcrypto.SigningKey, recorder MutationRecorder) error {
	entry := BuildNodeDeletionEntry(room, node, deletionDate, key)
	if _, err := tx.ExecContext(ctx, `DELETE FROM _node WHERE id = ?`, node.ID[:]); err != nil {
		return fmt.Errorf("graph: delete node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _node_deletion_log (room, id, entity, deletion_date, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Room[:], entry.ID[:], entry.Entity, entry.DeletionDate, entry.VerifyingKey, entry.Signature); err != nil {
		return fmt.Errorf("graph: write node tombstone: %w", err)
	}
	if recorder != nil && !IsSystemEntity(node.Entity) {
		recorder.MarkDirty(room, entry.Date)
	}
	return nil
}

// DeleteEdge hard-deletes an edge and writes its signed tombstone.
func (s *Store) DeleteEdge(ctx context.Context, tx *sql.Tx, room xcrypto.Uid, edge *Edge, deletionDate int64, key xcrypto.SigningKey, recorder MutationRecorder) error {
	entry := BuildEdgeDeletionEntry(room, edge, deletionDate, key)
	if _, err := tx.ExecContext(ctx, `DELETE FROM _edge WHERE src = ? AND label = ? AND dest = ?`, edge.Src[:], edge.Label, edge.Dest[:]); err != nil {
		return fmt.Errorf("graph: delete edge: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO _edge_deletion_log (room, src, src_entity, dest, label, deletion_date, verifying_key, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Room[:], entry.Src[:], entry.SrcEntity, entry.Dest[:], entry.Label, entry.DeletionDate, entry.VerifyingKey, entry.Signature); err != nil {
		return fmt.Errorf("graph: write edge tombstone: %w", err)
	}
	if recorder != nil && !IsSystemEntity(edge.SrcEntity) {
		recorder.MarkDirty(room, entry.Date)
	}
	return nil
}

// FilterExisting returns the subset of candidates this replica does not
// already hold at an equal-or-newer mdate, so a peer driving sync does not
// re-fetch rows it already has.
func (s *Store) FilterExisting(ctx context.Context, candidates []IDWithMDate) ([]IDWithMDate, error) {
	var missing []IDWithMDate
	for _, c := range candidates {
		var mdate int64
		err := s.db.QueryRowContext(ctx, `SELECT mdate FROM _node WHERE id = ?`, c.ID[:]).Scan(&mdate)
		switch {
		case err == sql.ErrNoRows:
			missing = append(missing, c)
		case err != nil:
			return nil, fmt.Errorf("graph: filter existing: %w", err)
		case mdate < c.MDate:
			missing = append(missing, c)
		}
	}
	return missing, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var id, roomID []byte
	err := row.Scan(&id, &roomID, &n.CDate, &n.MDate, &n.Entity, &n.JSONData, &n.BinaryData, &n.VerifyingKey, &n.Signature)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("graph: scan node: %w", err)
	}
	n.ID, err = xcrypto.UidFromBytes(id)
	if err != nil {
		return nil, err
	}
	n.RoomID, err = xcrypto.UidFromBytes(roomID)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanEdge(row scanner) (*Edge, error) {
	var e Edge
	var src, dest []byte
	err := row.Scan(&src, &e.SrcEntity, &e.Label, &dest, &e.CDate, &e.VerifyingKey, &e.Signature)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("graph: scan edge: %w", err)
	}
	e.Src, err = xcrypto.UidFromBytes(src)
	if err != nil {
		return nil, err
	}
	e.Dest, err = xcrypto.UidFromBytes(dest)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
