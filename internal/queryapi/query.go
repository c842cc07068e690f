package queryapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Query evaluates a read-only query statement (e.g. `Greetings(id=$id)
// {message}` or `Person{name}` to scan every row of that entity in room)
// and returns `{"<Entity>": [...]}` JSON, matching spec.md scenario 8.1
// (§6 `query(q, params) -> JSON`).
func (h *Handle) Query(ctx context.Context, q string, params map[string]any) (string, error) {
	stmt, err := parseQuery(q)
	if err != nil {
		return "", err
	}
	def, err := h.entity(stmt.Entity)
	if err != nil {
		return "", err
	}
	if stmt.Entity != def.Name {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntity, stmt.Entity)
	}
	h.metrics.ObserveQuery(stmt.Entity)

	roomID, err := paramRoom(params, h.privateRoom)
	if err != nil {
		return "", err
	}

	var nodes []*graph.Node
	if idRaw, ok := stmt.Filters["id"]; ok {
		idVal, ok := resolveFilterValue(idRaw, params)
		if !ok {
			return "", fmt.Errorf("%w: unresolved id parameter", ErrParsing)
		}
		id, err := xcrypto.ParseUid(fmt.Sprint(idVal))
		if err != nil {
			return "", err
		}
		n, err := h.fetchNode(ctx, id)
		if err == graph.ErrNotFound {
			nodes = nil
		} else if err != nil {
			return "", err
		} else if n.RoomID == roomID && n.Entity == stmt.Entity {
			nodes = []*graph.Node{n}
		}
	} else {
		nodes, err = h.scanEntity(ctx, roomID, stmt.Entity)
		if err != nil {
			return "", err
		}
	}

	results := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		var fields map[string]any
		if err := json.Unmarshal([]byte(n.JSONData), &fields); err != nil {
			return "", fmt.Errorf("%w: %v", graph.ErrInvalidJSON, err)
		}
		row := map[string]any{"id": n.ID.String(), "mdate": n.MDate}
		wanted := stmt.Fields
		if len(wanted) == 0 {
			wanted = def.Fields
		}
		for _, f := range wanted {
			if v, ok := fields[f]; ok {
				row[f] = v
			}
		}
		results = append(results, row)
	}

	out, err := json.Marshal(map[string]any{stmt.Entity: results})
	return string(out), err
}

// fetchNode consults the write cache (most recent), then the read cache,
// before falling through to storage, caching what it finds there.
func (h *Handle) fetchNode(ctx context.Context, id xcrypto.Uid) (*graph.Node, error) {
	if n, ok := h.caches.GetWrite(id); ok {
		return n, nil
	}
	if n, ok := h.caches.GetRead(id); ok {
		return n, nil
	}
	n, err := h.graphStore.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	h.caches.PutRead(n)
	return n, nil
}

func (h *Handle) scanEntity(ctx context.Context, roomID xcrypto.Uid, entity string) ([]*graph.Node, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, room_id, cdate, mdate, entity, json_data, binary_data, verifying_key, signature
		FROM _node WHERE room_id = ? AND entity = ? ORDER BY cdate ASC`,
		roomID[:], entity)
	if err != nil {
		return nil, fmt.Errorf("queryapi: scan entity: %w", err)
	}
	defer rows.Close()

	var out []*graph.Node
	for rows.Next() {
		n, err := scanQueryNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanQueryNode(rows *sql.Rows) (*graph.Node, error) {
	var n graph.Node
	var id, roomID []byte
	if err := rows.Scan(&id, &roomID, &n.CDate, &n.MDate, &n.Entity, &n.JSONData, &n.BinaryData, &n.VerifyingKey, &n.Signature); err != nil {
		return nil, err
	}
	var err error
	if n.ID, err = xcrypto.UidFromBytes(id); err != nil {
		return nil, err
	}
	if n.RoomID, err = xcrypto.UidFromBytes(roomID); err != nil {
		return nil, err
	}
	return &n, nil
}
