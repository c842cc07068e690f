package queryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Mutate applies a single-entity mutation statement (e.g.
// `Greetings{ message:"Hello World" }`) against the room named by the
// `room` parameter (defaulting to this device's private room), signs the
// resulting node, and returns it JSON-encoded with its assigned id (§6
// `mutate(query, params) -> JSON string`, spec.md scenario 8.1).
func (h *Handle) Mutate(ctx context.Context, query string, params map[string]any) (_ string, err error) {
	start := time.Now()
	entityName := mutationEntityName(query)
	defer func() { h.metrics.ObserveMutation(entityName, start, err) }()

	def, err := h.entity(entityName)
	if err != nil {
		return "", err
	}
	stmt, err := parseMutation(query, params)
	if err != nil {
		return "", err
	}
	if stmt.Entity != def.Name {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntity, stmt.Entity)
	}

	roomID, err := paramRoom(params, h.privateRoom)
	if err != nil {
		return "", err
	}
	r, err := h.replicaSt.Room(ctx, roomID)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrRoomUnknown, roomID)
	}

	now := time.Now().UnixMilli()
	verifyingKey := xcrypto.Base64Encode(h.signingKey.VerifyingKey().Export())
	if !r.IsAdmin(verifyingKey, now) && !r.Can(verifyingKey, stmt.Entity, now, room.RightMutateAll) &&
		!r.Can(verifyingKey, stmt.Entity, now, room.RightMutateSelf) {
		return "", fmt.Errorf("%w: mutate %s", ErrAuthorisation, stmt.Entity)
	}

	fieldsJSON, err := json.Marshal(stmt.Fields)
	if err != nil {
		return "", err
	}

	id, err := xcrypto.NewUid()
	if err != nil {
		return "", err
	}
	node := &graph.Node{
		ID:       id,
		RoomID:   roomID,
		CDate:    now,
		MDate:    now,
		Entity:   stmt.Entity,
		JSONData: string(fieldsJSON),
	}

	tx, err := h.graphStore.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	recorder := dailylog.NewMutations()
	if err := h.graphStore.SignAndWriteNode(ctx, tx, node, h.signingKey, recorder); err != nil {
		return "", err
	}
	if err := recorder.Flush(ctx, tx); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	h.caches.PutWrite(node)

	result := map[string]any{"id": id.String(), "mdate": now}
	for k, v := range stmt.Fields {
		result[k] = v
	}
	out, err := json.Marshal(map[string]any{stmt.Entity: []any{result}})
	return string(out), err
}

// Delete removes the row a query statement selects, writing the signed
// tombstone internal/graph.Store.DeleteNode produces (§6 `delete`).
func (h *Handle) Delete(ctx context.Context, query string, params map[string]any) (err error) {
	start := time.Now()
	entityName := "?"
	defer func() { h.metrics.ObserveMutation("delete:"+entityName, start, err) }()

	stmt, err := parseQuery(query)
	if err != nil {
		return err
	}
	entityName = stmt.Entity
	if _, err := h.entity(stmt.Entity); err != nil {
		return err
	}
	roomID, err := paramRoom(params, h.privateRoom)
	if err != nil {
		return err
	}

	idRaw, ok := stmt.Filters["id"]
	if !ok {
		return fmt.Errorf("%w: delete requires an id filter", ErrParsing)
	}
	idVal, ok := resolveFilterValue(idRaw, params)
	if !ok {
		return fmt.Errorf("%w: unresolved id parameter", ErrParsing)
	}
	id, err := xcrypto.ParseUid(fmt.Sprint(idVal))
	if err != nil {
		return err
	}

	node, err := h.fetchNode(ctx, id)
	if err != nil {
		return err
	}

	tx, err := h.graphStore.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recorder := dailylog.NewMutations()
	now := time.Now().UnixMilli()
	if err := h.graphStore.DeleteNode(ctx, tx, roomID, node, now, h.signingKey, recorder); err != nil {
		return err
	}
	if err := recorder.Flush(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	h.caches.Evict(id)
	return nil
}

// MutationBatch is one item submitted on the channel MutationStream
// returns: an entity plus its scalar fields, applied against room.
type MutationBatch struct {
	Room   xcrypto.Uid
	Entity string
	Fields map[string]any
}

// MutationStream returns a sender/receiver pair for batched inserts (§6
// `mutation_stream() -> (sender, receiver)`): every MutationBatch sent is
// signed and written in its own transaction, and any error is delivered on
// the returned receiver without stopping the stream.
func (h *Handle) MutationStream() (chan<- MutationBatch, <-chan error) {
	in := make(chan MutationBatch, h.cfg.WriteBufferLength)
	errs := make(chan error, h.cfg.WriteBufferLength)
	go func() {
		for batch := range in {
			if err := h.applyBatch(context.Background(), batch); err != nil {
				errs <- err
			}
		}
		close(errs)
	}()
	return in, errs
}

func (h *Handle) applyBatch(ctx context.Context, batch MutationBatch) error {
	if _, err := h.entity(batch.Entity); err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(batch.Fields)
	if err != nil {
		return err
	}
	id, err := xcrypto.NewUid()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	node := &graph.Node{ID: id, RoomID: batch.Room, CDate: now, MDate: now, Entity: batch.Entity, JSONData: string(fieldsJSON)}

	tx, err := h.graphStore.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recorder := dailylog.NewMutations()
	if err := h.graphStore.SignAndWriteNode(ctx, tx, node, h.signingKey, recorder); err != nil {
		return err
	}
	if err := recorder.Flush(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	h.caches.PutWrite(node)
	return nil
}

func mutationEntityName(query string) string {
	m := entityDeclRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}
