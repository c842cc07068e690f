package peer

import (
	"context"
	"fmt"

	"github.com/ringdb/ringdb/internal/wire"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// RemoteHandler answers the queries a connected peer sends over this
// session, restricting room-scoped queries to the rooms the peer's proven
// identity is allowed to see (§4.7). It has no goroutine of its own; the
// owning session calls Handle for each inbound QueryProtocol.
type RemoteHandler struct {
	store        Store
	signingKey   xcrypto.SigningKey
	allowedRooms map[xcrypto.Uid]struct{} // populated lazily on the first RoomList query
	peerKey      []byte                   // set once ProveIdentity has been answered
}

// NewRemoteHandler returns a handler answering queries against store, using
// signingKey to prove this replica's own identity.
func NewRemoteHandler(store Store, signingKey xcrypto.SigningKey) *RemoteHandler {
	return &RemoteHandler{store: store, signingKey: signingKey}
}

// PeerKey returns the verifying key the connected peer proved ownership of,
// or nil if ProveIdentity has not been answered yet.
func (h *RemoteHandler) PeerKey() []byte {
	return h.peerKey
}

// Handle answers one inbound query, returning the Answer to send back.
func (h *RemoteHandler) Handle(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	switch q.Query.Kind {
	case wire.QueryProveIdentity:
		return h.proveIdentity(q)
	case wire.QueryRoomList:
		return h.roomList(ctx, q)
	case wire.QueryRoomDefinition:
		return h.roomDefinition(ctx, q)
	case wire.QueryRoomNode:
		return h.roomNode(ctx, q)
	case wire.QueryRoomLog:
		return h.roomLog(ctx, q)
	case wire.QueryRoomDailyNodes:
		return h.dailyNodes(ctx, q)
	case wire.QueryEdgeDeletionLog:
		return h.edgeDeletions(ctx, q)
	case wire.QueryNodeDeletionLog:
		return h.nodeDeletions(ctx, q)
	case wire.QueryFullNodes:
		return h.fullNodes(ctx, q)
	default:
		return wire.Failed(q.ID, "unknown query kind")
	}
}

func (h *RemoteHandler) proveIdentity(q wire.QueryProtocol) wire.Answer {
	verifyingKey, signature, err := h.store.Sign(q.Query.Challenge)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(proveIdentityPayload{VerifyingKey: verifyingKey, ChallengeSigned: signature})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

// setPeerKey records the verifying key the connected peer proved ownership
// of in its own ProveIdentity request, called by the session once it
// receives and checks that answer. Room-scoped queries are rejected until
// this has been called.
func (h *RemoteHandler) setPeerKey(verifyingKey []byte) {
	h.peerKey = verifyingKey
}

func (h *RemoteHandler) roomList(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if len(h.peerKey) == 0 {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	rooms, err := h.store.RoomsForUser(ctx, h.peerKey)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	if h.allowedRooms == nil {
		h.allowedRooms = make(map[xcrypto.Uid]struct{}, len(rooms))
		for _, r := range rooms {
			h.allowedRooms[r] = struct{}{}
		}
	}
	data, err := encodePayload(roomListPayload{Rooms: rooms})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) allowed(room xcrypto.Uid) bool {
	_, ok := h.allowedRooms[room]
	return ok
}

func (h *RemoteHandler) roomDefinition(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	log, err := h.store.RoomDefinitionLog(ctx, q.Query.RoomID)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(roomDefinitionPayload{Log: log})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) roomNode(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	r, err := h.store.Room(ctx, q.Query.RoomID)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(roomNodePayload{Room: r})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) roomLog(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	log, err := h.store.RoomLog(ctx, q.Query.RoomID)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(roomLogPayload{Log: log})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) dailyNodes(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	nodes, err := h.store.DailyNodeIdentifiers(ctx, q.Query.RoomID, q.Query.Date)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(dailyNodesPayload{Nodes: nodes})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) edgeDeletions(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	entries, err := h.store.EdgeDeletions(ctx, q.Query.RoomID, q.Query.Date)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(edgeDeletionPayload{Entries: entries})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) nodeDeletions(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	entries, err := h.store.NodeDeletions(ctx, q.Query.RoomID, q.Query.Date)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(nodeDeletionPayload{Entries: entries})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}

func (h *RemoteHandler) fullNodes(ctx context.Context, q wire.QueryProtocol) wire.Answer {
	if !h.allowed(q.Query.RoomID) {
		return wire.Failed(q.ID, ErrAuthorisation.Error())
	}
	if len(q.Query.IDs) > wire.MaxFullNodesIDs {
		return wire.Failed(q.ID, fmt.Sprintf("requested %d ids, max is %d", len(q.Query.IDs), wire.MaxFullNodesIDs))
	}
	nodes, err := h.store.FullNodes(ctx, q.Query.IDs)
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	data, err := encodePayload(fullNodesPayload{Nodes: nodes})
	if err != nil {
		return wire.Failed(q.ID, ErrRemoteTechnical.Error())
	}
	return wire.Ok(q.ID, data)
}
