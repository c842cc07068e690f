package peer

import (
	"encoding/json"
	"fmt"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Answer.Serialized carries one of these shapes, JSON-encoded, depending on
// which Query it answers. JSON (rather than a bespoke binary codec) matches
// the rest of the replica's ambient serialisation choice and keeps every
// query-specific payload's shape close to its Go type.

// proveIdentityPayload answers Query.Kind == QueryProveIdentity.
type proveIdentityPayload struct {
	VerifyingKey    []byte `json:"verifying_key"`
	ChallengeSigned []byte `json:"challenge_signed"`
}

// roomListPayload answers QueryRoomList.
type roomListPayload struct {
	Rooms []xcrypto.Uid `json:"rooms"`
}

// roomDefinitionPayload answers QueryRoomDefinition.
type roomDefinitionPayload struct {
	Log *dailylog.RoomDefinitionLog `json:"log"`
}

// roomNodePayload answers QueryRoomNode: the room's full definition, sent
// so a peer that has never seen it can bootstrap membership and rights.
// Its authenticity rests on the authenticated connection's identity proof:
// the payload carries the decoded Room value, not the signed sys.Room row it
// was loaded from, so there is no signature here for internal/verifypool to
// check.
type roomNodePayload struct {
	Room *room.Room `json:"room"`
}

// roomLogPayload answers QueryRoomLog.
type roomLogPayload struct {
	Log []dailylog.RoomLog `json:"log"`
}

// dailyNodesPayload answers QueryRoomDailyNodes.
type dailyNodesPayload struct {
	Nodes []graph.IDWithMDate `json:"nodes"`
}

// edgeDeletionPayload answers QueryEdgeDeletionLog.
type edgeDeletionPayload struct {
	Entries []*graph.EdgeDeletionEntry `json:"entries"`
}

// nodeDeletionPayload answers QueryNodeDeletionLog.
type nodeDeletionPayload struct {
	Entries []*graph.NodeDeletionEntry `json:"entries"`
}

// fullNodesPayload answers QueryFullNodes: each node travels with the
// inbound edges needed to reattach it, since edges replicate alongside
// their destination node rather than through a query of their own.
type fullNodesPayload struct {
	Nodes []FullNode `json:"nodes"`
}

func encodePayload(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("peer: encode payload: %w", err)
	}
	return b, nil
}

func decodePayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("peer: decode payload: %w", err)
	}
	return nil
}
