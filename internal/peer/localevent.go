package peer

import (
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// LocalEventKind tags which field of a LocalEvent is populated.
type LocalEventKind byte

const (
	// LocalEventRoomDefinitionChanged fires when a room's authorisation
	// chain changes locally; every session for a user in that room relays
	// it to its peer as a RemoteEvent.
	LocalEventRoomDefinitionChanged LocalEventKind = iota + 1
	// LocalEventRoomDataChanged fires once daily-log recomputation settles,
	// naming every room touched.
	LocalEventRoomDataChanged
)

// LocalEvent is a same-process notification fed to every peer session so it
// can decide whether to forward it to its connected peer as a RemoteEvent.
// It mirrors internal/eventbus.Event's room-centric subset rather than reusing
// it directly, since a session only cares about room membership/data
// changes, never about peer connect/disconnect notifications about itself.
type LocalEvent struct {
	Kind  LocalEventKind
	Room  *room.Room    // RoomDefinitionChanged
	Rooms []xcrypto.Uid // RoomDataChanged
}
