// Package eventbus fans out store-level occurrences (a daily log finished
// recomputing, a room's definition changed, a peer connected or
// disconnected, a room finished synchronising) to every interested
// subscriber — the query API's mutation_stream/subscribe_for_events
// surface, and internal callers such as metrics, all read from the same
// bus rather than being wired to each other directly.
package eventbus

import (
	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Kind identifies which fields of an Event are populated.
type Kind int

const (
	// KindDataChanged carries the (room, day) entries a daily-log Compute
	// call recomputed, or the error that stopped it. Nothing in this module
	// publishes it: dailylog.Compute and its callers return the entries
	// without posting them to a Bus.
	KindDataChanged Kind = iota
	// KindRoomModified carries a room whose admin/user-admin/authorisation
	// membership changed. Nothing in this module publishes it: room writes
	// are stored without posting to a Bus.
	KindRoomModified
	// KindPeerConnected fires when a remote peer's connection handshake
	// completes.
	KindPeerConnected
	// KindPeerDisconnected fires when a peer connection ends.
	KindPeerDisconnected
	// KindRoomSynchronized fires once a room's anti-entropy pass with a
	// peer completes successfully.
	KindRoomSynchronized
)

// Event is the single message type published on the bus; only the fields
// relevant to Kind are meaningful.
type Event struct {
	Kind Kind

	DailyLog []dailylog.DailyLog
	Err      error

	Room *room.Room

	PeerVerifyingKey []byte
	PeerDate         int64
	ConnectionID     xcrypto.Uid

	RoomID xcrypto.Uid
}

// DataChanged builds a KindDataChanged event from a successful Compute call.
func DataChanged(log []dailylog.DailyLog) Event {
	return Event{Kind: KindDataChanged, DailyLog: log}
}

// DataChangeFailed builds a KindDataChanged event reporting a Compute
// failure; subscribers that only care about successful batches can filter
// on Err == nil.
func DataChangeFailed(err error) Event {
	return Event{Kind: KindDataChanged, Err: err}
}

// RoomModified builds a KindRoomModified event.
func RoomModified(r *room.Room) Event {
	return Event{Kind: KindRoomModified, Room: r}
}

// PeerConnected builds a KindPeerConnected event.
func PeerConnected(verifyingKey []byte, date int64, connectionID xcrypto.Uid) Event {
	return Event{Kind: KindPeerConnected, PeerVerifyingKey: verifyingKey, PeerDate: date, ConnectionID: connectionID}
}

// PeerDisconnected builds a KindPeerDisconnected event.
func PeerDisconnected(verifyingKey []byte, date int64, connectionID xcrypto.Uid) Event {
	return Event{Kind: KindPeerDisconnected, PeerVerifyingKey: verifyingKey, PeerDate: date, ConnectionID: connectionID}
}

// RoomSynchronized builds a KindRoomSynchronized event.
func RoomSynchronized(roomID xcrypto.Uid) Event {
	return Event{Kind: KindRoomSynchronized, RoomID: roomID}
}
