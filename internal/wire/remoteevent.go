package wire

import "github.com/ringdb/ringdb/internal/xcrypto"

// RemoteEventKind tags which fields of a RemoteEvent are populated.
type RemoteEventKind byte

const (
	// RemoteEventReady announces that the sending peer has finished its
	// identity proof and is ready to serve queries.
	RemoteEventReady RemoteEventKind = iota + 1
	// RemoteEventRoomDefinitionChanged announces that a room's
	// authorisation chain changed and should be re-synchronised.
	RemoteEventRoomDefinitionChanged
	// RemoteEventRoomDataChanged announces that one room has new data
	// available; carried one room at a time, unlike the local event bus's
	// DataChanged event, which can carry entries for many rooms at once.
	RemoteEventRoomDataChanged
)

// RemoteEvent is the one-way, unsolicited notification a peer sends
// without waiting for a QueryProtocol round trip.
type RemoteEvent struct {
	Kind   RemoteEventKind
	RoomID xcrypto.Uid // RoomDefinitionChanged, RoomDataChanged
}

// Ready builds a Ready event.
func Ready() RemoteEvent {
	return RemoteEvent{Kind: RemoteEventReady}
}

// RoomDefinitionChanged builds a RoomDefinitionChanged event.
func RoomDefinitionChanged(room xcrypto.Uid) RemoteEvent {
	return RemoteEvent{Kind: RemoteEventRoomDefinitionChanged, RoomID: room}
}

// RoomDataChanged builds a RoomDataChanged event for a single room.
func RoomDataChanged(room xcrypto.Uid) RemoteEvent {
	return RemoteEvent{Kind: RemoteEventRoomDataChanged, RoomID: room}
}

// Encode serialises e to its wire form.
func (e RemoteEvent) Encode() ([]byte, error) {
	enc := &encoder{}
	enc.byte(byte(e.Kind))
	switch e.Kind {
	case RemoteEventReady:
	case RemoteEventRoomDefinitionChanged, RemoteEventRoomDataChanged:
		enc.uid(e.RoomID)
	default:
		return nil, ErrUnknownQueryKind
	}
	return enc.bytes(), nil
}

// DecodeRemoteEvent parses data produced by RemoteEvent.Encode.
func DecodeRemoteEvent(data []byte) (RemoteEvent, error) {
	d := newDecoder(data)
	kindByte, err := d.byte()
	if err != nil {
		return RemoteEvent{}, err
	}
	var e RemoteEvent
	e.Kind = RemoteEventKind(kindByte)
	switch e.Kind {
	case RemoteEventReady:
	case RemoteEventRoomDefinitionChanged, RemoteEventRoomDataChanged:
		e.RoomID, err = d.uid()
	default:
		return RemoteEvent{}, ErrUnknownQueryKind
	}
	if err != nil {
		return RemoteEvent{}, err
	}
	if err := d.finish(); err != nil {
		return RemoteEvent{}, err
	}
	return e, nil
}
