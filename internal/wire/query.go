package wire

import (
	"errors"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// MaxFullNodesIDs is the largest id list a single FullNodes query may
// request in one round trip (§4.7).
const MaxFullNodesIDs = 128

// QueryKind tags which fields of a Query are populated.
type QueryKind byte

const (
	QueryProveIdentity QueryKind = iota + 1
	QueryRoomList
	QueryRoomDefinition
	QueryRoomNode
	QueryRoomLog
	QueryRoomDailyNodes
	QueryEdgeDeletionLog
	QueryNodeDeletionLog
	QueryFullNodes
)

// ErrTooManyIDs is returned by FullNodesQuery, Query.Encode and DecodeQuery
// for a FullNodes query whose id list exceeds MaxFullNodesIDs.
var ErrTooManyIDs = errors.New("wire: too many ids in FullNodes query")

// ErrUnknownQueryKind is returned when decoding a query tag this version
// does not recognise.
var ErrUnknownQueryKind = errors.New("wire: unknown query kind")

// Query is the read-only request a peer sends over a QueryProtocol
// envelope; only the fields relevant to Kind are populated.
type Query struct {
	Kind QueryKind

	Challenge []byte // ProveIdentity

	RoomID xcrypto.Uid // RoomDefinition, RoomNode, RoomLog, RoomDailyNodes, EdgeDeletionLog, NodeDeletionLog, FullNodes
	Date   int64       // RoomDailyNodes, EdgeDeletionLog, NodeDeletionLog
	IDs    []xcrypto.Uid // FullNodes
}

// ProveIdentityQuery builds a ProveIdentity query carrying a fresh
// challenge.
func ProveIdentityQuery(challenge []byte) Query {
	return Query{Kind: QueryProveIdentity, Challenge: challenge}
}

// RoomListQuery builds a RoomList query.
func RoomListQuery() Query {
	return Query{Kind: QueryRoomList}
}

// RoomDefinitionQuery builds a RoomDefinition query.
func RoomDefinitionQuery(room xcrypto.Uid) Query {
	return Query{Kind: QueryRoomDefinition, RoomID: room}
}

// RoomNodeQuery builds a RoomNode query.
func RoomNodeQuery(room xcrypto.Uid) Query {
	return Query{Kind: QueryRoomNode, RoomID: room}
}

// RoomLogQuery builds a RoomLog query.
func RoomLogQuery(room xcrypto.Uid) Query {
	return Query{Kind: QueryRoomLog, RoomID: room}
}

// RoomDailyNodesQuery builds a RoomDailyNodes query.
func RoomDailyNodesQuery(room xcrypto.Uid, date int64) Query {
	return Query{Kind: QueryRoomDailyNodes, RoomID: room, Date: date}
}

// EdgeDeletionLogQuery builds an EdgeDeletionLog query.
func EdgeDeletionLogQuery(room xcrypto.Uid, date int64) Query {
	return Query{Kind: QueryEdgeDeletionLog, RoomID: room, Date: date}
}

// NodeDeletionLogQuery builds a NodeDeletionLog query.
func NodeDeletionLogQuery(room xcrypto.Uid, date int64) Query {
	return Query{Kind: QueryNodeDeletionLog, RoomID: room, Date: date}
}

// FullNodesQuery builds a FullNodes query, rejecting more than
// MaxFullNodesIDs ids.
func FullNodesQuery(room xcrypto.Uid, ids []xcrypto.Uid) (Query, error) {
	if len(ids) > MaxFullNodesIDs {
		return Query{}, ErrTooManyIDs
	}
	return Query{Kind: QueryFullNodes, RoomID: room, IDs: ids}, nil
}

// Encode serialises q to its wire form.
func (q Query) Encode() ([]byte, error) {
	e := &encoder{}
	e.byte(byte(q.Kind))
	switch q.Kind {
	case QueryProveIdentity:
		e.bytesField(q.Challenge)
	case QueryRoomList:
	case QueryRoomDefinition, QueryRoomNode, QueryRoomLog:
		e.uid(q.RoomID)
	case QueryRoomDailyNodes, QueryEdgeDeletionLog, QueryNodeDeletionLog:
		e.uid(q.RoomID)
		e.int64(q.Date)
	case QueryFullNodes:
		if len(q.IDs) > MaxFullNodesIDs {
			return nil, ErrTooManyIDs
		}
		e.uid(q.RoomID)
		e.uids(q.IDs)
	default:
		return nil, ErrUnknownQueryKind
	}
	return e.bytes(), nil
}

// DecodeQuery parses data produced by Query.Encode.
func DecodeQuery(data []byte) (Query, error) {
	d := newDecoder(data)
	kindByte, err := d.byte()
	if err != nil {
		return Query{}, err
	}
	kind := QueryKind(kindByte)
	var q Query
	q.Kind = kind
	switch kind {
	case QueryProveIdentity:
		q.Challenge, err = d.bytesField()
	case QueryRoomList:
	case QueryRoomDefinition, QueryRoomNode, QueryRoomLog:
		q.RoomID, err = d.uid()
	case QueryRoomDailyNodes, QueryEdgeDeletionLog, QueryNodeDeletionLog:
		if q.RoomID, err = d.uid(); err != nil {
			break
		}
		q.Date, err = d.int64()
	case QueryFullNodes:
		if q.RoomID, err = d.uid(); err != nil {
			break
		}
		q.IDs, err = d.uids()
		if err == nil && len(q.IDs) > MaxFullNodesIDs {
			err = ErrTooManyIDs
		}
	default:
		return Query{}, ErrUnknownQueryKind
	}
	if err != nil {
		return Query{}, err
	}
	if err := d.finish(); err != nil {
		return Query{}, err
	}
	return q, nil
}
