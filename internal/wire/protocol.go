package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// QueryProtocol wraps a Query with the request id its Answer must echo,
// letting a peer pipeline several outstanding queries over one connection.
type QueryProtocol struct {
	ID    uuid.UUID
	Query Query
}

// NewQueryProtocol assigns a fresh request id to q.
func NewQueryProtocol(q Query) QueryProtocol {
	return QueryProtocol{ID: uuid.New(), Query: q}
}

// Encode serialises p to its wire form.
func (p QueryProtocol) Encode() ([]byte, error) {
	idBytes, err := p.ID.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("wire: marshal query protocol id: %w", err)
	}
	queryBytes, err := p.Query.Encode()
	if err != nil {
		return nil, err
	}
	e := &encoder{}
	e.fixed(idBytes)
	e.bytesField(queryBytes)
	return e.bytes(), nil
}

// DecodeQueryProtocol parses data produced by QueryProtocol.Encode.
func DecodeQueryProtocol(data []byte) (QueryProtocol, error) {
	d := newDecoder(data)
	idBytes, err := d.fixed(16)
	if err != nil {
		return QueryProtocol{}, err
	}
	var p QueryProtocol
	if err := p.ID.UnmarshalBinary(idBytes); err != nil {
		return QueryProtocol{}, fmt.Errorf("wire: unmarshal query protocol id: %w", err)
	}
	queryBytes, err := d.bytesField()
	if err != nil {
		return QueryProtocol{}, err
	}
	if err := d.finish(); err != nil {
		return QueryProtocol{}, err
	}
	if p.Query, err = DecodeQuery(queryBytes); err != nil {
		return QueryProtocol{}, err
	}
	return p, nil
}
