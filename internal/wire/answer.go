package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// Answer is the response to a QueryProtocol request. Serialized holds the
// query-kind-specific payload (a RoomList, a RoomLog, a list of signed
// nodes, ...); callers decode it once they know what Query it answers.
type Answer struct {
	ID         uuid.UUID
	Success    bool
	Error      string
	Serialized []byte
}

// Ok builds a successful Answer carrying serialized.
func Ok(id uuid.UUID, serialized []byte) Answer {
	return Answer{ID: id, Success: true, Serialized: serialized}
}

// Failed builds an unsuccessful Answer carrying a human-readable reason.
func Failed(id uuid.UUID, reason string) Answer {
	return Answer{ID: id, Success: false, Error: reason}
}

// Encode serialises a to its wire form.
func (a Answer) Encode() ([]byte, error) {
	e := &encoder{}
	idBytes, err := a.ID.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("wire: marshal answer id: %w", err)
	}
	e.fixed(idBytes)
	e.bool(a.Success)
	e.stringField(a.Error)
	e.bytesField(a.Serialized)
	return e.bytes(), nil
}

// DecodeAnswer parses data produced by Answer.Encode.
func DecodeAnswer(data []byte) (Answer, error) {
	d := newDecoder(data)
	idBytes, err := d.fixed(16)
	if err != nil {
		return Answer{}, err
	}
	var a Answer
	if err := a.ID.UnmarshalBinary(idBytes); err != nil {
		return Answer{}, fmt.Errorf("wire: unmarshal answer id: %w", err)
	}
	if a.Success, err = d.boolean(); err != nil {
		return Answer{}, err
	}
	if a.Error, err = d.stringField(); err != nil {
		return Answer{}, err
	}
	if a.Serialized, err = d.bytesField(); err != nil {
		return Answer{}, err
	}
	if err := d.finish(); err != nil {
		return Answer{}, err
	}
	return a, nil
}
