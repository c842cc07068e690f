package wire

import "fmt"

// EnvelopeKind tags which of the three message families a frame carries.
// The original design dedicated a separate channel per family; here all
// three share one connection, so every frame is tagged before it is framed.
type EnvelopeKind byte

const (
	EnvelopeQuery EnvelopeKind = iota + 1
	EnvelopeAnswer
	EnvelopeEvent
)

// Envelope is the outermost frame payload exchanged between two connected
// peers: a QueryProtocol request, an Answer reply, or a RemoteEvent
// notification, distinguished by Kind.
type Envelope struct {
	Kind    EnvelopeKind
	Payload []byte
}

// EncodeQueryEnvelope wraps a QueryProtocol for transmission.
func EncodeQueryEnvelope(p QueryProtocol) ([]byte, error) {
	payload, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(EnvelopeQuery, payload)
}

// EncodeAnswerEnvelope wraps an Answer for transmission.
func EncodeAnswerEnvelope(a Answer) ([]byte, error) {
	payload, err := a.Encode()
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(EnvelopeAnswer, payload)
}

// EncodeEventEnvelope wraps a RemoteEvent for transmission.
func EncodeEventEnvelope(e RemoteEvent) ([]byte, error) {
	payload, err := e.Encode()
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(EnvelopeEvent, payload)
}

func encodeEnvelope(kind EnvelopeKind, payload []byte) ([]byte, error) {
	e := &encoder{}
	e.byte(byte(kind))
	e.fixed(payload)
	return e.bytes(), nil
}

// DecodeEnvelope reads the kind tag and returns the remaining bytes
// unparsed; the caller dispatches to DecodeQueryProtocol, DecodeAnswer or
// DecodeRemoteEvent based on Kind.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < 1 {
		return Envelope{}, fmt.Errorf("wire: empty envelope")
	}
	return Envelope{Kind: EnvelopeKind(data[0]), Payload: data[1:]}, nil
}
