package peer

import (
	"context"
	"sync"

	"github.com/ringdb/ringdb/internal/wire"
)

// Driver pairs every outbound Query with the Answer a peer eventually sends
// back, by request id. It owns no network connection itself; Session wires
// its Send function to write frames and feeds inbound answers back in via
// DeliverAnswer. This lets context cancellation (connection close, caller
// timeout) cancel an in-flight query without the rest of the session
// needing its own knowledge of outstanding requests.
type Driver struct {
	send func(wire.QueryProtocol) error

	mu      sync.Mutex
	pending map[[16]byte]chan wire.Answer
	closed  bool
}

// NewDriver returns a Driver that writes outbound QueryProtocol frames via
// send.
func NewDriver(send func(wire.QueryProtocol) error) *Driver {
	return &Driver{
		send:    send,
		pending: make(map[[16]byte]chan wire.Answer),
	}
}

// Query sends q and blocks until its Answer arrives, ctx is done, or the
// driver is closed.
func (d *Driver) Query(ctx context.Context, q wire.Query) (wire.Answer, error) {
	protocol := wire.NewQueryProtocol(q)
	reply := make(chan wire.Answer, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return wire.Answer{}, ErrClosed
	}
	d.pending[protocol.ID] = reply
	d.mu.Unlock()

	if err := d.send(protocol); err != nil {
		d.mu.Lock()
		delete(d.pending, protocol.ID)
		d.mu.Unlock()
		return wire.Answer{}, err
	}

	select {
	case a, ok := <-reply:
		if !ok {
			return wire.Answer{}, ErrClosed
		}
		return a, nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, protocol.ID)
		d.mu.Unlock()
		return wire.Answer{}, ErrTimeout
	}
}

// DeliverAnswer routes an inbound Answer to the Query call awaiting it, if
// any is still pending.
func (d *Driver) DeliverAnswer(a wire.Answer) {
	d.mu.Lock()
	reply, ok := d.pending[a.ID]
	if ok {
		delete(d.pending, a.ID)
	}
	d.mu.Unlock()
	if ok {
		reply <- a
	}
}

// Close fails every Query call still waiting for an answer and rejects any
// further call.
func (d *Driver) Close() {
	d.mu.Lock()
	d.closed = true
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, reply := range pending {
		close(reply)
	}
}
