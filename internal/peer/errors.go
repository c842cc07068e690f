package peer

import "errors"

// ErrAuthorisation is returned to a remote query for a room the requesting
// peer's verifying key has not been granted access to.
var ErrAuthorisation = errors.New("peer: not authorised for this room")

// ErrRemoteTechnical is the generic failure sent back to a peer in place of
// an internal error's details.
var ErrRemoteTechnical = errors.New("peer: remote technical error")

// ErrRoomUnknown is returned when a reconcile pass asks a peer for a room it
// turns out not to have.
var ErrRoomUnknown = errors.New("peer: remote peer has no such room")

// ErrTimeout is returned when a query goes unanswered within NetworkTimeout.
var ErrTimeout = errors.New("peer: query timed out")

// ErrClosed is returned by Query/SendEvent once the session has shut down.
var ErrClosed = errors.New("peer: session closed")
