package peer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ringdb/ringdb/internal/eventbus"
	"github.com/ringdb/ringdb/internal/roomlock"
	"github.com/ringdb/ringdb/internal/verifypool"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// CloseCode is the application-level reason a ConnectionService tears a
// connection down with (§4.9).
type CloseCode int

const (
	// CloseElection closes the losing side of a duplicate connection to
	// the same endpoint.
	CloseElection CloseCode = 1
	// CloseTechnical closes a connection that violated the protocol.
	CloseTechnical CloseCode = 2
)

// ConnectionInfo identifies one physical connection to a peer, before its
// identity has been cryptographically proven.
type ConnectionInfo struct {
	EndpointID   string
	ConnectionID string
	HardwareName string
	HardwareID   xcrypto.Uid
}

// Closer is whatever the transport hands the connection service so it can
// tear a duplicate or misbehaving connection down; internal/peer does not
// own the transport (out of scope per spec.md §1), so this is the minimal
// surface it needs back from it.
type Closer interface {
	io.Closer
}

type registeredPeer struct {
	info    ConnectionInfo
	conn    Closer
	session *Session
	cancel  context.CancelFunc
}

// ConnectionService multiplexes every connection to every peer, spawning a
// Session per connection, applying the duplicate-connection election
// policy, and keeping peer_map (verifying key -> hardware ids) up to date
// so PeerConnected/PeerDisconnected events reflect reality even when one
// identity runs several devices (§4.9).
type ConnectionService struct {
	mu sync.Mutex
	// byConnection indexes every currently-registered connection by its
	// EndpointID so a second connection to the same endpoint can be
	// detected and arbitrated.
	byConnection map[string]*registeredPeer
	// peerMap tracks every hardware id currently reachable under a given
	// verifying key, across however many devices that identity owns.
	peerMap map[string]map[xcrypto.Uid]struct{}

	store        Store
	signingKey   xcrypto.SigningKey
	lockService  *roomlock.Service
	bus          *eventbus.Bus
	verifyPool   *verifypool.Pool
	maxRowLength int
	log          *slog.Logger
}

// NewConnectionService builds a service wiring new peer connections into
// the local replica's store, room lock and verification pool. maxRowLength
// bounds the rows Reconciler will accept from a peer during day sync,
// matching the local replica's own max_object_size_in_kb.
func NewConnectionService(store Store, signingKey xcrypto.SigningKey, lockService *roomlock.Service, bus *eventbus.Bus, verifyPool *verifypool.Pool, maxRowLength int, log *slog.Logger) *ConnectionService {
	return &ConnectionService{
		byConnection: make(map[string]*registeredPeer),
		peerMap:      make(map[string]map[xcrypto.Uid]struct{}),
		store:        store,
		signingKey:   signingKey,
		lockService:  lockService,
		bus:          bus,
		verifyPool:   verifyPool,
		maxRowLength: maxRowLength,
		log:          log,
	}
}

// NewPeer registers a freshly-accepted connection. If another connection is
// already registered for the same EndpointID, the one with the
// lexicographically greater ConnectionID is closed with CloseElection and
// its Session (if already running) is left to exit on its own; the
// surviving connection's registration is untouched. Otherwise a Session is
// started in its own goroutine.
func (c *ConnectionService) NewPeer(ctx context.Context, info ConnectionInfo, conn io.ReadWriteCloser) {
	c.mu.Lock()
	if existing, ok := c.byConnection[info.EndpointID]; ok {
		loser := &registeredPeer{info: info, conn: conn}
		winner := existing
		if bytes.Compare([]byte(info.ConnectionID), []byte(existing.info.ConnectionID)) < 0 {
			winner, loser = loser, winner
		}
		c.mu.Unlock()
		c.close(loser, CloseElection)
		if loser == existing {
			// The previously-registered side lost; replace it with the
			// new connection below instead of starting a second Session
			// for the same endpoint.
			c.mu.Lock()
			delete(c.byConnection, info.EndpointID)
			c.mu.Unlock()
		} else {
			return
		}
	} else {
		c.mu.Unlock()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := NewSession(conn, info.HardwareID, c.store, c.signingKey, c.lockService, c.bus, c.verifyPool, c.maxRowLength, c.log)
	rp := &registeredPeer{info: info, conn: conn, session: session, cancel: cancel}

	c.mu.Lock()
	c.byConnection[info.EndpointID] = rp
	c.mu.Unlock()

	session.OnConnected(func(verifyingKey []byte, hardwareID xcrypto.Uid) {
		c.addPeerMapEntry(verifyingKey, hardwareID)
		c.bus.Publish(eventbus.PeerConnected(verifyingKey, time.Now().UnixMilli(), hardwareID))
	})
	session.OnDisconnected(func(verifyingKey []byte, hardwareID xcrypto.Uid) {
		c.removePeerMapEntry(verifyingKey, hardwareID)
		c.bus.Publish(eventbus.PeerDisconnected(verifyingKey, time.Now().UnixMilli(), hardwareID))
	})

	go func() {
		defer cancel()
		if err := session.Run(sessionCtx); err != nil {
			c.log.Warn("peer session ended", "endpoint", info.EndpointID, "err", err)
		}
		c.mu.Lock()
		if c.byConnection[info.EndpointID] == rp {
			delete(c.byConnection, info.EndpointID)
		}
		c.mu.Unlock()
	}()
}

// CloseProtocolViolation tears the connection registered for endpointID
// down with CloseTechnical,
// called by a Session (or its transport) when it detects a malformed frame
// or an unauthorised answer.
func (c *ConnectionService) CloseProtocolViolation(endpointID string) {
	c.mu.Lock()
	rp, ok := c.byConnection[endpointID]
	if ok {
		delete(c.byConnection, endpointID)
	}
	c.mu.Unlock()
	if ok {
		c.close(rp, CloseTechnical)
	}
}

func (c *ConnectionService) close(rp *registeredPeer, code CloseCode) {
	if rp.cancel != nil {
		rp.cancel()
	}
	_ = rp.conn.Close()
	c.log.Info("closed peer connection", "endpoint", rp.info.EndpointID, "code", code)
}

func (c *ConnectionService) addPeerMapEntry(verifyingKey []byte, hardwareID xcrypto.Uid) {
	key := string(verifyingKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.peerMap[key]
	if !ok {
		set = make(map[xcrypto.Uid]struct{})
		c.peerMap[key] = set
	}
	set[hardwareID] = struct{}{}
}

func (c *ConnectionService) removePeerMapEntry(verifyingKey []byte, hardwareID xcrypto.Uid) {
	key := string(verifyingKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.peerMap[key]
	if !ok {
		return
	}
	delete(set, hardwareID)
	if len(set) == 0 {
		delete(c.peerMap, key)
	}
}

// Devices returns the hardware ids currently reachable for verifyingKey.
func (c *ConnectionService) Devices(verifyingKey []byte) []xcrypto.Uid {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.peerMap[string(verifyingKey)]
	out := make([]xcrypto.Uid, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
