package peer

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ringdb/ringdb/internal/eventbus"
	"github.com/ringdb/ringdb/internal/roomlock"
	"github.com/ringdb/ringdb/internal/verifypool"
	"github.com/ringdb/ringdb/internal/wire"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// ChallengeSize is the length in bytes of the random challenge sent in a
// ProveIdentity query (§4.9 "generate a 32-byte random challenge").
const ChallengeSize = 32

// lockReplyBuffer bounds how many room grants a session's RequestLocks call
// can have outstanding; roomlock.Service's reply channel must never block,
// so this must be at least as large as the biggest single request list
// (a full RoomList can legitimately exceed it, so the buffer is generous
// rather than exact).
const lockReplyBuffer = 256

// Session drives one connected peer end-to-end: proving identity, fanning
// out inbound queries to a RemoteHandler, driving a Reconciler whenever the
// room lock service grants a room, and relaying local/remote events to keep
// both sides' room sets in sync (§4.7-§4.9).
type Session struct {
	conn       io.ReadWriteCloser
	hardwareID xcrypto.Uid
	circuit    roomlock.CircuitID

	store       Store
	signingKey  xcrypto.SigningKey
	lockService *roomlock.Service
	bus         *eventbus.Bus
	verifyPool  *verifypool.Pool

	driver  *Driver
	remote  *RemoteHandler
	reconciler *Reconciler

	writeMu sync.Mutex

	remoteRooms map[xcrypto.Uid]struct{}
	peerKey     []byte

	onConnected    func(verifyingKey []byte, hardwareID xcrypto.Uid)
	onDisconnected func(verifyingKey []byte, hardwareID xcrypto.Uid)

	log *slog.Logger
}

// NewSession wires a Session around an already-established connection.
// maxRowLength bounds the rows Reconciler will accept from this peer.
func NewSession(conn io.ReadWriteCloser, hardwareID xcrypto.Uid, store Store, signingKey xcrypto.SigningKey, lockService *roomlock.Service, bus *eventbus.Bus, verifyPool *verifypool.Pool, maxRowLength int, log *slog.Logger) *Session {
	s := &Session{
		conn:        conn,
		hardwareID:  hardwareID,
		store:       store,
		signingKey:  signingKey,
		lockService: lockService,
		bus:         bus,
		verifyPool:  verifyPool,
		remoteRooms: make(map[xcrypto.Uid]struct{}),
		log:         log,
	}
	copy(s.circuit[:], hardwareID[:])
	s.remote = NewRemoteHandler(store, signingKey)
	s.driver = NewDriver(s.writeQuery)
	s.reconciler = NewReconciler(s.driver, store, verifyPool, maxRowLength, log)
	return s
}

// OnConnected/OnDisconnected register the callbacks Run invokes once
// identity is proven and once the session ends, letting the owning
// ConnectionService track which verifying keys are currently reachable.
func (s *Session) OnConnected(fn func(verifyingKey []byte, hardwareID xcrypto.Uid))    { s.onConnected = fn }
func (s *Session) OnDisconnected(fn func(verifyingKey []byte, hardwareID xcrypto.Uid)) { s.onDisconnected = fn }

func (s *Session) writeEnvelope(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.conn, data)
}

func (s *Session) writeQuery(p wire.QueryProtocol) error {
	data, err := wire.EncodeQueryEnvelope(p)
	if err != nil {
		return err
	}
	return s.writeEnvelope(data)
}

func (s *Session) writeAnswer(a wire.Answer) error {
	data, err := wire.EncodeAnswerEnvelope(a)
	if err != nil {
		return err
	}
	return s.writeEnvelope(data)
}

func (s *Session) sendEvent(ctx context.Context, e wire.RemoteEvent) error {
	data, err := wire.EncodeEventEnvelope(e)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- s.writeEnvelope(data) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Run proves identity with the connected peer, then services the
// connection until it closes or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan wire.RemoteEvent, 16)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, events, readErr)

	challenge := make([]byte, ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("peer: generate challenge: %w", err)
	}

	proveCtx, proveCancel := context.WithTimeout(ctx, NetworkTimeout)
	answer, err := s.driver.Query(proveCtx, wire.ProveIdentityQuery(challenge))
	proveCancel()
	if err != nil {
		return fmt.Errorf("peer: prove identity: %w", err)
	}
	if !answer.Success {
		return fmt.Errorf("peer: remote refused identity proof: %s", answer.Error)
	}
	var proof proveIdentityPayload
	if err := decodePayload(answer.Serialized, &proof); err != nil {
		return err
	}
	valid, err := s.verifyPool.VerifyHash(ctx, proof.ChallengeSigned, xcrypto.Hash(challenge), proof.VerifyingKey)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("peer: invalid identity signature")
	}
	s.peerKey = proof.VerifyingKey
	s.remote.setPeerKey(proof.VerifyingKey)

	if err := s.sendEvent(ctx, wire.Ready()); err != nil {
		return err
	}
	if s.onConnected != nil {
		s.onConnected(s.peerKey, s.hardwareID)
	}
	defer func() {
		if s.onDisconnected != nil {
			s.onDisconnected(s.peerKey, s.hardwareID)
		}
	}()

	localEvents := s.bus.Subscribe()
	defer s.bus.Unsubscribe(localEvents)

	lockGrants := make(chan xcrypto.Uid, lockReplyBuffer)
	acquired := make(map[xcrypto.Uid]struct{})
	defer s.releaseAll(acquired)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case e := <-events:
			if err := s.handleRemoteEvent(e, lockGrants); err != nil {
				return err
			}
		case ev := <-localEvents:
			s.handleLocalEvent(ctx, ev)
		case room := <-lockGrants:
			acquired[room] = struct{}{}
			s.synchroniseAndUnlock(ctx, room)
			delete(acquired, room)
		}
	}
}

func (s *Session) releaseAll(acquired map[xcrypto.Uid]struct{}) {
	for room := range acquired {
		s.lockService.Unlock(room)
	}
	s.driver.Close()
	_ = s.conn.Close()
}

func (s *Session) synchroniseAndUnlock(ctx context.Context, roomID xcrypto.Uid) {
	err := s.reconciler.SynchroniseRoom(ctx, roomID)
	s.lockService.Unlock(roomID)
	if err != nil {
		if s.log != nil {
			s.log.Error("room synchronisation failed", "room", roomID.String(), "error", err)
		}
		return
	}
	s.bus.Publish(eventbus.RoomSynchronized(roomID))
}

func (s *Session) handleRemoteEvent(e wire.RemoteEvent, lockGrants chan<- xcrypto.Uid) error {
	switch e.Kind {
	case wire.RemoteEventReady:
		ctx, cancel := context.WithTimeout(context.Background(), NetworkTimeout)
		defer cancel()
		var list roomListPayload
		if err := s.query(ctx, wire.RoomListQuery(), &list); err != nil {
			return err
		}
		for _, r := range list.Rooms {
			s.remoteRooms[r] = struct{}{}
		}
		s.lockService.RequestLocks(s.circuit, list.Rooms, lockGrants)
	case wire.RemoteEventRoomDefinitionChanged, wire.RemoteEventRoomDataChanged:
		s.remoteRooms[e.RoomID] = struct{}{}
		s.lockService.RequestLocks(s.circuit, []xcrypto.Uid{e.RoomID}, lockGrants)
	}
	return nil
}

func (s *Session) query(ctx context.Context, q wire.Query, out any) error {
	answer, err := s.driver.Query(ctx, q)
	if err != nil {
		return err
	}
	if !answer.Success {
		return fmt.Errorf("peer: query failed: %s", answer.Error)
	}
	return decodePayload(answer.Serialized, out)
}

func (s *Session) handleLocalEvent(ctx context.Context, e eventbus.Event) {
	switch e.Kind {
	case eventbus.KindRoomModified:
		if e.Room == nil || !e.Room.HasUser(xcrypto.Base64Encode(s.peerKey)) {
			return
		}
		_ = s.sendEventBestEffort(ctx, wire.RoomDefinitionChanged(e.Room.ID))
	case eventbus.KindDataChanged:
		for _, l := range e.DailyLog {
			if _, ok := s.remoteRooms[l.RoomID]; ok {
				_ = s.sendEventBestEffort(ctx, wire.RoomDataChanged(l.RoomID))
			}
		}
	}
}

func (s *Session) sendEventBestEffort(ctx context.Context, e wire.RemoteEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, NetworkTimeout)
	defer cancel()
	return s.sendEvent(sendCtx, e)
}

func (s *Session) readLoop(ctx context.Context, events chan<- wire.RemoteEvent, errs chan<- error) {
	for {
		frame, err := wire.ReadFrame(s.conn)
		if err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
			return
		}
		env, err := wire.DecodeEnvelope(frame)
		if err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
			return
		}
		switch env.Kind {
		case wire.EnvelopeQuery:
			q, err := wire.DecodeQueryProtocol(env.Payload)
			if err != nil {
				continue
			}
			go s.answerQuery(ctx, q)
		case wire.EnvelopeAnswer:
			a, err := wire.DecodeAnswer(env.Payload)
			if err != nil {
				continue
			}
			s.driver.DeliverAnswer(a)
		case wire.EnvelopeEvent:
			e, err := wire.DecodeRemoteEvent(env.Payload)
			if err != nil {
				continue
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Session) answerQuery(ctx context.Context, q wire.QueryProtocol) {
	answer := s.remote.Handle(ctx, q)
	if err := s.writeAnswer(answer); err != nil && s.log != nil {
		s.log.Error("failed to reply to peer query", "error", err)
	}
}
