// Package roomlock serialises room synchronisation so at most one peer
// connection at a time drives anti-entropy for a given room, and so the
// number of rooms being synchronised concurrently never exceeds a fixed
// budget (§5 room-locked peer sync). All state lives in a single goroutine
// acting as the lock owner; every request is a message on its inbox, so the
// lock table itself never needs a mutex.
package roomlock

import (
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// lockChannelSize bounds how many requests, from all circuits together, can
// queue behind the actor before RequestLocks/Unlock start to block the caller.
const lockChannelSize = 2

// CircuitID identifies the peer connection asking for locks, so repeated
// requests from the same connection merge into one pending entry instead of
// competing with each other.
type CircuitID [32]byte

type lockRequestMsg struct {
	circuit CircuitID
	rooms   []xcrypto.Uid
	reply   chan<- xcrypto.Uid
}

type unlockMsg struct {
	room xcrypto.Uid
}

type pendingRequest struct {
	rooms deque[xcrypto.Uid]
	reply chan<- xcrypto.Uid
}

// Service hands out room locks to at most maxLocks rooms at a time, fairly
// across requesting circuits.
type Service struct {
	msgs chan any
}

// Start launches the lock actor, allowing up to maxLocks rooms to be locked
// simultaneously.
func Start(maxLocks int) *Service {
	s := &Service{msgs: make(chan any, lockChannelSize)}
	go s.run(maxLocks)
	return s
}

// RequestLocks asks for a lock on each room in rooms, one at a time. Each
// room granted is sent on reply as soon as it becomes available; the caller
// must read reply and eventually call Unlock for every room it receives.
// reply must never block on send: the actor that grants locks runs in a
// single goroutine shared by every circuit, so a slow or unbuffered reply
// channel stalls every other peer's lock requests too. A buffer at least as
// large as len(rooms) is sufficient.
//
// Calling RequestLocks again for the same circuit before it has drained a
// previous call merges the new rooms into the existing request and rebinds
// reply to the latest channel, so a peer can keep extending its queue of
// wanted rooms without losing its place in line.
func (s *Service) RequestLocks(circuit CircuitID, rooms []xcrypto.Uid, reply chan<- xcrypto.Uid) {
	cp := make([]xcrypto.Uid, len(rooms))
	copy(cp, rooms)
	s.msgs <- lockRequestMsg{circuit: circuit, rooms: cp, reply: reply}
}

// Unlock releases a room lock previously granted, making room available to
// the next queued circuit.
func (s *Service) Unlock(room xcrypto.Uid) {
	s.msgs <- unlockMsg{room: room}
}

func (s *Service) run(maxLocks int) {
	requests := make(map[CircuitID]*pendingRequest)
	var peerQueue deque[CircuitID]
	locked := make(map[xcrypto.Uid]struct{})
	available := maxLocks

	for raw := range s.msgs {
		switch msg := raw.(type) {
		case lockRequestMsg:
			if req, ok := requests[msg.circuit]; ok {
				req.reply = msg.reply
				for _, room := range msg.rooms {
					if !req.rooms.Contains(room) {
						req.rooms.PushBack(room)
					}
				}
			} else {
				req := &pendingRequest{reply: msg.reply}
				for _, room := range msg.rooms {
					req.rooms.PushBack(room)
				}
				requests[msg.circuit] = req
				peerQueue.PushFront(msg.circuit)
			}
			availIter := available
			for i := 0; i < availIter; i++ {
				acquireLock(requests, &peerQueue, locked, &available)
			}
		case unlockMsg:
			if _, ok := locked[msg.room]; ok {
				delete(locked, msg.room)
				available++
				acquireLock(requests, &peerQueue, locked, &available)
			}
		}
	}
}

// acquireLock tries to grant at most one room lock, to the oldest circuit
// in peerQueue that still has an unlocked room left to offer. A circuit
// whose every remaining room turns out already locked is skipped this round
// but kept in the queue (demoted to the front, so strictly newer circuits
// go before it next time).
func acquireLock(requests map[CircuitID]*pendingRequest, peerQueue *deque[CircuitID], locked map[xcrypto.Uid]struct{}, available *int) {
	iterations := peerQueue.Len()
	for i := 0; i < iterations; i++ {
		peer, ok := peerQueue.PopBack()
		if !ok {
			break
		}
		req, ok := requests[peer]
		if !ok {
			continue
		}
		delete(requests, peer)

		lockAcquired := false
		roomIterations := req.rooms.Len()
		for j := 0; j < roomIterations; j++ {
			room, ok := req.rooms.PopBack()
			if !ok {
				break
			}
			if _, isLocked := locked[room]; isLocked {
				req.rooms.PushFront(room)
				continue
			}
			if trySend(req.reply, room) {
				locked[room] = struct{}{}
				*available--
				lockAcquired = true
				break
			}
		}

		if req.rooms.Len() > 0 {
			requests[peer] = req
			peerQueue.PushFront(peer)
		}
		if lockAcquired {
			break
		}
	}
}

func trySend(reply chan<- xcrypto.Uid, room xcrypto.Uid) bool {
	select {
	case reply <- room:
		return true
	default:
		return false
	}
}
