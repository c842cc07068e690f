package queryapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ringdb/ringdb/internal/dailylog"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// inviteTTL bounds how long an issued invite remains acceptable.
const inviteTTL = 24 * time.Hour

// systemEntityAllowedPeer and systemEntityOwnedInvite are the system
// entities the invite/accept-invite flow persists, excluded from the daily hash like
// every other system entity (§3.6, SPEC_FULL.md §D "Invite / accept-invite").
const (
	systemEntityAllowedPeer = "sys.AllowedPeer"
	systemEntityOwnedInvite = "sys.OwnedInvite"
)

// Invite is the signed, self-contained payload `invite` produces and
// `accept_invite` consumes: proof that the inviter, as of IssuedAt, grants
// the bearer membership in Room under Authorisation, plus the ephemeral
// X25519 public key the bearer diffie-hellmans against to derive the
// meeting token the beacon/multicast transport (out of scope) uses to find
// the inviter.
type Invite struct {
	RoomID              xcrypto.Uid
	AuthorisationID     xcrypto.Uid
	InviterVerifyingKey []byte
	MeetingPublicKey    []byte
	IssuedAt            int64
	ExpiresAt           int64
	Signature           []byte
}

func (inv *Invite) signingBytes() []byte {
	var buf []byte
	buf = append(buf, inv.RoomID[:]...)
	buf = append(buf, inv.AuthorisationID[:]...)
	buf = append(buf, inv.InviterVerifyingKey...)
	buf = append(buf, inv.MeetingPublicKey...)
	issued := make([]byte, 8)
	expires := make([]byte, 8)
	putInt64(issued, inv.IssuedAt)
	putInt64(expires, inv.ExpiresAt)
	buf = append(buf, issued...)
	buf = append(buf, expires...)
	return buf
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// pendingInvites holds the ephemeral MeetingSecret for every invite this
// replica has issued and not yet seen consumed, keyed by the invite's
// meeting public key; a real transport would use it to recognise the
// invitee's beacon announce (out of scope per spec.md §1).
var pendingInvites sync.Map // map[string]xcrypto.MeetingSecret

// Invite issues a signed invite for defaultRoom (§6 `invite(default_room)
// -> bytes`). If the room has at least one Authorisation, the first one
// (in map iteration order, since Go maps have none; callers needing a
// specific authorisation should use AuthorisationID directly once issued)
// is offered to the invitee; otherwise AuthorisationID is the zero Uid,
// granting room membership with no entity rights.
func (h *Handle) Invite(ctx context.Context, defaultRoom xcrypto.Uid) ([]byte, error) {
	r, err := h.replicaSt.Room(ctx, defaultRoom)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomUnknown, defaultRoom)
	}

	var authID xcrypto.Uid
	for id := range r.Authorisations {
		authID = id
		break
	}

	secret, err := xcrypto.NewMeetingSecret()
	if err != nil {
		return nil, err
	}
	pub, err := secret.PublicKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	inv := &Invite{
		RoomID:              defaultRoom,
		AuthorisationID:     authID,
		InviterVerifyingKey: h.signingKey.VerifyingKey().Export(),
		MeetingPublicKey:    pub,
		IssuedAt:            now,
		ExpiresAt:           now + inviteTTL.Milliseconds(),
	}
	inv.Signature = h.signingKey.Sign(inv.signingBytes())

	pendingInvites.Store(string(pub), secret)

	if err := h.recordOwnedInvite(ctx, inv); err != nil {
		return nil, err
	}

	return json.Marshal(inv)
}

// recordOwnedInvite persists a sys.OwnedInvite node so the inviter's own
// replica remembers every invite it has issued, matching the original's
// sys.OwnedInvite bookkeeping (SPEC_FULL.md §D).
func (h *Handle) recordOwnedInvite(ctx context.Context, inv *Invite) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	id, err := xcrypto.NewUid()
	if err != nil {
		return err
	}
	node := &graph.Node{
		ID: id, RoomID: inv.RoomID, CDate: inv.IssuedAt, MDate: inv.IssuedAt,
		Entity: systemEntityOwnedInvite, JSONData: string(data),
	}
	tx, err := h.graphStore.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := h.graphStore.SignAndWriteNode(ctx, tx, node, h.signingKey, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AcceptInvite verifies an invite produced by Invite and, on success,
// records the inviter as an allowed peer for the invited room and
// associated authorisation (§6 `accept_invite(bytes)`). The room
// definition itself is fetched from the inviter during the first reconcile
// once the transport (out of scope) connects the two replicas using the
// derived meeting token.
func (h *Handle) AcceptInvite(ctx context.Context, data []byte) error {
	var inv Invite
	if err := json.Unmarshal(data, &inv); err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}

	now := time.Now().UnixMilli()
	if now > inv.ExpiresAt {
		return ErrInviteExpired
	}
	vk, err := xcrypto.ImportVerifyingKey(inv.InviterVerifyingKey)
	if err != nil {
		return err
	}
	if err := vk.Verify(inv.signingBytes(), inv.Signature); err != nil {
		return ErrInviteSignature
	}

	allowed := map[string]any{
		"inviter_verifying_key": xcrypto.Base64Encode(inv.InviterVerifyingKey),
		"authorisation_id":      inv.AuthorisationID.String(),
		"accepted_at":           now,
	}
	data2, err := json.Marshal(allowed)
	if err != nil {
		return err
	}
	id, err := xcrypto.NewUid()
	if err != nil {
		return err
	}
	node := &graph.Node{
		ID: id, RoomID: inv.RoomID, CDate: now, MDate: now,
		Entity: systemEntityAllowedPeer, JSONData: string(data2),
	}

	tx, err := h.graphStore.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	recorder := dailylog.NewMutations()
	if err := h.graphStore.SignAndWriteNode(ctx, tx, node, h.signingKey, recorder); err != nil {
		return err
	}
	if err := recorder.Flush(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
