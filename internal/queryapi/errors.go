package queryapi

import "errors"

// Errors surfaced across Mutate/Query/Delete/Invite, matching spec.md §7's
// error kinds at the facade boundary.
var (
	// ErrRoomUnknown is returned when Mutate or Invite names a room this
	// replica does not have.
	ErrRoomUnknown = errors.New("queryapi: room unknown")
	// ErrAuthorisation is returned when the caller's identity holds no
	// admin/mutate-self/mutate-all right over the targeted entity.
	ErrAuthorisation = errors.New("queryapi: not authorised")
	// ErrInviteExpired is returned by AcceptInvite for an invite whose
	// ExpiresAt has passed.
	ErrInviteExpired = errors.New("queryapi: invite expired")
	// ErrInviteSignature is returned by AcceptInvite when the invite's
	// signature does not verify under its claimed verifying key.
	ErrInviteSignature = errors.New("queryapi: invalid invite signature")
)
