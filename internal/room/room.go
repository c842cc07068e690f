// Package room implements the room & authorisation engine (§4.2): who may
// join a room, and who may mutate which entities, re-validated at any point
// in time rather than only "now".
package room

import (
	"errors"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Right is one of the two mutation rights an Authorisation can grant.
type Right int

const (
	// RightMutateSelf allows a user to mutate only entities they authored.
	RightMutateSelf Right = iota
	// RightMutateAll allows a user to mutate any entity of the given type.
	RightMutateAll
)

var (
	// ErrInvalidUserDate is returned when a UserEntry is appended with a
	// date older than the last entry for that user, which would break the
	// append-only, monotone history the room relies on.
	ErrInvalidUserDate = errors.New("room: user entry date is not monotonically increasing")
	// ErrInvalidRightDate is returned for the same reason on EntityRight.
	ErrInvalidRightDate = errors.New("room: right valid_from is not monotonically increasing")
	// ErrAuthorisationExists is returned by AddAuthorisation when the id is
	// already present.
	ErrAuthorisationExists = errors.New("room: authorisation already exists")
	// ErrAuthorisationNotFound is returned when looking up an authorisation
	// that does not exist.
	ErrAuthorisationNotFound = errors.New("room: authorisation not found")
)

// UserEntry is one append-only history point of a user's standing (room
// admin, user-admin, or authorisation member): as of Date, the user is
// Enabled or not.
type UserEntry struct {
	VerifyingKey string // base64 of the Ed25519 verifying key, used as the map key
	Date         int64
	Enabled      bool
}

// Room is the system entity that owns a room's membership: its admins, its
// user-admins (who may add/remove ordinary users but not other admins), and
// the set of Authorisations that grant entity-level rights.
type Room struct {
	ID             xcrypto.Uid
	MDate          int64
	Admins         map[string][]UserEntry
	UserAdmins     map[string][]UserEntry
	Authorisations map[xcrypto.Uid]*Authorisation
}

// NewRoom returns an empty Room ready to have its first admin added.
func NewRoom(id xcrypto.Uid) *Room {
	return &Room{
		ID:             id,
		Admins:         make(map[string][]UserEntry),
		UserAdmins:     make(map[string][]UserEntry),
		Authorisations: make(map[xcrypto.Uid]*Authorisation),
	}
}

// AddAuthorisation registers a new Authorisation, failing if its id is
// already in use.
func (r *Room) AddAuthorisation(auth *Authorisation) error {
	if _, exists := r.Authorisations[auth.ID]; exists {
		return ErrAuthorisationExists
	}
	r.Authorisations[auth.ID] = auth
	return nil
}

// GetAuthorisation returns the Authorisation with the given id.
func (r *Room) GetAuthorisation(id xcrypto.Uid) (*Authorisation, error) {
	auth, ok := r.Authorisations[id]
	if !ok {
		return nil, ErrAuthorisationNotFound
	}
	return auth, nil
}

func appendUserEntry(entries []UserEntry, entry UserEntry) ([]UserEntry, error) {
	if len(entries) > 0 && entry.Date < entries[len(entries)-1].Date {
		return entries, ErrInvalidUserDate
	}
	return append(entries, entry), nil
}

// AddAdmin appends a standing entry for user to the room's admin history.
func (r *Room) AddAdmin(verifyingKey string, date int64, enabled bool) error {
	entries, err := appendUserEntry(r.Admins[verifyingKey], UserEntry{VerifyingKey: verifyingKey, Date: date, Enabled: enabled})
	if err != nil {
		return err
	}
	r.Admins[verifyingKey] = entries
	return nil
}

// AddUserAdmin appends a standing entry for user to the room's user-admin
// history.
func (r *Room) AddUserAdmin(verifyingKey string, date int64, enabled bool) error {
	entries, err := appendUserEntry(r.UserAdmins[verifyingKey], UserEntry{VerifyingKey: verifyingKey, Date: date, Enabled: enabled})
	if err != nil {
		return err
	}
	r.UserAdmins[verifyingKey] = entries
	return nil
}

// validAt returns the latest entry at or before at, or false if none exists
// or the latest entry found is disabled.
func validAt(entries []UserEntry, at int64) bool {
	var latest *UserEntry
	for i := range entries {
		e := &entries[i]
		if e.Date > at {
			continue
		}
		if latest == nil || e.Date >= latest.Date {
			latest = e
		}
	}
	return latest != nil && latest.Enabled
}

// IsAdmin reports whether verifyingKey was an enabled room admin at time at.
func (r *Room) IsAdmin(verifyingKey string, at int64) bool {
	return validAt(r.Admins[verifyingKey], at)
}

// IsUserAdmin reports whether verifyingKey was an enabled user-admin at at.
func (r *Room) IsUserAdmin(verifyingKey string, at int64) bool {
	return validAt(r.UserAdmins[verifyingKey], at)
}

// HasUser reports whether verifyingKey appears anywhere in the room: as an
// admin, a user-admin, or a member of any authorisation, regardless of
// enabled state or time.
func (r *Room) HasUser(verifyingKey string) bool {
	if _, ok := r.Admins[verifyingKey]; ok {
		return true
	}
	if _, ok := r.UserAdmins[verifyingKey]; ok {
		return true
	}
	for _, auth := range r.Authorisations {
		if auth.HasUser(verifyingKey) {
			return true
		}
	}
	return false
}

// IsUserValidAt reports whether verifyingKey is a recognised, enabled user
// of the room at time at: an admin, a user-admin, or a member of any
// authorisation. Admins and user-admins are implicitly valid room users even
// absent a matching Authorisation entry, matching the original's behaviour.
func (r *Room) IsUserValidAt(verifyingKey string, at int64) bool {
	if r.IsAdmin(verifyingKey, at) {
		return true
	}
	if r.IsUserAdmin(verifyingKey, at) {
		return true
	}
	for _, auth := range r.Authorisations {
		if auth.IsUserValidAt(verifyingKey, at) {
			return true
		}
	}
	return false
}

// Can reports whether verifyingKey may perform right on entity at time at:
// it must be a valid user of some authorisation that also grants right on
// entity at that time.
func (r *Room) Can(verifyingKey string, entity string, at int64, right Right) bool {
	for _, auth := range r.Authorisations {
		if !auth.IsUserValidAt(verifyingKey, at) {
			continue
		}
		if auth.Can(entity, at, right) {
			return true
		}
	}
	return false
}
