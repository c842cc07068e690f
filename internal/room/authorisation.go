package room

import "github.com/ringdb/ringdb/internal/xcrypto"

// EntityRight is one append-only history point of the rights granted for a
// single entity type: as of ValidFrom, MutateSelf/MutateAll hold.
type EntityRight struct {
	ValidFrom  int64
	Entity     string
	MutateSelf bool
	MutateAll  bool
}

// Authorisation binds a set of users to a set of per-entity rights. Both
// the membership list and the rights list are append-only logs, so a past
// mutation can always be re-validated against the standing that applied at
// the time it was made.
type Authorisation struct {
	ID     xcrypto.Uid
	MDate  int64
	Users  map[string][]UserEntry
	Rights map[string][]EntityRight
}

// NewAuthorisation returns an empty Authorisation.
func NewAuthorisation(id xcrypto.Uid) *Authorisation {
	return &Authorisation{
		ID:     id,
		Users:  make(map[string][]UserEntry),
		Rights: make(map[string][]EntityRight),
	}
}

// AddUser appends a standing entry for verifyingKey, rejecting dates older
// than the user's last entry.
func (a *Authorisation) AddUser(verifyingKey string, date int64, enabled bool) error {
	entries, err := appendUserEntry(a.Users[verifyingKey], UserEntry{VerifyingKey: verifyingKey, Date: date, Enabled: enabled})
	if err != nil {
		return err
	}
	a.Users[verifyingKey] = entries
	return nil
}

// AddRight appends a right entry for entity, rejecting valid_from values
// older than the entity's last entry.
func (a *Authorisation) AddRight(entity string, validFrom int64, mutateSelf, mutateAll bool) error {
	entries := a.Rights[entity]
	if len(entries) > 0 && validFrom < entries[len(entries)-1].ValidFrom {
		return ErrInvalidRightDate
	}
	a.Rights[entity] = append(entries, EntityRight{ValidFrom: validFrom, Entity: entity, MutateSelf: mutateSelf, MutateAll: mutateAll})
	return nil
}

// HasUser reports whether verifyingKey has ever appeared in this
// authorisation's user history, regardless of enabled state or time.
func (a *Authorisation) HasUser(verifyingKey string) bool {
	_, ok := a.Users[verifyingKey]
	return ok
}

// IsUserValidAt reports whether verifyingKey was an enabled member at time
// at.
func (a *Authorisation) IsUserValidAt(verifyingKey string, at int64) bool {
	return validAt(a.Users[verifyingKey], at)
}

// rightAt returns the effective EntityRight for entity at time at: the last
// entry whose ValidFrom is at or before at.
func (a *Authorisation) rightAt(entity string, at int64) (EntityRight, bool) {
	entries := a.Rights[entity]
	var latest *EntityRight
	for i := range entries {
		e := &entries[i]
		if e.ValidFrom > at {
			continue
		}
		if latest == nil || e.ValidFrom >= latest.ValidFrom {
			latest = e
		}
	}
	if latest == nil {
		return EntityRight{}, false
	}
	return *latest, true
}

// Can reports whether this authorisation grants right on entity at time at.
func (a *Authorisation) Can(entity string, at int64, right Right) bool {
	r, ok := a.rightAt(entity, at)
	if !ok {
		return false
	}
	switch right {
	case RightMutateSelf:
		return r.MutateSelf
	case RightMutateAll:
		return r.MutateAll
	default:
		return false
	}
}
