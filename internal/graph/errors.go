package graph

import (
	"errors"
	"fmt"
)

// Validation-class errors: invalid shape, never pollute a transaction's
// other rows.
var (
	ErrInvalidID         = errors.New("graph: invalid id")
	ErrEmptyEntity       = errors.New("graph: entity is empty")
	ErrEmptyLabel        = errors.New("graph: label is empty")
	ErrInvalidJSON       = errors.New("graph: json_data is not well-formed")
	ErrNotFound          = errors.New("graph: row not found")
	ErrTombstoneNotFound = errors.New("graph: tombstone not found")
)

// ErrRowTooLong is returned by Sign/Verify when the encoded row exceeds the
// configured maximum size.
type ErrRowTooLong struct {
	Size int
	Max  int
}

func (e *ErrRowTooLong) Error() string {
	return fmt.Sprintf("graph: row is %d bytes, exceeds maximum of %d", e.Size, e.Max)
}
