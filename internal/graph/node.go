// Package graph implements the signed graph store: Node and Edge records,
// their invariants, signing and verification, and the tombstones left
// behind by deletion.
package graph

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// DefaultMaxRowLength is the default encoded-size ceiling for a Node or Edge,
// configurable via internal/config's max_object_size_in_kb.
const DefaultMaxRowLength = 32 * 1024

// Node is a signed vertex in the graph: a single versioned entity row,
// scoped to a room, authored and signed by one verifying key.
type Node struct {
	ID           xcrypto.Uid
	RoomID       xcrypto.Uid
	CDate        int64
	MDate        int64
	Entity       string
	JSONData     string
	BinaryData   []byte
	VerifyingKey []byte
	Signature    []byte
}

// SystemEntity names the entities that define a room's own structure.
// Mutations to these are excluded from the daily hash: the room definition
// synchronises through its own dedicated operations (§4.7 RoomDefinition),
// not through the generic per-day diff.
type SystemEntity string

const (
	SystemEntityRoom          SystemEntity = "sys.Room"
	SystemEntityAuthorisation SystemEntity = "sys.Authorisation"
	SystemEntityUserAuth      SystemEntity = "sys.UserAuth"
	SystemEntityEntityRight   SystemEntity = "sys.EntityRight"
)

// IsSystemEntity reports whether entity is one of the system entities
// excluded from daily-log hashing.
func IsSystemEntity(entity string) bool {
	switch SystemEntity(entity) {
	case SystemEntityRoom, SystemEntityAuthorisation, SystemEntityUserAuth, SystemEntityEntityRight:
		return true
	default:
		return false
	}
}

// size returns the node's encoded size for the RowTooLong check.
func (n *Node) size() int {
	return len(n.ID) + len(n.RoomID) + 8 + 8 + len(n.Entity) + len(n.JSONData) + len(n.BinaryData) + len(n.VerifyingKey) + len(n.Signature)
}

// hash computes the Blake3 digest covering every field but the signature
// itself, in the fixed order the original and the signature both depend on.
func (n *Node) hash() [xcrypto.HashSize]byte {
	var cdate, mdate [8]byte
	binary.LittleEndian.PutUint64(cdate[:], uint64(n.CDate))
	binary.LittleEndian.PutUint64(mdate[:], uint64(n.MDate))
	return xcrypto.Hash(
		n.ID[:],
		n.RoomID[:],
		cdate[:],
		mdate[:],
		[]byte(n.Entity),
		[]byte(n.JSONData),
		n.BinaryData,
		n.VerifyingKey,
	)
}

// Sign validates shape invariants, stamps the author's verifying key, and
// signs the node in place.
func (n *Node) Sign(key xcrypto.SigningKey, maxRowLength int) error {
	if n.Entity == "" {
		return ErrEmptyEntity
	}
	n.VerifyingKey = key.VerifyingKey().Export()
	if n.size() > maxRowLength {
		return &ErrRowTooLong{Size: n.size(), Max: maxRowLength}
	}
	hash := n.hash()
	n.Signature = key.Sign(hash[:])
	return nil
}

// Verify recomputes the node's hash and checks its signature, and rejects a
// row whose json_data does not parse: a forged-but-validly-signed row with
// garbage JSON must not reach storage just because its signature checks out.
func (n *Node) Verify(maxRowLength int) error {
	if n.Entity == "" {
		return ErrEmptyEntity
	}
	if n.size() > maxRowLength {
		return &ErrRowTooLong{Size: n.size(), Max: maxRowLength}
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(n.JSONData), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	vk, err := xcrypto.ImportVerifyingKey(n.VerifyingKey)
	if err != nil {
		return err
	}
	hash := n.hash()
	return vk.Verify(hash[:], n.Signature)
}

// NodeDeletionEntry is the signed tombstone left behind when a Node is
// hard-deleted; it is the only long-lived record of the deletion and feeds
// the daily log like any other signed change.
type NodeDeletionEntry struct {
	Room         xcrypto.Uid
	ID           xcrypto.Uid
	Entity       string
	DeletionDate int64
	VerifyingKey []byte
	Signature    []byte
	// Date is the deleted node's original cdate. It is not covered by the
	// signature and is not persisted in the deletion log; it exists only to
	// let the daily-mutations buffer bucket the entry into the right day.
	Date int64
}

func (e *NodeDeletionEntry) hash() [xcrypto.HashSize]byte {
	var deletionDate [8]byte
	binary.LittleEndian.PutUint64(deletionDate[:], uint64(e.DeletionDate))
	return xcrypto.Hash(e.Room[:], e.ID[:], []byte(e.Entity), deletionDate[:], e.VerifyingKey)
}

// BuildNodeDeletionEntry signs a tombstone for node, deleted within room at
// deletionDate.
func BuildNodeDeletionEntry(room xcrypto.Uid, node *Node, deletionDate int64, key xcrypto.SigningKey) *NodeDeletionEntry {
	entry := &NodeDeletionEntry{
		Room:         room,
		ID:           node.ID,
		Entity:       node.Entity,
		DeletionDate: deletionDate,
		VerifyingKey: key.VerifyingKey().Export(),
		Date:         node.CDate,
	}
	hash := entry.hash()
	entry.Signature = key.Sign(hash[:])
	return entry
}

// Verify checks the tombstone's signature.
func (e *NodeDeletionEntry) Verify() error {
	vk, err := xcrypto.ImportVerifyingKey(e.VerifyingKey)
	if err != nil {
		return err
	}
	hash := e.hash()
	return vk.Verify(hash[:], e.Signature)
}
