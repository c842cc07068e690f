package graph

import (
	"encoding/binary"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Edge is a signed directed relation between two nodes, keyed by
// (src, label, dest) and indexed the other way round as (dest, label, src)
// so the graph can be walked in either direction.
type Edge struct {
	Src          xcrypto.Uid
	SrcEntity    string
	Label        string
	Dest         xcrypto.Uid
	CDate        int64
	VerifyingKey []byte
	Signature    []byte
}

func (e *Edge) size() int {
	return len(e.Src) + len(e.SrcEntity) + len(e.Label) + len(e.Dest) + 8 + len(e.VerifyingKey) + len(e.Signature)
}

func (e *Edge) hash() [xcrypto.HashSize]byte {
	var cdate [8]byte
	binary.LittleEndian.PutUint64(cdate[:], uint64(e.CDate))
	return xcrypto.Hash(e.Src[:], []byte(e.SrcEntity), []byte(e.Label), e.Dest[:], cdate[:], e.VerifyingKey)
}

// Sign validates shape invariants, stamps the author's verifying key, and
// signs the edge in place.
func (e *Edge) Sign(key xcrypto.SigningKey, maxRowLength int) error {
	if e.SrcEntity == "" {
		return ErrEmptyEntity
	}
	if e.Label == "" {
		return ErrEmptyLabel
	}
	e.VerifyingKey = key.VerifyingKey().Export()
	if e.size() > maxRowLength {
		return &ErrRowTooLong{Size: e.size(), Max: maxRowLength}
	}
	hash := e.hash()
	e.Signature = key.Sign(hash[:])
	return nil
}

// Verify recomputes the edge's hash and checks its signature.
func (e *Edge) Verify(maxRowLength int) error {
	if e.SrcEntity == "" {
		return ErrEmptyEntity
	}
	if e.Label == "" {
		return ErrEmptyLabel
	}
	if e.size() > maxRowLength {
		return &ErrRowTooLong{Size: e.size(), Max: maxRowLength}
	}
	vk, err := xcrypto.ImportVerifyingKey(e.VerifyingKey)
	if err != nil {
		return err
	}
	hash := e.hash()
	return vk.Verify(hash[:], e.Signature)
}

// EdgeDeletionEntry is the signed tombstone left behind when an Edge is
// hard-deleted.
type EdgeDeletionEntry struct {
	Room         xcrypto.Uid
	Src          xcrypto.Uid
	SrcEntity    string
	Label        string
	Dest         xcrypto.Uid
	DeletionDate int64
	VerifyingKey []byte
	Signature    []byte
	// Date is the deleted edge's original cdate, used only to bucket the
	// entry into the right day; not covered by the signature.
	Date int64
}

func (e *EdgeDeletionEntry) hash() [xcrypto.HashSize]byte {
	var deletionDate [8]byte
	binary.LittleEndian.PutUint64(deletionDate[:], uint64(e.DeletionDate))
	return xcrypto.Hash(e.Room[:], e.Src[:], []byte(e.SrcEntity), []byte(e.Label), e.Dest[:], deletionDate[:], e.VerifyingKey)
}

// BuildEdgeDeletionEntry signs a tombstone for edge, deleted within room at
// deletionDate.
func BuildEdgeDeletionEntry(room xcrypto.Uid, edge *Edge, deletionDate int64, key xcrypto.SigningKey) *EdgeDeletionEntry {
	entry := &EdgeDeletionEntry{
		Room:         room,
		Src:          edge.Src,
		SrcEntity:    edge.SrcEntity,
		Label:        edge.Label,
		Dest:         edge.Dest,
		DeletionDate: deletionDate,
		VerifyingKey: key.VerifyingKey().Export(),
		Date:         edge.CDate,
	}
	hash := entry.hash()
	entry.Signature = key.Sign(hash[:])
	return entry
}

// Verify checks the tombstone's signature.
func (e *EdgeDeletionEntry) Verify() error {
	vk, err := xcrypto.ImportVerifyingKey(e.VerifyingKey)
	if err != nil {
		return err
	}
	hash := e.hash()
	return vk.Verify(hash[:], e.Signature)
}
