// Package cache sizes two in-memory ristretto caches the replica consults
// before going to SQLite: one for nodes freshly read (so a hot entity does
// not round-trip to disk on every query), one for nodes freshly written (so
// a read immediately following a write in the same session does not race the
// commit that makes it visible to a fresh SELECT).
package cache

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// Caches holds the replica's read and write node caches, sized from
// internal/config.Config's read_cache_size_in_kb / write_cache_size_in_kb
// (§6 "Configuration").
type Caches struct {
	Read  *ristretto.Cache[xcrypto.Uid, *graph.Node]
	Write *ristretto.Cache[xcrypto.Uid, *graph.Node]
}

// costOf approximates a node's footprint in bytes for ristretto's cost
// accounting: the JSON payload plus the binary payload plus a fixed
// allowance for the fixed-size fields (id, signature, verifying key).
const fixedNodeOverhead = 128

func costOf(n *graph.Node) int64 {
	return int64(len(n.JSONData) + len(n.BinaryData) + fixedNodeOverhead)
}

// New builds the read and write caches, sized in KiB. Ristretto recommends
// roughly 10 counters per item actually held; since average node size
// varies, a sized-by-bytes MaxCost with a NumCounters estimate of ten
// counters per 256 bytes of budget (one assumed item per 256 bytes) is a
// reasonable default the admission policy will correct over time.
func New(readSizeInKB, writeSizeInKB int) (*Caches, error) {
	read, err := newCache(readSizeInKB)
	if err != nil {
		return nil, err
	}
	write, err := newCache(writeSizeInKB)
	if err != nil {
		read.Close()
		return nil, err
	}
	return &Caches{Read: read, Write: write}, nil
}

func newCache(sizeInKB int) (*ristretto.Cache[xcrypto.Uid, *graph.Node], error) {
	maxCost := int64(sizeInKB) * 1024
	numCounters := maxCost / 256 * 10
	if numCounters < 100 {
		numCounters = 100
	}
	return ristretto.NewCache(&ristretto.Config[xcrypto.Uid, *graph.Node]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
}

// GetRead returns a cached node previously stored with PutRead, if present.
func (c *Caches) GetRead(id xcrypto.Uid) (*graph.Node, bool) {
	return c.Read.Get(id)
}

// PutRead records a node just read from storage.
func (c *Caches) PutRead(n *graph.Node) {
	c.Read.Set(n.ID, n, costOf(n))
}

// GetWrite returns a node just written in this process, before its
// transaction's effects are guaranteed visible to a fresh query.
func (c *Caches) GetWrite(id xcrypto.Uid) (*graph.Node, bool) {
	return c.Write.Get(id)
}

// PutWrite records a node just written, evicting it from the read cache
// since its stored form is now consistent with storage.
func (c *Caches) PutWrite(n *graph.Node) {
	c.Write.Set(n.ID, n, costOf(n))
	c.Read.Del(n.ID)
}

// Evict removes id from both caches, used when a node is deleted.
func (c *Caches) Evict(id xcrypto.Uid) {
	c.Read.Del(id)
	c.Write.Del(id)
}

// Close releases both caches' background goroutines.
func (c *Caches) Close() {
	c.Read.Close()
	c.Write.Close()
}
