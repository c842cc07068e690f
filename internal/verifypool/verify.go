package verifypool

import (
	"context"

	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// verifyResult carries the rows that passed verification alongside the
// per-row errors that caused the rest to be dropped, so a caller can skip
// the single bad row instead of discarding the whole batch.
type verifyResult[T any] struct {
	valid    []T
	failures []error
}

// VerifyNodes checks every node's signature on a pool worker. Rows that fail
// verification are dropped from the returned slice and reported in
// failures; a forged or corrupted row from a peer never aborts an
// otherwise-good batch.
func (p *Pool) VerifyNodes(ctx context.Context, nodes []*graph.Node, maxRowLength int) (valid []*graph.Node, failures []error, err error) {
	r, err := submit(ctx, p, func() verifyResult[*graph.Node] {
		var res verifyResult[*graph.Node]
		for _, n := range nodes {
			if verr := n.Verify(maxRowLength); verr != nil {
				res.failures = append(res.failures, verr)
				continue
			}
			res.valid = append(res.valid, n)
		}
		return res
	})
	if err != nil {
		return nil, nil, err
	}
	return r.valid, r.failures, nil
}

// VerifyEdges checks every edge's signature on a pool worker, skipping rows
// that fail verification.
func (p *Pool) VerifyEdges(ctx context.Context, edges []*graph.Edge, maxRowLength int) (valid []*graph.Edge, failures []error, err error) {
	r, err := submit(ctx, p, func() verifyResult[*graph.Edge] {
		var res verifyResult[*graph.Edge]
		for _, e := range edges {
			if verr := e.Verify(maxRowLength); verr != nil {
				res.failures = append(res.failures, verr)
				continue
			}
			res.valid = append(res.valid, e)
		}
		return res
	})
	if err != nil {
		return nil, nil, err
	}
	return r.valid, r.failures, nil
}

// VerifyNodeDeletions checks every node tombstone's signature, skipping rows
// that fail verification.
func (p *Pool) VerifyNodeDeletions(ctx context.Context, entries []*graph.NodeDeletionEntry) (valid []*graph.NodeDeletionEntry, failures []error, err error) {
	r, err := submit(ctx, p, func() verifyResult[*graph.NodeDeletionEntry] {
		var res verifyResult[*graph.NodeDeletionEntry]
		for _, e := range entries {
			if verr := e.Verify(); verr != nil {
				res.failures = append(res.failures, verr)
				continue
			}
			res.valid = append(res.valid, e)
		}
		return res
	})
	if err != nil {
		return nil, nil, err
	}
	return r.valid, r.failures, nil
}

// VerifyEdgeDeletions checks every edge tombstone's signature, skipping rows
// that fail verification.
func (p *Pool) VerifyEdgeDeletions(ctx context.Context, entries []*graph.EdgeDeletionEntry) (valid []*graph.EdgeDeletionEntry, failures []error, err error) {
	r, err := submit(ctx, p, func() verifyResult[*graph.EdgeDeletionEntry] {
		var res verifyResult[*graph.EdgeDeletionEntry]
		for _, e := range entries {
			if verr := e.Verify(); verr != nil {
				res.failures = append(res.failures, verr)
				continue
			}
			res.valid = append(res.valid, e)
		}
		return res
	})
	if err != nil {
		return nil, nil, err
	}
	return r.valid, r.failures, nil
}

// VerifyHash checks a single, ad-hoc signature against hash and a raw,
// tag-prefixed verifying key, used outside the Node/Edge shapes (the
// identity handshake). It reports false rather than an error on any
// failure, including a malformed key, since the caller only ever needs a
// yes/no answer here.
func (p *Pool) VerifyHash(ctx context.Context, signature []byte, hash [xcrypto.HashSize]byte, verifyingKey []byte) (bool, error) {
	return submit(ctx, p, func() bool {
		vk, err := xcrypto.ImportVerifyingKey(verifyingKey)
		if err != nil {
			return false
		}
		return vk.Verify(hash[:], signature) == nil
	})
}
