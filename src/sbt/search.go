package sbt

import (
	"context"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/index"
	"github.com/will-rowe/decoct/src/minhash"
)

// Find searches the tree for leaves that pass the searcher's predicate.
// Internal nodes are skipped (along with everything below them) when the fraction of query hashes in their filter shows that no leaf below could pass.
// Matches are returned left to right.
func (t *SBT) Find(ctx context.Context, searcher *index.Searcher, query *minhash.KmerMinHash) ([]*index.Match, error) {
	if query.KSize() != t.ksize || query.Molecule() != t.molecule {
		return nil, errors.Wrapf(minhash.ErrIncompatibleSketch, "query (k=%d, %v) does not match the tree (k=%d, %v)", query.KSize(), query.Molecule(), t.ksize, t.molecule)
	}
	if len(t.nodes) == 0 {
		return nil, nil
	}
	var matches []*index.Match
	stack := []int{0}
	for len(stack) != 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[idx]
		if n.kind == internalNode {
			if searcher.Prune(n.filter.Fraction(query)) {
				continue
			}
			for slot := 1; slot >= 0; slot-- {
				if n.children[slot] >= 0 {
					stack = append(stack, n.children[slot])
				}
			}
			continue
		}
		sig, err := t.LeafSignature(idx)
		if err != nil {
			return nil, err
		}
		score, ok := searcher.Compare(query, sig)
		if ok && searcher.Accept(score) {
			matches = append(matches, &index.Match{Score: score, Signature: sig, Origin: t.location})
		}
	}
	return matches, nil
}

// check SBT satisfies the index interface
var _ index.Index = (*SBT)(nil)
