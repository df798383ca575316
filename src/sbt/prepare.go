package sbt

import (
	"context"

	"github.com/pkg/errors"
)

// Rebuild recomputes every internal filter from the leaf sketches below it
func (t *SBT) Rebuild(ctx context.Context) error {
	if len(t.nodes) == 0 {
		return nil
	}

	// level order, so that walking it backwards visits children before their parents
	order := make([]int, 0, len(t.nodes))
	order = append(order, 0)
	for i := 0; i < len(order); i++ {
		n := t.nodes[order[i]]
		if n.kind != internalNode {
			continue
		}
		for _, child := range n.children {
			if child >= 0 {
				order = append(order, child)
			}
		}
	}
	filters := make(map[int]*Filter, len(t.nodes))
	for i := len(order) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := order[i]
		n := t.nodes[idx]
		filter := t.newFilter()
		if n.kind == leafNode {
			mh, err := t.leafSketch(idx)
			if err != nil {
				return err
			}
			filter.AddSketch(mh)
			filters[idx] = filter
			continue
		}
		for _, child := range n.children {
			if child < 0 {
				continue
			}
			if err := filter.Union(filters[child]); err != nil {
				return errors.Wrapf(err, "could not rebuild %s", n.name)
			}
			delete(filters, child)
		}
		n.filter = filter
		filters[idx] = filter
	}
	return nil
}

// Scaffold builds a new tree from the leaves of this one, inserting them in arena order
func (t *SBT) Scaffold(ctx context.Context) (*SBT, error) {
	scaffold := New(t.ksize, t.molecule, t.bfSize, t.nHashes)
	for _, idx := range t.leaves() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sig, err := t.LeafSignature(idx)
		if err != nil {
			return nil, err
		}
		if err := scaffold.Insert(sig); err != nil {
			return nil, err
		}
	}
	return scaffold, nil
}
