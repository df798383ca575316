// Package sbt is a Sequence Bloom Tree: a binary tree of Bloom filters over a collection of signatures.
// Every internal node holds the union of the hashes below it, so subtrees that can't hold a match are skipped during a search.
package sbt

import (
	"bytes"
	"fmt"

	"github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

const (
	// DefaultBloomSize is the default number of bits in each node filter
	DefaultBloomSize uint = 100000

	// DefaultNumHashes is the default number of hash functions used by each node filter
	DefaultNumHashes uint = 4
)

var (
	// ErrStorage is returned when a manifest or node blob can't be read or written
	ErrStorage = errors.New("storage error")

	// ErrIndexFormat is returned when a saved tree is corrupt or from an unknown version
	ErrIndexFormat = errors.New("index format error")
)

// nodeKind separates the internal and leaf nodes
type nodeKind uint8

const (
	internalNode nodeKind = iota
	leafNode
)

// node is a single node of the tree, nodes are held in a flat slice and refer to each other by index
type node struct {
	kind     nodeKind
	name     string
	parent   int
	children [2]int

	// filter is only kept for internal nodes, leaf filters are derived from the leaf sketch when needed
	filter *Filter

	// md5 is the storage key of a leaf signature
	md5 string
}

// SBT is a Sequence Bloom Tree
type SBT struct {
	ksize    uint32
	molecule minhash.Molecule
	bfSize   uint
	nHashes  uint
	nodes    []*node
	storage  Storage
	location string

	// leafCache holds the leaf signatures, keyed by md5sum, it is filled on insert or on first use after loading
	leafCache cmap.ConcurrentMap
}

// New is the constructor for an empty SBT, it will only accept signatures with a sketch of the given k-mer size and molecule
func New(ksize uint32, molecule minhash.Molecule, bfSize, nHashes uint) *SBT {
	if bfSize == 0 {
		bfSize = DefaultBloomSize
	}
	if nHashes == 0 {
		nHashes = DefaultNumHashes
	}
	return &SBT{
		ksize:     ksize,
		molecule:  molecule,
		bfSize:    bfSize,
		nHashes:   nHashes,
		leafCache: cmap.New(),
	}
}

// KSize returns the k-mer size of the tree
func (t *SBT) KSize() uint32 { return t.ksize }

// Molecule returns the molecule of the tree
func (t *SBT) Molecule() minhash.Molecule { return t.molecule }

// Location is the manifest the tree was loaded from or last saved to
func (t *SBT) Location() string { return t.location }

// Len returns the number of leaves
func (t *SBT) Len() int {
	return len(t.leaves())
}

// NumNodes returns the number of nodes (internal and leaf)
func (t *SBT) NumNodes() int {
	return len(t.nodes)
}

// Depth returns the number of levels in the tree
func (t *SBT) Depth() int {
	depth := 0
	for _, n := range t.nodes {
		d := 1
		for p := n.parent; p >= 0; p = t.nodes[p].parent {
			d++
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

func (t *SBT) newFilter() *Filter {
	return NewFilter(t.bfSize, t.nHashes)
}

// addInternal appends a new internal node to the arena and returns its index
func (t *SBT) addInternal(parent int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, &node{
		kind:     internalNode,
		name:     fmt.Sprintf("internal.%d", idx),
		parent:   parent,
		children: [2]int{-1, -1},
		filter:   t.newFilter(),
	})
	return idx
}

// Insert adds a signature to the tree as a new leaf
func (t *SBT) Insert(sig *signature.Signature) error {
	mh, err := sig.Select(t.ksize, &t.molecule)
	if err != nil {
		return err
	}
	leafFilter := t.newFilter()
	leafFilter.AddSketch(mh)
	leaf := &node{
		kind:     leafNode,
		name:     sig.DisplayName(),
		parent:   -1,
		children: [2]int{-1, -1},
		md5:      sig.Md5sum(),
	}
	t.leafCache.Set(leaf.md5, sig)

	if len(t.nodes) == 0 {
		t.addInternal(-1)
	}

	// look for the shallowest, leftmost empty slot of an internal node, noting the shallowest leftmost leaf in case there isn't one
	firstLeaf := -1
	queue := []int{0}
	for len(queue) != 0 {
		idx := queue[0]
		queue = queue[1:]
		n := t.nodes[idx]
		if n.kind == leafNode {
			if firstLeaf < 0 {
				firstLeaf = idx
			}
			continue
		}
		for slot, child := range n.children {
			if child < 0 {
				t.attach(leaf, idx, slot)
				return t.updateAncestors(idx, leafFilter)
			}
			queue = append(queue, child)
		}
	}

	// no free slot, so the leaf is replaced by an internal node holding it and the new leaf
	oldLeaf := t.nodes[firstLeaf]
	parent := oldLeaf.parent
	slot := 0
	if t.nodes[parent].children[1] == firstLeaf {
		slot = 1
	}
	oldSketch, err := t.leafSketch(firstLeaf)
	if err != nil {
		return err
	}
	split := t.addInternal(parent)
	t.nodes[parent].children[slot] = split
	t.nodes[split].children[0] = firstLeaf
	oldLeaf.parent = split
	t.nodes[split].filter.AddSketch(oldSketch)
	t.attach(leaf, split, 1)
	return t.updateAncestors(split, leafFilter)
}

// attach adds a leaf to the arena and links it into a slot of an internal node
func (t *SBT) attach(leaf *node, parent, slot int) {
	idx := len(t.nodes)
	leaf.parent = parent
	t.nodes = append(t.nodes, leaf)
	t.nodes[parent].children[slot] = idx
}

// updateAncestors ORs a leaf filter into a node and every node above it
func (t *SBT) updateAncestors(idx int, leafFilter *Filter) error {
	for ; idx >= 0; idx = t.nodes[idx].parent {
		if err := t.nodes[idx].filter.Union(leafFilter); err != nil {
			return errors.Wrapf(err, "could not update %s", t.nodes[idx].name)
		}
	}
	return nil
}

// leaves returns the leaf indices, in arena order
func (t *SBT) leaves() []int {
	var leaves []int
	for idx, n := range t.nodes {
		if n.kind == leafNode {
			leaves = append(leaves, idx)
		}
	}
	return leaves
}

// LeafSignature returns the signature held by a leaf, loading it from storage the first time it is needed
func (t *SBT) LeafSignature(idx int) (*signature.Signature, error) {
	n := t.nodes[idx]
	if n.kind != leafNode {
		return nil, fmt.Errorf("node %d is not a leaf", idx)
	}
	if cached, ok := t.leafCache.Get(n.md5); ok {
		return cached.(*signature.Signature), nil
	}
	if t.storage == nil {
		return nil, errors.Wrapf(ErrStorage, "no storage for leaf %s", n.name)
	}
	data, err := t.storage.Load(n.md5)
	if err != nil {
		return nil, err
	}
	sigs, err := signature.Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "leaf %s: %v", n.name, err)
	}
	if len(sigs) == 0 {
		return nil, errors.Wrapf(ErrStorage, "leaf %s holds no signature", n.name)
	}
	t.leafCache.Set(n.md5, sigs[0])
	return sigs[0], nil
}

// leafSketch returns the sketch of a leaf that the tree is built over
func (t *SBT) leafSketch(idx int) (*minhash.KmerMinHash, error) {
	sig, err := t.LeafSignature(idx)
	if err != nil {
		return nil, err
	}
	return sig.Select(t.ksize, &t.molecule)
}

// Signatures returns every leaf signature, in arena order
func (t *SBT) Signatures() ([]*signature.Signature, error) {
	leaves := t.leaves()
	sigs := make([]*signature.Signature, 0, len(leaves))
	for _, idx := range leaves {
		sig, err := t.LeafSignature(idx)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
