package index

import (
	"context"

	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

// LinearIndex is a flat list of signatures, every one of which is compared with the query
type LinearIndex struct {
	location string
	sigs     []*signature.Signature
}

// NewLinearIndex is the constructor for a LinearIndex
func NewLinearIndex(location string, sigs ...*signature.Signature) *LinearIndex {
	return &LinearIndex{location: location, sigs: sigs}
}

// LoadLinearIndex reads the signatures from one or more signature files into a single LinearIndex
func LoadLinearIndex(location string, files ...string) (*LinearIndex, error) {
	idx := NewLinearIndex(location)
	for _, file := range files {
		sigs, err := signature.LoadFile(file)
		if err != nil {
			return nil, err
		}
		idx.Insert(sigs...)
	}
	return idx, nil
}

// Insert adds signatures to the index
func (idx *LinearIndex) Insert(sigs ...*signature.Signature) {
	idx.sigs = append(idx.sigs, sigs...)
}

// Signatures returns the signatures held by the index
func (idx *LinearIndex) Signatures() []*signature.Signature {
	return idx.sigs
}

// Find compares the query with every signature in the index
func (idx *LinearIndex) Find(ctx context.Context, searcher *Searcher, query *minhash.KmerMinHash) ([]*Match, error) {
	var matches []*Match
	for _, sig := range idx.sigs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, ok := searcher.Compare(query, sig)
		if ok && searcher.Accept(score) {
			matches = append(matches, &Match{Score: score, Signature: sig, Origin: idx.location})
		}
	}
	return matches, nil
}

// Len returns the number of signatures in the index
func (idx *LinearIndex) Len() int {
	return len(idx.sigs)
}

// Location is where the index was loaded from
func (idx *LinearIndex) Location() string {
	return idx.location
}
