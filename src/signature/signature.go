// Package signature holds the named collections of sketches that decoct computes, stores and searches
package signature

import (
	"crypto/md5"
	"fmt"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
)

const (
	// Class is written to the class field of every signature
	Class = "sourmash_signature"

	// License is the only license decoct will write signatures under
	License = "CC0"

	// Version is the signature file format version
	Version = 0.4
)

// Signature is a named set of sketches, one per k-mer size and molecule type
type Signature struct {
	Class        string
	Email        string
	HashFunction string
	Filename     string
	Name         string
	License      string
	Version      float64
	Sketches     []*minhash.KmerMinHash
}

// New is the constructor for a Signature, the sketches are used as given
func New(name, filename string, sketches ...*minhash.KmerMinHash) *Signature {
	hf := minhash.Murmur64
	if len(sketches) != 0 {
		hf = sketches[0].HashFunction()
	}
	return &Signature{
		Class:        Class,
		HashFunction: hf.String(),
		Filename:     filename,
		Name:         name,
		License:      License,
		Version:      Version,
		Sketches:     sketches,
	}
}

// FromTemplate returns an unnamed signature holding empty copies of the template sketches
func FromTemplate(template []*minhash.KmerMinHash) *Signature {
	sketches := make([]*minhash.KmerMinHash, len(template))
	for i, mh := range template {
		sketches[i] = mh.CopyEmpty()
	}
	return New("", "", sketches...)
}

// AddSequence adds a sequence to every sketch in the signature
func (sig *Signature) AddSequence(seq []byte, strict bool) error {
	for _, mh := range sig.Sketches {
		if err := mh.AddSequence(seq, strict); err != nil {
			return err
		}
	}
	return nil
}

// AddProtein adds a protein sequence to every sketch in the signature
func (sig *Signature) AddProtein(seq []byte) error {
	for _, mh := range sig.Sketches {
		if err := mh.AddProtein(seq); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges the sketches of another signature into the receiver, the two signatures must have been built from the same template
func (sig *Signature) Merge(other *Signature) error {
	if len(sig.Sketches) != len(other.Sketches) {
		return errors.Wrapf(minhash.ErrIncompatibleSketch, "signatures hold %d and %d sketches", len(sig.Sketches), len(other.Sketches))
	}
	for i, mh := range sig.Sketches {
		if err := mh.Merge(other.Sketches[i]); err != nil {
			return errors.Wrapf(err, "sketch %d", i)
		}
	}
	return nil
}

// IsEmpty reports if none of the sketches hold any hashes
func (sig *Signature) IsEmpty() bool {
	for _, mh := range sig.Sketches {
		if !mh.IsEmpty() {
			return false
		}
	}
	return true
}

// Md5sum is the checksum of the signature, this is used as its storage key
func (sig *Signature) Md5sum() string {
	if len(sig.Sketches) == 1 {
		return sig.Sketches[0].Md5sum()
	}
	h := md5.New()
	for _, mh := range sig.Sketches {
		mh.WriteChecksum(h)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DisplayName returns the name, or the filename if the signature is unnamed
func (sig *Signature) DisplayName() string {
	if sig.Name != "" {
		return sig.Name
	}
	if sig.Filename != "" {
		return sig.Filename
	}
	return sig.Md5sum()[:8]
}

// Select returns the first sketch matching the k-mer size and molecule. A ksize of 0 matches any size and a nil molecule matches any molecule.
func (sig *Signature) Select(ksize uint32, molecule *minhash.Molecule) (*minhash.KmerMinHash, error) {
	for _, mh := range sig.Sketches {
		if ksize != 0 && mh.KSize() != ksize {
			continue
		}
		if molecule != nil && mh.Molecule() != *molecule {
			continue
		}
		return mh, nil
	}
	mol := "any"
	if molecule != nil {
		mol = molecule.String()
	}
	return nil, errors.Wrapf(minhash.ErrIncompatibleSketch, "no sketch in %q with k=%d and molecule=%s", sig.DisplayName(), ksize, mol)
}

// SelectSignature returns a copy of the signature holding only the selected sketch
func (sig *Signature) SelectSignature(ksize uint32, molecule *minhash.Molecule) (*Signature, error) {
	mh, err := sig.Select(ksize, molecule)
	if err != nil {
		return nil, err
	}
	selected := *sig
	selected.Sketches = []*minhash.KmerMinHash{mh}
	return &selected, nil
}
