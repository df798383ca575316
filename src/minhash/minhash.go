// Package minhash contains the k-mer MinHash sketch used by decoct. Sketches are either bottom-k (a fixed number of the smallest hash values) or scaled (every hash value below a fraction of the hash space).
package minhash

import (
	"crypto/md5"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// DefaultSeed is the seed used by the murmur hash unless told otherwise
const DefaultSeed uint64 = 42

// CANONICAL tells nthash to return the canonical k-mer
const CANONICAL bool = true

var (
	// ErrMalformedSequence is returned when strict checking finds a byte outside of the alphabet
	ErrMalformedSequence = errors.New("malformed sequence")

	// ErrIncompatibleSketch is returned when two sketches (or a sketch and an index) can't be compared
	ErrIncompatibleSketch = errors.New("incompatible sketch")
)

// KmerMinHash is a MinHash sketch of a set of k-mers
type KmerMinHash struct {
	num      uint32
	ksize    uint32
	molecule Molecule
	seed     uint64
	maxHash  uint64
	hashFunc HashFunction
	order    CanonicalOrder

	// mins is kept sorted and duplicate free, abunds is parallel to it (nil if abundance is not tracked)
	mins   []uint64
	abunds []uint64
}

// NewKmerMinHash is the constructor for a KmerMinHash. A num of 0 gives a scaled sketch, bounded by maxHash.
func NewKmerMinHash(num, ksize uint32, molecule Molecule, seed, maxHash uint64, trackAbundance bool) *KmerMinHash {
	mh := &KmerMinHash{
		num:      num,
		ksize:    ksize,
		molecule: molecule,
		seed:     seed,
		maxHash:  maxHash,
	}
	if num > 0 {
		mh.mins = make([]uint64, 0, num)
	}
	if trackAbundance {
		mh.abunds = make([]uint64, 0, cap(mh.mins))
	}
	return mh
}

// MaxHashForScaled converts a scaled value to the largest hash value a sketch will keep
func MaxHashForScaled(scaled uint64) uint64 {
	switch scaled {
	case 0:
		return 0
	case 1:
		return math.MaxUint64
	}
	return uint64(float64(math.MaxUint64) / float64(scaled))
}

// ScaledForMaxHash is the inverse of MaxHashForScaled
func ScaledForMaxHash(maxHash uint64) uint64 {
	if maxHash == 0 {
		return 0
	}
	return uint64(math.Round(float64(math.MaxUint64) / float64(maxHash)))
}

// SetHashFunction changes the function used to hash DNA k-mers, it must be called before anything is added
func (mh *KmerMinHash) SetHashFunction(hf HashFunction) {
	mh.hashFunc = hf
}

// SetCanonicalOrder changes when invalid bases are replaced, relative to k-mer canonicalisation
func (mh *KmerMinHash) SetCanonicalOrder(order CanonicalOrder) {
	mh.order = order
}

// Num returns the bottom-k size (0 for scaled sketches)
func (mh *KmerMinHash) Num() uint32 { return mh.num }

// KSize returns the k-mer size
func (mh *KmerMinHash) KSize() uint32 { return mh.ksize }

// Molecule returns the molecule type
func (mh *KmerMinHash) Molecule() Molecule { return mh.molecule }

// Seed returns the hash seed
func (mh *KmerMinHash) Seed() uint64 { return mh.seed }

// MaxHash returns the largest hash kept by a scaled sketch (0 for bottom-k)
func (mh *KmerMinHash) MaxHash() uint64 { return mh.maxHash }

// Scaled returns the scaled value the sketch was made with (0 for bottom-k)
func (mh *KmerMinHash) Scaled() uint64 { return ScaledForMaxHash(mh.maxHash) }

// HashFunction returns the function used to hash k-mers
func (mh *KmerMinHash) HashFunction() HashFunction { return mh.hashFunc }

// TrackAbundance reports if the sketch is counting hash abundances
func (mh *KmerMinHash) TrackAbundance() bool { return mh.abunds != nil }

// Size is the number of hashes currently retained
func (mh *KmerMinHash) Size() int { return len(mh.mins) }

// IsEmpty reports if the sketch holds no hashes
func (mh *KmerMinHash) IsEmpty() bool { return len(mh.mins) == 0 }

// GetSketch returns a copy of the retained hashes, in ascending order
func (mh *KmerMinHash) GetSketch() []uint64 {
	sketch := make([]uint64, len(mh.mins))
	copy(sketch, mh.mins)
	return sketch
}

// Mins gives read-only access to the retained hashes, without copying
func (mh *KmerMinHash) Mins() []uint64 { return mh.mins }

// Abundances returns a copy of the abundance counters (nil if not tracked)
func (mh *KmerMinHash) Abundances() []uint64 {
	if mh.abunds == nil {
		return nil
	}
	abunds := make([]uint64, len(mh.abunds))
	copy(abunds, mh.abunds)
	return abunds
}

// CopyEmpty returns a sketch with the same parameters as the receiver but no hashes
func (mh *KmerMinHash) CopyEmpty() *KmerMinHash {
	clone := NewKmerMinHash(mh.num, mh.ksize, mh.molecule, mh.seed, mh.maxHash, mh.TrackAbundance())
	clone.hashFunc = mh.hashFunc
	clone.order = mh.order
	return clone
}

// Copy returns a deep copy of the sketch
func (mh *KmerMinHash) Copy() *KmerMinHash {
	clone := mh.CopyEmpty()
	clone.mins = append(clone.mins, mh.mins...)
	if mh.abunds != nil {
		clone.abunds = append(clone.abunds, mh.abunds...)
	}
	return clone
}

// SetHashes replaces the contents of the sketch, it is used when loading sketches from disk
func (mh *KmerMinHash) SetHashes(mins, abunds []uint64) error {
	if abunds != nil && len(abunds) != len(mins) {
		return fmt.Errorf("%d hashes but %d abundances", len(mins), len(abunds))
	}
	for i := 1; i < len(mins); i++ {
		if mins[i] <= mins[i-1] {
			return fmt.Errorf("hashes are not strictly ascending at position %d", i)
		}
	}
	if mh.num > 0 && len(mins) > int(mh.num) {
		return fmt.Errorf("%d hashes exceeds the sketch size (%d)", len(mins), mh.num)
	}
	if mh.maxHash != 0 && len(mins) > 0 && mins[len(mins)-1] > mh.maxHash {
		return fmt.Errorf("hash %d exceeds max_hash (%d)", mins[len(mins)-1], mh.maxHash)
	}
	mh.mins = append(mh.mins[:0], mins...)
	if abunds != nil {
		mh.abunds = append(mh.abunds[:0], abunds...)
	} else {
		mh.abunds = nil
	}
	return nil
}

// CheckCompatible returns ErrIncompatibleSketch if the two sketches can't be compared or merged
func (mh *KmerMinHash) CheckCompatible(other *KmerMinHash) error {
	switch {
	case mh.ksize != other.ksize:
		return errors.Wrapf(ErrIncompatibleSketch, "different k-mer sizes (%d vs. %d)", mh.ksize, other.ksize)
	case mh.molecule != other.molecule:
		return errors.Wrapf(ErrIncompatibleSketch, "different molecules (%v vs. %v)", mh.molecule, other.molecule)
	case mh.seed != other.seed:
		return errors.Wrapf(ErrIncompatibleSketch, "different seeds (%d vs. %d)", mh.seed, other.seed)
	case mh.num != other.num:
		return errors.Wrapf(ErrIncompatibleSketch, "different sketch sizes (%d vs. %d)", mh.num, other.num)
	case mh.maxHash != other.maxHash:
		return errors.Wrapf(ErrIncompatibleSketch, "different max_hash (%d vs. %d)", mh.maxHash, other.maxHash)
	case mh.hashFunc != other.hashFunc:
		return errors.Wrapf(ErrIncompatibleSketch, "different hash functions (%v vs. %v)", mh.hashFunc, other.hashFunc)
	}
	return nil
}

// Md5sum is the checksum of the sketch: the k-mer size followed by every hash, as decimal strings
func (mh *KmerMinHash) Md5sum() string {
	h := md5.New()
	mh.md5Update(h)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// WriteChecksum feeds the checksum material into a running hash, so that a signature can sum over all of its sketches
func (mh *KmerMinHash) WriteChecksum(w io.Writer) {
	mh.md5Update(w)
}

func (mh *KmerMinHash) md5Update(w io.Writer) {
	buf := make([]byte, 0, 20)
	w.Write(strconv.AppendUint(buf, uint64(mh.ksize), 10))
	for _, x := range mh.mins {
		w.Write(strconv.AppendUint(buf[:0], x, 10))
	}
}
