package minhash

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/twotwotwo/sorts/sortutil"
	"github.com/will-rowe/ntHash"
)

// batchSize is the number of hashes collected before they are sorted and added to the sketch
const batchSize = 1 << 16

// HashKmer hashes a k-mer with the seeded murmur3 function (x64_128, first word)
func HashKmer(kmer []byte, seed uint64) uint64 {
	h1, _ := murmur3.Sum128WithSeed(kmer, uint32(seed))
	return h1
}

// AddHash adds a single hash value to the sketch, according to its retention policy
func (mh *KmerMinHash) AddHash(hash uint64) {
	mh.AddHashWithAbundance(hash, 1)
}

// AddHashWithAbundance adds a hash value, incrementing its abundance by abund if it has already been seen
func (mh *KmerMinHash) AddHashWithAbundance(hash, abund uint64) {
	if mh.num == 0 && mh.maxHash == 0 {
		return
	}
	if mh.maxHash != 0 && hash > mh.maxHash {
		return
	}
	n := len(mh.mins)

	// fast path for a full bottom-k sketch
	if mh.num > 0 && n >= int(mh.num) && hash > mh.mins[n-1] {
		return
	}
	i := sort.Search(n, func(i int) bool { return mh.mins[i] >= hash })
	if i < n && mh.mins[i] == hash {
		if mh.abunds != nil {
			mh.abunds[i] += abund
		}
		return
	}
	mh.mins = append(mh.mins, 0)
	copy(mh.mins[i+1:], mh.mins[i:])
	mh.mins[i] = hash
	if mh.abunds != nil {
		mh.abunds = append(mh.abunds, 0)
		copy(mh.abunds[i+1:], mh.abunds[i:])
		mh.abunds[i] = abund
	}

	// evict the largest hash
	if mh.num > 0 && len(mh.mins) > int(mh.num) {
		mh.mins = mh.mins[:mh.num]
		if mh.abunds != nil {
			mh.abunds = mh.abunds[:mh.num]
		}
	}
}

// AddMany adds a batch of hashes. The batch is sorted in place, so that it can stop once the remaining hashes can't be kept.
func (mh *KmerMinHash) AddMany(hashes []uint64) {
	sortutil.Uint64s(hashes)
	for _, hash := range hashes {
		if mh.maxHash != 0 && hash > mh.maxHash {
			return
		}
		if mh.num > 0 && len(mh.mins) >= int(mh.num) && hash > mh.mins[len(mh.mins)-1] {
			return
		}
		mh.AddHash(hash)
	}
}

// AddSequence decomposes a sequence into k-mers, hashes them and adds them to the sketch.
// DNA k-mers are canonicalised. Protein-type sketches are built from the six-frame translation of the sequence.
// Invalid bases are replaced with A unless strict is set, in which case ErrMalformedSequence is returned.
// Sequences shorter than the k-mer size add nothing.
func (mh *KmerMinHash) AddSequence(sequence []byte, strict bool) error {
	if len(sequence) < int(mh.ksize) || mh.ksize == 0 {
		if strict {
			return NormaliseDNA(append([]byte(nil), sequence...), true)
		}
		return nil
	}
	seq := append([]byte(nil), sequence...)
	if mh.molecule.IsProtein() || mh.order == NormaliseFirst || mh.hashFunc == NtHash || strict {
		if err := NormaliseDNA(seq, strict); err != nil {
			return err
		}
	} else {
		upperCase(seq)
	}
	if mh.molecule.IsProtein() {
		mh.addTranslated(seq)
		return nil
	}
	if mh.hashFunc == NtHash {
		return mh.addNtHash(seq)
	}
	rc := RevComplement(seq)
	k := int(mh.ksize)
	batch := make([]uint64, 0, min(batchSize, len(seq)-k+1))
	kmerBuf := make([]byte, k)
	for i := 0; i+k <= len(seq); i++ {
		fwd := seq[i : i+k]
		rev := rc[len(seq)-i-k : len(seq)-i]
		kmer := fwd
		if string(rev) < string(fwd) {
			kmer = rev
		}
		if mh.order == CanonicaliseFirst {
			copy(kmerBuf, kmer)
			replaceInvalid(kmerBuf)
			kmer = kmerBuf
		}
		batch = append(batch, HashKmer(kmer, mh.seed))
		if len(batch) == batchSize {
			mh.AddMany(batch)
			batch = batch[:0]
		}
	}
	mh.AddMany(batch)
	return nil
}

// addNtHash uses the rolling ntHash function to get the canonical k-mer hashes
func (mh *KmerMinHash) addNtHash(seq []byte) error {
	hasher, err := ntHash.New(&seq, uint(mh.ksize))
	if err != nil {
		return errors.Wrap(err, "could not start ntHash")
	}
	batch := make([]uint64, 0, batchSize)
	for hv := range hasher.Hash(CANONICAL) {
		batch = append(batch, hv)
		if len(batch) == batchSize {
			mh.AddMany(batch)
			batch = batch[:0]
		}
	}
	mh.AddMany(batch)
	return nil
}

// addTranslated hashes the amino acid k-mers from the six reading frames of a DNA sequence
func (mh *KmerMinHash) addTranslated(seq []byte) {
	rc := RevComplement(seq)
	for _, strand := range [][]byte{seq, rc} {
		for frame := 0; frame < 3; frame++ {
			aa := encodeProtein(Translate(strand, frame), mh.molecule)
			mh.addWords(aa)
		}
	}
}

// AddProtein adds a protein sequence to a protein, dayhoff or hp sketch
func (mh *KmerMinHash) AddProtein(sequence []byte) error {
	if !mh.molecule.IsProtein() {
		return errors.Wrap(ErrIncompatibleSketch, "can't add protein sequence to a DNA sketch")
	}
	aa := append([]byte(nil), sequence...)
	upperCase(aa)
	mh.addWords(encodeProtein(aa, mh.molecule))
	return nil
}

// addWords hashes every amino acid word of length ksize/3
func (mh *KmerMinHash) addWords(aa []byte) {
	k := int(mh.ksize / 3)
	if k == 0 || len(aa) < k {
		return
	}
	batch := make([]uint64, 0, min(batchSize, len(aa)-k+1))
	for i := 0; i+k <= len(aa); i++ {
		batch = append(batch, HashKmer(aa[i:i+k], mh.seed))
		if len(batch) == batchSize {
			mh.AddMany(batch)
			batch = batch[:0]
		}
	}
	mh.AddMany(batch)
}
