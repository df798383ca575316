package minhash

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

var (
	kmerSize        = uint32(7)
	sketchSize      = uint32(10)
	seqA            = []byte("ACTGCGTGCGTGAAACGTGCACGTGACGTG")
	seqArcomplement = []byte("CACGTCACGTGCACGTTTCACGCACGCAGT")
)

// randomSeq is a helper function for generating a reproducible random DNA sequence
func randomSeq(length int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	seq := make([]byte, length)
	for i := range seq {
		seq[i] = "ACGT"[r.Intn(4)]
	}
	return seq
}

// kmerShredder is a helper function for yielding the distinct canonical k-mers from a sequence
func kmerShredder(seq []byte, k int) map[string]struct{} {
	rc := RevComplement(seq)
	kmers := make(map[string]struct{})
	for i := 0; i+k <= len(seq); i++ {
		fwd := string(seq[i : i+k])
		rev := string(rc[len(seq)-i-k : len(seq)-i])
		if rev < fwd {
			fwd = rev
		}
		kmers[fwd] = struct{}{}
	}
	return kmers
}

func TestMinHashConstructors(t *testing.T) {
	mh := NewKmerMinHash(sketchSize, kmerSize, DNA, DefaultSeed, 0, false)
	if mh.Num() != sketchSize || mh.KSize() != kmerSize || mh.Seed() != DefaultSeed || mh.TrackAbundance() {
		t.Fatal("NewKmerMinHash constructor did not initiate bottom-k sketch correctly")
	}
	scaled := NewKmerMinHash(0, kmerSize, DNA, DefaultSeed, MaxHashForScaled(1000), true)
	if scaled.Scaled() != 1000 || !scaled.TrackAbundance() {
		t.Fatalf("NewKmerMinHash constructor did not initiate scaled sketch correctly (scaled=%d)", scaled.Scaled())
	}
	if MaxHashForScaled(1) != math.MaxUint64 || MaxHashForScaled(0) != 0 {
		t.Fatal("MaxHashForScaled edge cases are wrong")
	}
}

func TestAddSequence(t *testing.T) {
	mh := NewKmerMinHash(sketchSize, kmerSize, DNA, DefaultSeed, 0, false)

	// sequences shorter than k add nothing
	if err := mh.AddSequence(seqA[0:1], false); err != nil {
		t.Fatal(err)
	}
	if !mh.IsEmpty() {
		t.Fatal("short sequence should not add any hashes")
	}
	if err := mh.AddSequence(seqA, false); err != nil {
		t.Fatal(err)
	}
	if mh.Size() != int(sketchSize) {
		t.Fatalf("expected %d hashes, got %d", sketchSize, mh.Size())
	}

	// strict mode rejects anything but ACGT
	if err := mh.AddSequence([]byte("ACGTACGTNNACGT"), true); !errors.Is(err, ErrMalformedSequence) {
		t.Fatalf("expected ErrMalformedSequence, got %v", err)
	}

	// lower case is fine in strict mode
	if err := mh.AddSequence([]byte("acgtacgtacgt"), true); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidBasesBecomeA(t *testing.T) {
	withN := NewKmerMinHash(0, kmerSize, DNA, DefaultSeed, MaxHashForScaled(1), false)
	withA := withN.CopyEmpty()
	if err := withN.AddSequence([]byte("ACGTNNNNGGCATRYA"), false); err != nil {
		t.Fatal(err)
	}
	if err := withA.AddSequence([]byte("ACGTAAAAGGCATAAA"), false); err != nil {
		t.Fatal(err)
	}
	js, err := withN.Similarity(withA)
	if err != nil {
		t.Fatal(err)
	}
	if js != 1.0 {
		t.Fatalf("invalid bases should have been replaced with A (similarity %.2f)", js)
	}
}

func TestCanonicalOrder(t *testing.T) {
	seq := []byte("NNACGTTGCAGGTCN")
	normFirst := NewKmerMinHash(0, 5, DNA, DefaultSeed, MaxHashForScaled(1), false)
	canonFirst := normFirst.CopyEmpty()
	canonFirst.SetCanonicalOrder(CanonicaliseFirst)
	if err := normFirst.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	if err := canonFirst.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	if normFirst.IsEmpty() || canonFirst.IsEmpty() {
		t.Fatal("both orders should produce hashes")
	}

	// without invalid bases the order makes no difference
	a, b := normFirst.CopyEmpty(), canonFirst.CopyEmpty()
	a.AddSequence(seqA, false)
	b.AddSequence(seqA, false)
	if js, _ := a.Similarity(b); js != 1.0 {
		t.Fatalf("canonical order should not matter for clean sequence (similarity %.2f)", js)
	}
}

func TestSimilarityEstimates(t *testing.T) {
	// these sketches use canonical k-mers and the sequences are reverse complements, so they should yield identical k-mer sets
	for _, hf := range []HashFunction{Murmur64, NtHash} {
		mh1 := NewKmerMinHash(sketchSize, kmerSize, DNA, DefaultSeed, 0, false)
		mh1.SetHashFunction(hf)
		mh2 := mh1.CopyEmpty()
		if err := mh1.AddSequence(seqA, false); err != nil {
			t.Fatal(err)
		}
		if err := mh2.AddSequence(seqArcomplement, false); err != nil {
			t.Fatal(err)
		}
		js, err := mh1.Similarity(mh2)
		if err != nil {
			t.Fatal(err)
		}
		if js != 1.0 {
			t.Fatalf("similarity estimate (%v) should be 1.0, not: %.2f", hf, js)
		}
	}
}

func TestSelfComparison(t *testing.T) {
	mh := NewKmerMinHash(0, 21, DNA, DefaultSeed, MaxHashForScaled(10), false)
	if err := mh.AddSequence(randomSeq(5000, 1), false); err != nil {
		t.Fatal(err)
	}
	js, err := mh.Similarity(mh)
	if err != nil {
		t.Fatal(err)
	}
	cont, err := mh.Containment(mh)
	if err != nil {
		t.Fatal(err)
	}
	if js != 1.0 || cont != 1.0 {
		t.Fatalf("self similarity and containment should be 1.0 (got %.2f and %.2f)", js, cont)
	}
	if js, _ := mh.Similarity(mh.CopyEmpty()); js != 0.0 {
		t.Fatal("similarity with an empty sketch should be 0.0")
	}
}

func TestSymmetryAndContainment(t *testing.T) {
	seq := randomSeq(2000, 2)
	small := NewKmerMinHash(0, 21, DNA, DefaultSeed, MaxHashForScaled(1), false)
	large := small.CopyEmpty()
	small.AddSequence(seq[:1000], false)
	large.AddSequence(seq, false)
	ab, _ := small.Similarity(large)
	ba, _ := large.Similarity(small)
	if ab != ba {
		t.Fatalf("similarity should be symmetric: %.4f vs %.4f", ab, ba)
	}
	cab, _ := small.Containment(large)
	cba, _ := large.Containment(small)
	if cab != 1.0 {
		t.Fatalf("first half should be fully contained in the whole sequence (got %.4f)", cab)
	}
	if cba >= 1.0 || cba < 0.4 {
		t.Fatalf("whole sequence should be roughly half contained in the first half (got %.4f)", cba)
	}
}

func TestBottomKBound(t *testing.T) {
	mh := NewKmerMinHash(100, 21, DNA, DefaultSeed, 0, true)
	for i := int64(0); i < 5; i++ {
		if err := mh.AddSequence(randomSeq(3000, i), false); err != nil {
			t.Fatal(err)
		}
		if mh.Size() > 100 {
			t.Fatalf("bottom-k sketch exceeded num: %d", mh.Size())
		}
	}
	sketch := mh.GetSketch()
	for i := 1; i < len(sketch); i++ {
		if sketch[i] <= sketch[i-1] {
			t.Fatal("sketch is not strictly ascending")
		}
	}
}

func TestScaledBound(t *testing.T) {
	seq := randomSeq(200000, 3)
	scaled := uint64(10)
	mh := NewKmerMinHash(0, 21, DNA, DefaultSeed, MaxHashForScaled(scaled), false)
	if err := mh.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	for _, h := range mh.Mins() {
		if h > mh.MaxHash() {
			t.Fatalf("hash %d is above max_hash", h)
		}
	}
	distinct := len(kmerShredder(seq, 21))
	ratio := float64(mh.Size()) / float64(distinct)
	t.Logf("retained %d of %d distinct k-mers (%.4f)", mh.Size(), distinct, ratio)
	if ratio < 0.08 || ratio > 0.12 {
		t.Fatalf("retained ratio %.4f is too far from 1/%d", ratio, scaled)
	}
}

func TestMerge(t *testing.T) {
	seq := randomSeq(4000, 4)
	whole := NewKmerMinHash(0, 21, DNA, DefaultSeed, MaxHashForScaled(2), true)
	first, second := whole.CopyEmpty(), whole.CopyEmpty()
	whole.AddSequence(seq, false)
	first.AddSequence(seq[:2000], false)
	second.AddSequence(seq[2000-20:], false)
	if err := first.Merge(second); err != nil {
		t.Fatal(err)
	}
	if js, _ := first.Similarity(whole); js != 1.0 {
		t.Fatalf("merged halves should equal the whole (similarity %.4f)", js)
	}

	// merging a sketch with itself keeps the hash set
	before := whole.GetSketch()
	if err := whole.Merge(whole.Copy()); err != nil {
		t.Fatal(err)
	}
	after := whole.GetSketch()
	if len(before) != len(after) {
		t.Fatal("self merge changed the hash set")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("self merge changed the hash set")
		}
	}
	for _, a := range whole.Abundances() {
		if a < 2 {
			t.Fatal("self merge should sum abundances")
		}
	}

	// bottom-k merges keep the smallest num
	bk1 := NewKmerMinHash(50, 21, DNA, DefaultSeed, 0, false)
	bk2 := bk1.CopyEmpty()
	bk1.AddSequence(randomSeq(1000, 5), false)
	bk2.AddSequence(randomSeq(1000, 6), false)
	if err := bk1.Merge(bk2); err != nil {
		t.Fatal(err)
	}
	if bk1.Size() != 50 {
		t.Fatalf("bottom-k merge should keep num hashes, not %d", bk1.Size())
	}
}

func TestIncompatible(t *testing.T) {
	a := NewKmerMinHash(10, 21, DNA, DefaultSeed, 0, false)
	for _, b := range []*KmerMinHash{
		NewKmerMinHash(10, 31, DNA, DefaultSeed, 0, false),
		NewKmerMinHash(10, 21, Protein, DefaultSeed, 0, false),
		NewKmerMinHash(10, 21, DNA, 7, 0, false),
		NewKmerMinHash(20, 21, DNA, DefaultSeed, 0, false),
		NewKmerMinHash(0, 21, DNA, DefaultSeed, MaxHashForScaled(10), false),
	} {
		if err := a.Merge(b); !errors.Is(err, ErrIncompatibleSketch) {
			t.Fatalf("merge should fail with ErrIncompatibleSketch, got %v", err)
		}
		if _, err := a.Similarity(b); !errors.Is(err, ErrIncompatibleSketch) {
			t.Fatalf("similarity should fail with ErrIncompatibleSketch, got %v", err)
		}
		if _, err := a.Containment(b); !errors.Is(err, ErrIncompatibleSketch) {
			t.Fatalf("containment should fail with ErrIncompatibleSketch, got %v", err)
		}
	}
}

func TestAbundance(t *testing.T) {
	mh := NewKmerMinHash(0, 5, DNA, DefaultSeed, MaxHashForScaled(1), true)
	mh.AddSequence([]byte("AAAAAAAA"), false)
	if mh.Size() != 1 || mh.Abundances()[0] != 4 {
		t.Fatalf("expected a single hash seen 4 times, got %v", mh.Abundances())
	}
	other := mh.Copy()
	ang, err := mh.AngularSimilarity(other)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ang-1.0) > 1e-9 {
		t.Fatalf("angular self similarity should be 1.0, not %.4f", ang)
	}
	if _, err := mh.AngularSimilarity(NewKmerMinHash(0, 5, DNA, DefaultSeed, MaxHashForScaled(1), false)); err == nil {
		t.Fatal("angular similarity without abundances should fail")
	}
}

func TestProtein(t *testing.T) {
	if aa := string(Translate([]byte("ATGGCCTAA"), 0)); aa != "MA*" {
		t.Fatalf("bad translation: %s", aa)
	}
	if aa := string(Translate([]byte("AATGGCC"), 1)); aa != "MA" {
		t.Fatalf("bad frame 1 translation: %s", aa)
	}
	if rc := string(RevComplement([]byte("ACGTN"))); rc != "NACGT" {
		t.Fatalf("bad reverse complement: %s", rc)
	}
	if enc := string(encodeProtein([]byte("CAGDHIF"), Dayhoff)); enc != "abbcdef" {
		t.Fatalf("bad dayhoff encoding: %s", enc)
	}
	if enc := string(encodeProtein([]byte("AFCD"), HP)); enc != "hhpp" {
		t.Fatalf("bad hp encoding: %s", enc)
	}

	dna := NewKmerMinHash(10, 21, DNA, DefaultSeed, 0, false)
	if err := dna.AddProtein([]byte("MAGICPEPTIDE")); !errors.Is(err, ErrIncompatibleSketch) {
		t.Fatal("adding protein to a DNA sketch should fail")
	}

	// a protein sketch from DNA should contain the words of the forward frame translation
	seq := randomSeq(300, 7)
	fromDNA := NewKmerMinHash(0, 21, Protein, DefaultSeed, MaxHashForScaled(1), false)
	fromProtein := fromDNA.CopyEmpty()
	if err := fromDNA.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	if err := fromProtein.AddProtein(Translate(seq, 0)); err != nil {
		t.Fatal(err)
	}
	cont, err := fromProtein.Containment(fromDNA)
	if err != nil {
		t.Fatal(err)
	}
	if cont != 1.0 {
		t.Fatalf("forward frame protein words should be contained in six frame sketch (got %.2f)", cont)
	}
}

func TestMd5sum(t *testing.T) {
	mh := NewKmerMinHash(sketchSize, kmerSize, DNA, DefaultSeed, 0, false)
	mh.AddSequence(seqA, false)
	sum := mh.Md5sum()
	if len(sum) != 32 {
		t.Fatalf("md5sum should be 32 hex characters: %s", sum)
	}
	if sum != mh.Copy().Md5sum() {
		t.Fatal("md5sum should be deterministic")
	}
	other := mh.CopyEmpty()
	other.AddSequence(randomSeq(100, 8), false)
	if sum == other.Md5sum() {
		t.Fatal("different sketches should have different checksums")
	}
}

func TestSetHashes(t *testing.T) {
	mh := NewKmerMinHash(3, kmerSize, DNA, DefaultSeed, 0, false)
	if err := mh.SetHashes([]uint64{3, 2, 1}, nil); err == nil {
		t.Fatal("unsorted hashes should be rejected")
	}
	if err := mh.SetHashes([]uint64{1, 2, 3, 4}, nil); err == nil {
		t.Fatal("too many hashes should be rejected")
	}
	if err := mh.SetHashes([]uint64{1, 2}, []uint64{1}); err == nil {
		t.Fatal("mismatched abundances should be rejected")
	}
	if err := mh.SetHashes([]uint64{1, 2, 3}, nil); err != nil {
		t.Fatal(err)
	}
}

func BenchmarkMurmur(b *testing.B) {
	seq := randomSeq(10000, 9)
	mh := NewKmerMinHash(1000, 21, DNA, DefaultSeed, 0, false)
	for n := 0; n < b.N; n++ {
		if err := mh.AddSequence(seq, false); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNtHash(b *testing.B) {
	seq := randomSeq(10000, 9)
	mh := NewKmerMinHash(1000, 21, DNA, DefaultSeed, 0, false)
	mh.SetHashFunction(NtHash)
	for n := 0; n < b.N; n++ {
		if err := mh.AddSequence(seq, false); err != nil {
			b.Fatal(err)
		}
	}
}
