package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

var (
	seqA = []byte("ACTGCGTGCGTGAAACGTGCACGTGACGTGTTGACCATGACCAGGTACCAGTTAGGCAT")
	seqB = []byte("ACTGCGTGCGTGAAACGTGCACGTGACGTGTTGACCATGACCAGGTACCAGTTAGGCATGGGCCCAAATTTAGCTAGCTAGGATCC")
	seqC = []byte("TTTTAGCGCGATATCGCGGCTAGCTAGGGATCCCGATTTACGGGCATCATCAGGCATTTAGAC")
)

func newSig(t *testing.T, name string, seq []byte, ksize uint32, trackAbundance bool) *signature.Signature {
	mh := minhash.NewKmerMinHash(0, ksize, minhash.DNA, minhash.DefaultSeed, minhash.MaxHashForScaled(1), trackAbundance)
	if err := mh.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	return signature.New(name, name+".fa", mh)
}

func TestPredicate(t *testing.T) {
	for p, name := range map[Predicate]string{Similarity: "similarity", Containment: "containment", BestOnly: "best-only"} {
		if p.String() != name {
			t.Fatalf("expected %s, got %s", name, p)
		}
	}
}

func TestSearcherAccept(t *testing.T) {
	s := NewSearcher(Similarity, 0.5, false)
	if s.Predicate() != Similarity || s.Threshold() != 0.5 {
		t.Fatal("searcher did not keep its predicate and threshold")
	}
	if !s.Accept(0.5) || s.Accept(0.49) {
		t.Fatal("similarity threshold is inclusive")
	}
	if !s.Prune(0.4) || s.Prune(0.5) {
		t.Fatal("subtrees should only be pruned below the threshold")
	}

	// best-only ignores the given threshold and follows the best score so far
	best := NewSearcher(BestOnly, 0.9, false)
	if best.Threshold() != 0.0 {
		t.Fatal("best-only search should start from zero")
	}
	if best.Accept(0.0) {
		t.Fatal("best-only search should not accept a zero score")
	}
	if !best.Accept(0.3) || !best.Accept(0.6) || best.Accept(0.5) || !best.Accept(0.6) {
		t.Fatal("best-only search should accept scores that match or beat the best so far")
	}
	if best.Threshold() != 0.6 || !best.Prune(0.55) || best.Prune(0.6) {
		t.Fatal("best-only search should prune on the best score so far")
	}

	angular := NewSearcher(Similarity, 0.5, true)
	if angular.Prune(0.1) || !angular.Prune(0.0) {
		t.Fatal("angular searches should only prune subtrees without shared hashes")
	}
}

func TestSearcherCompare(t *testing.T) {
	a := newSig(t, "a", seqA, 21, true)
	b := newSig(t, "b", seqB, 21, true)
	query := a.Sketches[0]

	sim, ok := NewSearcher(Similarity, 0.0, false).Compare(query, b)
	if !ok {
		t.Fatal("compatible signatures could not be compared")
	}
	expected, _ := query.Similarity(b.Sketches[0])
	if sim != expected || sim <= 0 || sim >= 1 {
		t.Fatalf("unexpected similarity: %.3f", sim)
	}

	// a is entirely within b
	cont, ok := NewSearcher(Containment, 0.0, false).Compare(query, b)
	if !ok || cont != 1.0 {
		t.Fatalf("expected full containment, got %.3f", cont)
	}

	angular, ok := NewSearcher(Similarity, 0.0, true).Compare(query, b)
	expected, _ = query.AngularSimilarity(b.Sketches[0])
	if !ok || angular != expected {
		t.Fatalf("unexpected angular similarity: %.3f", angular)
	}

	var skipped []string
	s := NewSearcher(Similarity, 0.0, false)
	s.OnIncompatible = func(name string, err error) { skipped = append(skipped, name) }
	if _, ok := s.Compare(query, newSig(t, "k31", seqB, 31, false)); ok {
		t.Fatal("signature without a matching sketch should be skipped")
	}
	if len(skipped) != 1 || skipped[0] != "k31" {
		t.Fatalf("incompatible signature was not reported: %v", skipped)
	}
}

func TestLinearIndex(t *testing.T) {
	sigs := []*signature.Signature{
		newSig(t, "a", seqA, 21, false),
		newSig(t, "b", seqB, 21, false),
		newSig(t, "c", seqC, 21, false),
		newSig(t, "k31", seqA, 31, false),
	}
	dir := t.TempDir()
	files := []string{filepath.Join(dir, "first.sig"), filepath.Join(dir, "second.sig")}
	if err := signature.SaveFile(files[0], sigs[:2]); err != nil {
		t.Fatal(err)
	}
	if err := signature.SaveFile(files[1], sigs[2:]); err != nil {
		t.Fatal(err)
	}
	idx, err := LoadLinearIndex(dir, files...)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != len(sigs) || idx.Location() != dir || len(idx.Signatures()) != len(sigs) {
		t.Fatal("linear index did not load every signature")
	}

	incompatible := 0
	s := NewSearcher(Similarity, 0.1, false)
	s.OnIncompatible = func(string, error) { incompatible++ }
	matches, err := idx.Find(context.Background(), s, sigs[0].Sketches[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].Signature.Name != "a" || matches[1].Signature.Name != "b" {
		t.Fatal("linear index search did not find the expected matches in order")
	}
	if matches[0].Score != 1.0 || matches[0].Origin != dir {
		t.Fatal("unexpected self match")
	}
	if incompatible != 1 {
		t.Fatalf("expected 1 incompatible signature, got %d", incompatible)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Find(ctx, s, sigs[0].Sketches[0]); err == nil {
		t.Fatal("search should stop when cancelled")
	}
	if _, err := LoadLinearIndex(dir, filepath.Join(dir, "missing.sig")); err == nil {
		t.Fatal("missing signature file should not load")
	}
	if !IsIndexFile("db.sbt.json") || IsIndexFile("db.sig") {
		t.Fatal("index files not recognised")
	}
}
