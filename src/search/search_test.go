package search

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/index"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/sbt"
	"github.com/will-rowe/decoct/src/signature"
)

var testK = uint32(21)

// randomSeq is a helper function for generating a reproducible random DNA sequence
func randomSeq(length int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	seq := make([]byte, length)
	for i := range seq {
		seq[i] = "ACGT"[r.Intn(4)]
	}
	return seq
}

func newSig(t *testing.T, name string, seq []byte, ksize uint32) *signature.Signature {
	mh := minhash.NewKmerMinHash(0, ksize, minhash.DNA, minhash.DefaultSeed, minhash.MaxHashForScaled(1), false)
	if err := mh.AddSequence(seq, false); err != nil {
		t.Fatal(err)
	}
	return signature.New(name, name+".fa", mh)
}

// setupDatabases is a helper function that writes a query, a tree and a directory of signatures
func setupDatabases(t *testing.T) (string, []string, map[string]*signature.Signature) {
	dir := t.TempDir()
	base := randomSeq(3000, 10)
	sigs := map[string]*signature.Signature{
		"query":    newSig(t, "query", base[:2000], testK),
		"whole":    newSig(t, "whole", base, testK),
		"half":     newSig(t, "half", base[:1000], testK),
		"other-1":  newSig(t, "other-1", randomSeq(2000, 11), testK),
		"other-2":  newSig(t, "other-2", randomSeq(2000, 12), testK),
		"quarter":  newSig(t, "quarter", base[1500:2000], testK),
		"k31-copy": newSig(t, "k31-copy", base, 31),
	}
	query := filepath.Join(dir, "query.sig")
	if err := signature.SaveFile(query, []*signature.Signature{sigs["k31-copy"], sigs["query"]}); err != nil {
		t.Fatal(err)
	}
	tree := sbt.New(testK, minhash.DNA, 0, 0)
	for _, name := range []string{"whole", "other-1", "quarter"} {
		if err := tree.Insert(sigs[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Save(filepath.Join(dir, "db")); err != nil {
		t.Fatal(err)
	}
	sigDir := filepath.Join(dir, "sigs")
	if err := os.Mkdir(sigDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"half", "other-2", "k31-copy"} {
		if err := signature.SaveFile(filepath.Join(sigDir, name+".sig"), []*signature.Signature{sigs[name]}); err != nil {
			t.Fatal(err)
		}
	}
	return query, []string{filepath.Join(dir, "db"+sbt.ManifestExt), sigDir}, sigs
}

func TestValidate(t *testing.T) {
	opts := NewOptions()
	if err := opts.Validate(); err != nil {
		t.Fatal(err)
	}
	if opts.Threshold != DefaultThreshold || opts.NumResults != 3 || opts.Predicate() != index.Similarity {
		t.Fatal("unexpected default options")
	}
	opts.Containment = true
	if opts.Predicate() != index.Containment {
		t.Fatal("containment option not used")
	}
	opts.BestOnly = true
	if err := opts.Validate(); !errors.Is(err, ErrConfigurationConflict) {
		t.Fatalf("expected configuration conflict, got %v", err)
	}
	opts = NewOptions()
	opts.Threshold = 1.5
	if err := opts.Validate(); !errors.Is(err, ErrConfigurationConflict) {
		t.Fatalf("expected configuration conflict, got %v", err)
	}
}

func TestLoadQuery(t *testing.T) {
	query, _, sigs := setupDatabases(t)
	opts := NewOptions()
	opts.KSize = testK
	sig, mh, err := LoadQuery(query, opts)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Name != "query" || mh.KSize() != testK || mh.Md5sum() != sigs["query"].Md5sum() {
		t.Fatal("wrong query sketch selected")
	}

	// without a k-mer size the first sketch is used
	opts.KSize = 0
	if sig, _, err = LoadQuery(query, opts); err != nil || sig.Name != "k31-copy" {
		t.Fatal("expected the first signature to be used")
	}
	opts.KSize = 51
	if _, _, err := LoadQuery(query, opts); !errors.Is(err, minhash.ErrIncompatibleSketch) {
		t.Fatalf("expected incompatible sketch error, got %v", err)
	}
}

func TestLoadIndices(t *testing.T) {
	_, dbs, _ := setupDatabases(t)
	opts := NewOptions()
	if _, err := LoadIndices(dbs, opts); err == nil {
		t.Fatal("a directory should only be searched with traverse directory set")
	}
	opts.TraverseDirectory = true
	indices, err := LoadIndices(dbs, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(indices) != 2 || indices[0].Len() != 3 || indices[1].Len() != 3 {
		t.Fatal("databases were not loaded")
	}
	if _, ok := indices[0].(*sbt.SBT); !ok {
		t.Fatal("manifest should load as a tree")
	}
	if _, err := LoadIndices([]string{filepath.Join(filepath.Dir(dbs[0]), "missing.sig")}, opts); err == nil {
		t.Fatal("missing database should not load")
	}
}

func TestSearch(t *testing.T) {
	query, dbs, _ := setupDatabases(t)
	opts := NewOptions()
	opts.KSize = testK
	opts.TraverseDirectory = true
	opts.NumProc = 2
	_, mh, err := LoadQuery(query, opts)
	if err != nil {
		t.Fatal(err)
	}
	indices, err := LoadIndices(dbs, opts)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := Search(context.Background(), opts.NewSearcher(), mh, indices, opts.NumProc)
	if err != nil {
		t.Fatal(err)
	}

	// the query is two thirds of whole and twice the size of half and of quarter
	expected := []string{"whole", "half", "quarter"}
	if len(matches) != len(expected) {
		t.Fatalf("expected %d matches, got %d", len(expected), len(matches))
	}
	for i, match := range matches {
		if match.Signature.Name != expected[i] {
			t.Fatalf("match %d: expected %s, got %s", i, expected[i], match.Signature.Name)
		}
		if i > 0 && match.Score > matches[i-1].Score {
			t.Fatal("matches are not ranked")
		}
	}
	if matches[0].Origin != dbs[0] || matches[1].Origin != dbs[1] {
		t.Fatal("match origins were not kept")
	}

	opts.Containment = true
	opts.Threshold = 0.3
	matches, err = Search(context.Background(), opts.NewSearcher(), mh, indices, opts.NumProc)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].Signature.Name != "whole" || matches[0].Score != 1.0 || matches[1].Signature.Name != "half" {
		t.Fatal("unexpected containment matches")
	}

	opts.Containment = false
	opts.BestOnly = true
	matches, err = Search(context.Background(), opts.NewSearcher(), mh, indices, opts.NumProc)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Signature.Name != "whole" {
		t.Fatal("best-only search should give the single best match")
	}
}

func TestSearchSkipsIncompatibleIndex(t *testing.T) {
	query, dbs, _ := setupDatabases(t)
	opts := NewOptions()
	opts.KSize = 31
	_, mh, err := LoadQuery(query, opts)
	if err != nil {
		t.Fatal(err)
	}
	opts.TraverseDirectory = true
	indices, err := LoadIndices(dbs, opts)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := Search(context.Background(), opts.NewSearcher(), mh, indices, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Signature.Name != "k31-copy" || matches[0].Score != 1.0 {
		t.Fatal("expected only the k=31 self match")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Search(ctx, opts.NewSearcher(), mh, indices, 1); err == nil {
		t.Fatal("search should stop when cancelled")
	}
}
