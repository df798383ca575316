// Package search runs a query signature against one or more indices (trees or flat collections of signatures)
package search

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/index"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/pipeline"
	"github.com/will-rowe/decoct/src/sbt"
	"github.com/will-rowe/decoct/src/signature"
)

// DefaultThreshold is the default minimum score for a match
const DefaultThreshold = 0.08

// ErrConfigurationConflict is returned when the search options can't be used together
var ErrConfigurationConflict = pipeline.ErrConfigurationConflict

// Options stores the runtime info for a search
type Options struct {
	KSize             uint32
	Molecule          *minhash.Molecule
	Threshold         float64
	Containment       bool
	BestOnly          bool
	Abundance         bool
	NumResults        int
	TraverseDirectory bool
	NumProc           int

	// WorkDir is where bundled trees are unpacked, a temporary directory is used if it is empty
	WorkDir string
}

// NewOptions returns the default search options
func NewOptions() *Options {
	return &Options{
		Threshold:  DefaultThreshold,
		NumResults: 3,
		NumProc:    1,
	}
}

// Validate checks the search options before any file is read
func (opts *Options) Validate() error {
	switch {
	case opts.Containment && opts.BestOnly:
		return errors.Wrap(ErrConfigurationConflict, "best-only searches can't use containment")
	case opts.Containment && opts.Abundance:
		return errors.Wrap(ErrConfigurationConflict, "abundance weighting can't be used for containment")
	case opts.Threshold < 0 || opts.Threshold > 1:
		return errors.Wrapf(ErrConfigurationConflict, "threshold must be between 0 and 1 (got %v)", opts.Threshold)
	case opts.NumResults < 0:
		return errors.Wrap(ErrConfigurationConflict, "number of results can't be negative")
	}
	if opts.NumProc < 1 {
		opts.NumProc = 1
	}
	return nil
}

// Predicate returns the index predicate for the options
func (opts *Options) Predicate() index.Predicate {
	switch {
	case opts.BestOnly:
		return index.BestOnly
	case opts.Containment:
		return index.Containment
	}
	return index.Similarity
}

// NewSearcher returns a searcher for the options, incompatible signatures are logged
func (opts *Options) NewSearcher() *index.Searcher {
	searcher := index.NewSearcher(opts.Predicate(), opts.Threshold, opts.Abundance)
	searcher.OnIncompatible = func(name string, err error) {
		log.Printf("\tskipping %s: %v", name, err)
	}
	return searcher
}

// LoadQuery reads the query signature file and selects the sketch to search with.
// The first signature holding a sketch for the k-mer size and molecule is used.
func LoadQuery(path string, opts *Options) (*signature.Signature, *minhash.KmerMinHash, error) {
	sigs, err := signature.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(sigs) == 0 {
		return nil, nil, errors.Wrapf(minhash.ErrIncompatibleSketch, "no signatures in query file %s", path)
	}
	for _, sig := range sigs {
		mh, err := sig.Select(opts.KSize, opts.Molecule)
		if err == nil {
			return sig, mh, nil
		}
	}
	mol := "any"
	if opts.Molecule != nil {
		mol = opts.Molecule.String()
	}
	return nil, nil, errors.Wrapf(minhash.ErrIncompatibleSketch, "no sketch in %s with k=%d and molecule=%s", path, opts.KSize, mol)
}

// LoadIndex opens a single database: a tree manifest, a bundled tree, a directory of signature files or a signature file
func LoadIndex(path string, opts *Options) (index.Index, error) {
	switch {
	case index.IsIndexFile(path):
		return sbt.Load(path)
	case sbt.IsArchive(path):
		workDir := opts.WorkDir
		if workDir == "" {
			tmp, err := os.MkdirTemp("", "decoct-")
			if err != nil {
				return nil, errors.Wrap(sbt.ErrStorage, err.Error())
			}
			workDir = tmp
		}
		return sbt.LoadArchive(path, filepath.Join(workDir, filepath.Base(path)))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if !opts.TraverseDirectory {
			return nil, fmt.Errorf("%s is a directory (use --traverse-directory to search the signatures in it)", path)
		}
		files, err := misc.CollectFiles(path, []string{"sig"})
		if err != nil {
			return nil, err
		}
		return index.LoadLinearIndex(path, files...)
	}
	return index.LoadLinearIndex(path, path)
}

// LoadIndices opens every database, in order
func LoadIndices(paths []string, opts *Options) ([]index.Index, error) {
	indices := make([]index.Index, 0, len(paths))
	for _, path := range paths {
		idx, err := LoadIndex(path, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load %s", path)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// Search queries the indices in parallel, sharing the searcher between them.
// Matches are ranked by descending score, ties keep index order and then discovery order.
// An index that can't be searched with the query is logged and skipped.
func Search(ctx context.Context, searcher *index.Searcher, query *minhash.KmerMinHash, indices []index.Index, numProc int) ([]*index.Match, error) {
	if numProc < 1 {
		numProc = 1
	}
	found := make([][]*index.Match, len(indices))
	errs := make([]error, len(indices))
	tokens := make(chan struct{}, numProc)
	var wg sync.WaitGroup
	for i, idx := range indices {
		wg.Add(1)
		tokens <- struct{}{}
		go func(i int, idx index.Index) {
			defer func() {
				<-tokens
				wg.Done()
			}()
			found[i], errs[i] = idx.Find(ctx, searcher, query)
		}(i, idx)
	}
	wg.Wait()

	var matches []*index.Match
	for i, err := range errs {
		switch {
		case err == nil:
			matches = append(matches, found[i]...)
		case errors.Is(err, minhash.ErrIncompatibleSketch):
			log.Printf("\tskipping %s: %v", indices[i].Location(), err)
		default:
			return nil, errors.Wrapf(err, "search of %s failed", indices[i].Location())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if searcher.Predicate() == index.BestOnly && len(matches) > 1 {
		matches = matches[:1]
	}
	return matches, nil
}
