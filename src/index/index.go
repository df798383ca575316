// Package index defines the searchable collections of signatures and the predicates used to search them
package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

// Predicate is the test a match has to pass
type Predicate uint8

const (
	// Similarity keeps matches with a Jaccard similarity at or above the threshold
	Similarity Predicate = iota

	// Containment keeps matches that contain at least threshold of the query
	Containment

	// BestOnly ignores the threshold and keeps only the single highest similarity match
	BestOnly
)

// String returns the name of the predicate
func (p Predicate) String() string {
	switch p {
	case Similarity:
		return "similarity"
	case Containment:
		return "containment"
	case BestOnly:
		return "best-only"
	}
	return fmt.Sprintf("predicate(%d)", uint8(p))
}

// Match is a signature that passed a search
type Match struct {
	Score     float64
	Signature *signature.Signature
	Origin    string
}

// Index is a searchable collection of signatures
type Index interface {

	// Find returns the matches for the query, in discovery order
	Find(ctx context.Context, searcher *Searcher, query *minhash.KmerMinHash) ([]*Match, error)

	// Len returns the number of signatures held by the index
	Len() int

	// Location is where the index was loaded from
	Location() string
}

// Searcher holds the predicate, threshold and running best score for a search. It can be shared by searches running over several indices at once.
type Searcher struct {
	predicate Predicate
	threshold float64
	angular   bool

	mu   sync.Mutex
	best float64

	// OnIncompatible is called when a signature can't be compared with the query, the signature is then skipped
	OnIncompatible func(name string, err error)
}

// NewSearcher is the constructor for a Searcher. If angular is set, similarity is scored from abundances where both sketches have them.
func NewSearcher(predicate Predicate, threshold float64, angular bool) *Searcher {
	if predicate == BestOnly {
		threshold = 0.0
	}
	return &Searcher{predicate: predicate, threshold: threshold, angular: angular}
}

// Predicate returns the predicate the searcher uses
func (s *Searcher) Predicate() Predicate {
	return s.predicate
}

// Threshold returns the current minimum score, this is the running best for best-only searches
func (s *Searcher) Threshold() float64 {
	if s.predicate != BestOnly {
		return s.threshold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best
}

// Score compares the query with a subject sketch, according to the predicate
func (s *Searcher) Score(query, subject *minhash.KmerMinHash) (float64, error) {
	switch {
	case s.predicate == Containment:
		return query.Containment(subject)
	case s.angular && query.TrackAbundance() && subject.TrackAbundance():
		return query.AngularSimilarity(subject)
	}
	return query.Similarity(subject)
}

// Prune reports if a subtree can be skipped, given the fraction of the query hashes found in its filter.
// The fraction is an upper bound on both similarity and containment, so nothing that would pass is skipped.
func (s *Searcher) Prune(fraction float64) bool {
	if s.angular && s.predicate != Containment {
		// abundance weighting means any shared hash could still give a high score
		return fraction == 0 && s.Threshold() > 0
	}
	return fraction < s.Threshold()
}

// Accept reports if a score passes the predicate. For best-only searches the running best is raised to the score.
func (s *Searcher) Accept(score float64) bool {
	if s.predicate != BestOnly {
		return score >= s.threshold
	}
	if score <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if score < s.best {
		return false
	}
	s.best = score
	return true
}

// incompatible reports a signature that could not be compared
func (s *Searcher) incompatible(name string, err error) {
	if s.OnIncompatible != nil {
		s.OnIncompatible(name, err)
	}
}

// Compare selects the sketch of the signature that matches the query and scores it.
// The boolean is false if the signature was skipped because it can't be compared.
func (s *Searcher) Compare(query *minhash.KmerMinHash, sig *signature.Signature) (float64, bool) {
	molecule := query.Molecule()
	subject, err := sig.Select(query.KSize(), &molecule)
	if err != nil {
		s.incompatible(sig.DisplayName(), err)
		return 0, false
	}
	score, err := s.Score(query, subject)
	if err != nil {
		s.incompatible(sig.DisplayName(), err)
		return 0, false
	}
	return score, true
}

// IsIndexFile reports if a path looks like a saved tree rather than a signature file
func IsIndexFile(path string) bool {
	return strings.HasSuffix(path, ".sbt.json")
}
