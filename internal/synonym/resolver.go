// Package synonym resolves alternate contig spellings to their canonical
// GenBank accession using the synonym table of one assembly.
package synonym

import (
	"errors"
	"fmt"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// ErrNoSynonym is wrapped by every UnresolvedContigError.
var ErrNoSynonym = errors.New("no synonym found")

// UnresolvedContigError is returned when a contig matches none of the
// lookup strategies.
type UnresolvedContigError struct {
	Contig string
}

func (e *UnresolvedContigError) Error() string {
	return fmt.Sprintf("could not find synonym for contig %q: %s", e.Contig, ErrNoSynonym)
}

func (e *UnresolvedContigError) Unwrap() error {
	return ErrNoSynonym
}

// Strategy names, in resolution order.
const (
	StrategyName             = "name"
	StrategyAssignedMolecule = "assigned_molecule"
	StrategyUCSC             = "ucsc"
	StrategyRefSeq           = "refseq"
	StrategyGenbank          = "genbank"
)

// Resolution is the outcome of resolving one contig.
type Resolution struct {
	// Canonical is the GenBank accession the contig resolves to.
	Canonical string
	// AlreadyCanonical is true when the contig already is a GenBank accession
	// and no rewrite is needed.
	AlreadyCanonical bool
	// Strategy names the index that matched.
	Strategy string
}

// strategy is one named lookup. accept, when set, must also hold for the
// matched entry. canonical marks the terminal GenBank lookup.
type strategy struct {
	name      string
	index     map[string]model.SynonymEntry
	accept    func(model.SynonymEntry) bool
	canonical bool
}

// Resolver holds the five lookup indices of one assembly. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	strategies []strategy
	size       int
}

// NewResolver indexes entries by each of their spellings. Empty spellings
// are not indexed. When two entries share a spelling within one index, the
// later entry wins.
func NewResolver(entries []model.SynonymEntry) *Resolver {
	byName := make(map[string]model.SynonymEntry)
	byMolecule := make(map[string]model.SynonymEntry)
	byUCSC := make(map[string]model.SynonymEntry)
	byRefSeq := make(map[string]model.SynonymEntry)
	byGenbank := make(map[string]model.SynonymEntry)

	put := func(m map[string]model.SynonymEntry, key string, e model.SynonymEntry) {
		if key != "" {
			m[key] = e
		}
	}
	for _, e := range entries {
		put(byName, e.Name, e)
		put(byMolecule, e.AssignedMolecule, e)
		put(byUCSC, e.UCSC, e)
		put(byRefSeq, e.RefSeq, e)
		put(byGenbank, e.Genbank, e)
	}

	return &Resolver{
		// Order is significant: names that are unambiguous come first, RefSeq
		// names are only trusted when declared identical to GenBank, and the
		// GenBank lookup is the terminal "already canonical" case.
		strategies: []strategy{
			{name: StrategyName, index: byName},
			{name: StrategyAssignedMolecule, index: byMolecule},
			{name: StrategyUCSC, index: byUCSC},
			{name: StrategyRefSeq, index: byRefSeq, accept: func(e model.SynonymEntry) bool {
				return e.RefSeqIdenticalToGenbank
			}},
			{name: StrategyGenbank, index: byGenbank, canonical: true},
		},
		size: len(entries),
	}
}

// Resolve maps contig to its GenBank accession. It returns an
// *UnresolvedContigError when no strategy matches.
func (r *Resolver) Resolve(contig string) (Resolution, error) {
	for _, s := range r.strategies {
		e, ok := s.index[contig]
		if !ok {
			continue
		}
		if s.accept != nil && !s.accept(e) {
			continue
		}
		if s.canonical {
			return Resolution{Canonical: contig, AlreadyCanonical: true, Strategy: s.name}, nil
		}
		return Resolution{Canonical: e.Genbank, Strategy: s.name}, nil
	}
	return Resolution{}, &UnresolvedContigError{Contig: contig}
}

// Strategies returns the strategy names in the order they are tried.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.name
	}
	return names
}

// IndexSize returns the number of spellings held by the named index, or -1
// if there is no such strategy.
func (r *Resolver) IndexSize(name string) int {
	for _, s := range r.strategies {
		if s.name == name {
			return len(s.index)
		}
	}
	return -1
}

// Len returns the number of entries the resolver was built from.
func (r *Resolver) Len() int {
	return r.size
}
