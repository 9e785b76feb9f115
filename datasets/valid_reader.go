package datasets

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/phuslu/log"

	"github.com/knights-analytics/colbert/options"
)

// CollateFunc turns a batch of query, positive and negative texts into model inputs.
// The reader does not look at the returned value.
type CollateFunc[T any] func(queries, positives, negatives []string, bsize int) (T, error)

// Dataset is implemented by the triple readers.
type Dataset[T any] interface {
	Len() int
	Next() (T, error)
}

var _ Dataset[any] = (*ValidTripleReader[any])(nil)

// ValidTripleReader serves the validation triples of one shard, one triple per call to Next.
// All three input files are read into memory when the reader is created. The reader is
// forward only: a new reader has to be built to go over the triples again.
type ValidTripleReader[T any] struct {
	logger     *log.Logger
	collate    CollateFunc[T]
	queries    map[int64]string
	collection map[int64]string
	triples    []Triple
	position   int
}

// NewValidTripleReader loads the triples of shard opts.Rank, the queries and the collection,
// in that order. Any unreadable file or malformed line aborts the construction.
// collate may be nil if only NextRaw is going to be used.
func NewValidTripleReader[T any](opts *options.Options, collate CollateFunc[T]) (*ValidTripleReader[T], error) {
	if opts == nil {
		return nil, errors.New("options are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &ValidTripleReader[T]{
		logger:  opts.Logger,
		collate: collate,
	}

	var err error
	if r.triples, err = LoadTriples(opts.Logger, opts.TriplesPath, opts.Rank, opts.NRanks); err != nil {
		return nil, err
	}
	if r.queries, err = LoadQueries(opts.Logger, opts.QueriesPath); err != nil {
		return nil, err
	}
	if r.collection, err = LoadCollection(opts.Logger, opts.CollectionPath); err != nil {
		return nil, err
	}

	if opts.StrictReferences {
		if err = r.checkReferences(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Len returns the number of triples in this shard.
func (r *ValidTripleReader[T]) Len() int {
	return len(r.triples)
}

// Position returns the index of the next triple to be served.
func (r *ValidTripleReader[T]) Position() int {
	return r.position
}

// Triples returns a copy of the triples of this shard in file order.
func (r *ValidTripleReader[T]) Triples() []Triple {
	return slices.Clone(r.triples)
}

// Next returns the collated inputs for the next triple, or io.EOF once all triples have
// been served. The cursor moves past the triple even if its ids cannot be resolved.
func (r *ValidTripleReader[T]) Next() (T, error) {
	var out T
	if r.collate == nil {
		return out, errors.New("reader has no collate function")
	}
	resolved, err := r.NextRaw()
	if err != nil {
		return out, err
	}
	return r.collateOne([]string{resolved.Query}, []string{resolved.Positive}, []string{resolved.Negative})
}

// NextRaw is Next without collation: it returns the resolved texts of the next triple.
func (r *ValidTripleReader[T]) NextRaw() (ResolvedTriple, error) {
	if r.position >= len(r.triples) {
		return ResolvedTriple{}, io.EOF
	}
	position := r.position
	r.position++
	return r.resolve(position)
}

func (r *ValidTripleReader[T]) resolve(position int) (ResolvedTriple, error) {
	triple := r.triples[position]
	query, ok := r.queries[triple.QueryID]
	if !ok {
		return ResolvedTriple{}, &ReferenceError{Kind: "query", ID: triple.QueryID, Position: position}
	}
	positive, ok := r.collection[triple.PositiveID]
	if !ok {
		return ResolvedTriple{}, &ReferenceError{Kind: "passage", ID: triple.PositiveID, Position: position}
	}
	negative, ok := r.collection[triple.NegativeID]
	if !ok {
		return ResolvedTriple{}, &ReferenceError{Kind: "passage", ID: triple.NegativeID, Position: position}
	}
	return ResolvedTriple{Query: query, Positive: positive, Negative: negative}, nil
}

func (r *ValidTripleReader[T]) collateOne(queries, positives, negatives []string) (T, error) {
	if len(queries) != 1 || len(positives) != 1 || len(negatives) != 1 {
		var out T
		return out, fmt.Errorf("collate expects one query, positive and negative, got %d, %d, %d",
			len(queries), len(positives), len(negatives))
	}
	return r.collate(queries, positives, negatives, 1)
}

func (r *ValidTripleReader[T]) checkReferences() error {
	var errs []error
	for i := range r.triples {
		if _, err := r.resolve(i); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.logger.Error().Int("count", len(errs)).Msg("triples reference unknown ids")
	}
	return errors.Join(errs...)
}
