// Package store defines the document store consumed by the rekeying engine
// and provides MongoDB, Pebble, and in-memory implementations.
//
// Writes are unordered bulk operations: one failing document never stops
// the rest of the batch, and the returned count is the number of documents
// the store actually applied.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// Sentinel errors shared by the implementations.
var (
	ErrClosed      = errors.New("store: closed")
	ErrEmptyFilter = errors.New("store: filter needs a sequence accession and at least one study")
)

// Filter selects the records of one assembly submitted by any of a set of
// studies.
type Filter struct {
	SequenceAccession string
	Studies           []string
}

// Validate reports whether the filter is usable.
func (f Filter) Validate() error {
	if f.SequenceAccession == "" || len(f.Studies) == 0 {
		return ErrEmptyFilter
	}
	return nil
}

// Matches reports whether r is selected by f.
func (f Filter) Matches(r *model.VariantRecord) bool {
	return r.SequenceAccession == f.SequenceAccession && slices.Contains(f.Studies, r.Study)
}

// Store is a document store keyed by record ID.
type Store interface {
	// Find streams the records matching f. The order is store dependent.
	Find(ctx context.Context, f Filter) (Cursor, error)
	// InsertMany inserts records, skipping any whose ID already exists,
	// and returns how many were inserted.
	InsertMany(ctx context.Context, records []*model.VariantRecord) (int, error)
	// DeleteMany deletes records by ID and returns how many existed and
	// were deleted.
	DeleteMany(ctx context.Context, ids []string) (int, error)
	// Close releases the connection.
	Close(ctx context.Context) error
}

// Cursor iterates over query results.
type Cursor interface {
	// Next advances to the next record and reports whether there is one.
	Next(ctx context.Context) bool
	// Record returns the current record. The caller owns the value.
	Record() *model.VariantRecord
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases the cursor.
	Close(ctx context.Context) error
}

// sliceCursor iterates over a materialized result set.
type sliceCursor struct {
	records []*model.VariantRecord
	pos     int
	cur     *model.VariantRecord
}

func (c *sliceCursor) Next(context.Context) bool {
	if c.pos >= len(c.records) {
		c.cur = nil
		return false
	}
	c.cur = c.records[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) Record() *model.VariantRecord { return c.cur }
func (c *sliceCursor) Err() error                   { return nil }
func (c *sliceCursor) Close(context.Context) error  { return nil }
