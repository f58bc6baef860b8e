package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cockroachdb/pebble"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// Key layout:
//
//	'r' id                    -> BSON encoded record
//	'i' seq 0x00 study 0x00 id -> empty; the (seq, study) index
const (
	recordPrefix = 'r'
	indexPrefix  = 'i'
	keySep       = 0x00
)

func recordKey(id string) []byte {
	k := make([]byte, 0, 1+len(id))
	k = append(k, recordPrefix)
	return append(k, id...)
}

func indexPrefixKey(seq, study string) []byte {
	k := make([]byte, 0, 3+len(seq)+len(study))
	k = append(k, indexPrefix)
	k = append(k, seq...)
	k = append(k, keySep)
	k = append(k, study...)
	return append(k, keySep)
}

func indexKey(r *model.VariantRecord) []byte {
	return append(indexPrefixKey(r.SequenceAccession, r.Study), r.ID...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix. Index prefixes end in 0x00, so incrementing the last byte
// never overflows.
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}

// Pebble is a Store persisted in a local Pebble database. Records are BSON
// encoded so every document field survives a round trip, and a secondary
// index on (seq, study) serves Find without a full scan.
type Pebble struct {
	db     *pebble.DB
	logger *slog.Logger
}

// OpenPebble opens or creates a Pebble store at dir. opts may be nil.
func OpenPebble(dir string, opts *pebble.Options, logger *slog.Logger) (*Pebble, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening pebble store %s: %w", dir, err)
	}
	logger.Info("pebble store opened", "path", dir)
	return &Pebble{db: db, logger: logger}, nil
}

// Find implements Store. The cursor reads from a snapshot taken when Find
// is called.
func (p *Pebble) Find(_ context.Context, f Filter) (Cursor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	studies := slices.Clone(f.Studies)
	slices.Sort(studies)
	studies = slices.Compact(studies)
	return &pebbleCursor{
		snap:    p.db.NewSnapshot(),
		seq:     f.SequenceAccession,
		studies: studies,
	}, nil
}

// InsertMany implements Store. Existing IDs and duplicates within records
// are skipped.
func (p *Pebble) InsertMany(_ context.Context, records []*model.VariantRecord) (int, error) {
	b := p.db.NewBatch()
	defer b.Close()

	seen := make(map[string]struct{}, len(records))
	n := 0
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		exists, err := p.has(recordKey(r.ID))
		if err != nil {
			return 0, err
		}
		if exists {
			p.logger.Debug("insert skipped, id exists", "id", r.ID)
			continue
		}
		doc, err := bson.Marshal(r)
		if err != nil {
			p.logger.Warn("insert skipped, record not encodable", "id", r.ID, "error", err)
			continue
		}
		if err := b.Set(recordKey(r.ID), doc, nil); err != nil {
			return 0, fmt.Errorf("staging insert of %s: %w", r.ID, err)
		}
		if err := b.Set(indexKey(r), nil, nil); err != nil {
			return 0, fmt.Errorf("staging index of %s: %w", r.ID, err)
		}
		n++
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing inserts: %w", err)
	}
	return n, nil
}

// DeleteMany implements Store.
func (p *Pebble) DeleteMany(_ context.Context, ids []string) (int, error) {
	b := p.db.NewBatch()
	defer b.Close()

	seen := make(map[string]struct{}, len(ids))
	n := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		r, err := getRecord(p.db, id)
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if err := b.Delete(recordKey(id), nil); err != nil {
			return 0, fmt.Errorf("staging delete of %s: %w", id, err)
		}
		if err := b.Delete(indexKey(r), nil); err != nil {
			return 0, fmt.Errorf("staging index delete of %s: %w", id, err)
		}
		n++
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing deletes: %w", err)
	}
	return n, nil
}

// Get returns the record with the given ID.
func (p *Pebble) Get(id string) (*model.VariantRecord, error) {
	return getRecord(p.db, id)
}

// Close implements Store.
func (p *Pebble) Close(context.Context) error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing pebble store: %w", err)
	}
	return nil
}

func (p *Pebble) has(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func getRecord(r pebble.Reader, id string) (*model.VariantRecord, error) {
	val, closer, err := r.Get(recordKey(id))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var rec model.VariantRecord
	if err := bson.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

// pebbleCursor walks the (seq, study) index one study at a time.
type pebbleCursor struct {
	snap    *pebble.Snapshot
	seq     string
	studies []string
	next    int
	it      *pebble.Iterator
	cur     *model.VariantRecord
	err     error
}

func (c *pebbleCursor) Next(context.Context) bool {
	c.cur = nil
	if c.err != nil {
		return false
	}
	for {
		if c.it == nil {
			if c.next >= len(c.studies) {
				return false
			}
			prefix := indexPrefixKey(c.seq, c.studies[c.next])
			c.next++
			it, err := c.snap.NewIter(&pebble.IterOptions{
				LowerBound: prefix,
				UpperBound: prefixUpperBound(prefix),
			})
			if err != nil {
				c.err = err
				return false
			}
			c.it = it
			c.it.First()
		} else {
			c.it.Next()
		}

		if !c.it.Valid() {
			if err := c.it.Close(); err != nil {
				c.err = err
				return false
			}
			c.it = nil
			continue
		}

		key := c.it.Key()
		id := string(key[bytes.LastIndexByte(key, keySep)+1:])
		rec, err := getRecord(c.snap, id)
		if err != nil {
			c.err = fmt.Errorf("reading indexed record %s: %w", id, err)
			return false
		}
		c.cur = rec
		return true
	}
}

func (c *pebbleCursor) Record() *model.VariantRecord { return c.cur }
func (c *pebbleCursor) Err() error                   { return c.err }

func (c *pebbleCursor) Close(context.Context) error {
	var errs []error
	if c.it != nil {
		errs = append(errs, c.it.Close())
		c.it = nil
	}
	if c.snap != nil {
		errs = append(errs, c.snap.Close())
		c.snap = nil
	}
	return errors.Join(errs...)
}
