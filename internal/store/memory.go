package store

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

const btreeDegree = 32

func lessByID(a, b *model.VariantRecord) bool {
	return a.ID < b.ID
}

// Memory is an in-process Store backed by a B-tree ordered by record ID.
// Find returns a point-in-time snapshot, so records written while a cursor
// is open are not seen by that cursor.
type Memory struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[*model.VariantRecord]
	closed bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tree: btree.NewG(btreeDegree, lessByID)}
}

// Put upserts records without the duplicate check of InsertMany. It is
// intended for seeding.
func (m *Memory) Put(records ...*model.VariantRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.tree.ReplaceOrInsert(r.Clone())
	}
}

// Get returns a copy of the record with the given ID.
func (m *Memory) Get(id string) (*model.VariantRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tree.Get(&model.VariantRecord{ID: id})
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// All returns copies of every record in ID order.
func (m *Memory) All() []*model.VariantRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.VariantRecord, 0, m.tree.Len())
	m.tree.Ascend(func(r *model.VariantRecord) bool {
		out = append(out, r.Clone())
		return true
	})
	return out
}

// Find implements Store.
func (m *Memory) Find(_ context.Context, f Filter) (Cursor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var matched []*model.VariantRecord
	m.tree.Ascend(func(r *model.VariantRecord) bool {
		if f.Matches(r) {
			matched = append(matched, r.Clone())
		}
		return true
	})
	return &sliceCursor{records: matched}, nil
}

// InsertMany implements Store.
func (m *Memory) InsertMany(_ context.Context, records []*model.VariantRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, r := range records {
		if m.tree.Has(r) {
			continue
		}
		m.tree.ReplaceOrInsert(r.Clone())
		n++
	}
	return n, nil
}

// DeleteMany implements Store.
func (m *Memory) DeleteMany(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, id := range ids {
		if _, ok := m.tree.Delete(&model.VariantRecord{ID: id}); ok {
			n++
		}
	}
	return n, nil
}

// Close implements Store. A closed Memory store keeps its contents so tests
// can inspect them.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
