package rekey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/contig-rekey/contig-rekey/internal/identity"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/store"
	"github.com/contig-rekey/contig-rekey/internal/synonym"
)

const testAssembly = "GCA_1"

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRecord builds a record of testAssembly with a consistent ID.
func newRecord(study, contig string, start int64) *model.VariantRecord {
	r := &model.VariantRecord{
		SequenceAccession: testAssembly,
		Study:             study,
		Contig:            contig,
		Start:             start,
		ReferenceAllele:   "A",
		AlternateAllele:   "T",
	}
	r.ID = identity.ID(r)
	return r
}

func testResolver() *synonym.Resolver {
	return synonym.NewResolver([]model.SynonymEntry{
		{
			Genbank:                  "CM000001.1",
			Name:                     "chr1",
			RefSeq:                   "NC_000001.11",
			RefSeqIdenticalToGenbank: true,
		},
		{
			Genbank: "CM000002.1",
			Name:    "chr2",
			UCSC:    "chr2_ucsc",
		},
	})
}

// recordingStore wraps a Memory store, records the order of write calls,
// and lets tests override the write results.
type recordingStore struct {
	*store.Memory

	mu  sync.Mutex
	ops []string

	findErr   error
	insertErr error
	deleteErr error
	// insertCap and deleteCap cap how many documents of each call are
	// applied; 0 means no cap.
	insertCap int
	deleteCap int
}

func newRecordingStore(records ...*model.VariantRecord) *recordingStore {
	m := store.NewMemory()
	m.Put(records...)
	return &recordingStore{Memory: m}
}

func (s *recordingStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *recordingStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *recordingStore) Find(ctx context.Context, f store.Filter) (store.Cursor, error) {
	s.record("find")
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Memory.Find(ctx, f)
}

func (s *recordingStore) InsertMany(ctx context.Context, records []*model.VariantRecord) (int, error) {
	s.record("insert")
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	if s.insertCap > 0 && len(records) > s.insertCap {
		records = records[:s.insertCap]
	}
	return s.Memory.InsertMany(ctx, records)
}

func (s *recordingStore) DeleteMany(ctx context.Context, ids []string) (int, error) {
	s.record("delete")
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	if s.deleteCap > 0 && len(ids) > s.deleteCap {
		ids = ids[:s.deleteCap]
	}
	return s.Memory.DeleteMany(ctx, ids)
}

var errBoom = errors.New("boom")
