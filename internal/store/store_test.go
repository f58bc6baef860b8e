package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rec(id, seq, study string) *model.VariantRecord {
	return &model.VariantRecord{
		ID:                id,
		SequenceAccession: seq,
		Study:             study,
		Contig:            "chr1",
		Start:             100,
		ReferenceAllele:   "A",
		AlternateAllele:   "T",
		Extra:             bson.M{"accession": int64(7)},
	}
}

// backends returns a fresh instance of every locally testable Store.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	p, err := OpenPebble("db", &pebble.Options{FS: vfs.NewMem()}, silentLogger())
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return map[string]Store{
		"memory": NewMemory(),
		"pebble": p,
	}
}

func collect(t *testing.T, s Store, f Filter) []*model.VariantRecord {
	t.Helper()
	ctx := context.Background()
	cur, err := s.Find(ctx, f)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	defer cur.Close(ctx)
	var out []*model.VariantRecord
	for cur.Next(ctx) {
		out = append(out, cur.Record())
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func ids(records []*model.VariantRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStore_InsertFindDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := s.InsertMany(ctx, []*model.VariantRecord{
				rec("A1", "GCA_1", "S1"),
				rec("A2", "GCA_1", "S2"),
				rec("A3", "GCA_1", "S3"),
				rec("B1", "GCA_2", "S1"),
			})
			if err != nil {
				t.Fatalf("InsertMany: %v", err)
			}
			if n != 4 {
				t.Errorf("inserted %d, want 4", n)
			}

			got := collect(t, s, Filter{SequenceAccession: "GCA_1", Studies: []string{"S1", "S2"}})
			if diff := cmp.Diff([]string{"A1", "A2"}, ids(got)); diff != "" {
				t.Errorf("Find mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(rec("A1", "GCA_1", "S1"), got[0]); diff != "" {
				t.Errorf("record round trip mismatch (-want +got):\n%s", diff)
			}

			n, err = s.DeleteMany(ctx, []string{"A1", "A2", "missing"})
			if err != nil {
				t.Fatalf("DeleteMany: %v", err)
			}
			if n != 2 {
				t.Errorf("deleted %d, want 2", n)
			}
			if got := collect(t, s, Filter{SequenceAccession: "GCA_1", Studies: []string{"S1", "S2", "S3"}}); len(got) != 1 || got[0].ID != "A3" {
				t.Errorf("after delete got %v, want [A3]", ids(got))
			}
		})
	}
}

func TestStore_InsertSkipsExistingIDs(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.InsertMany(ctx, []*model.VariantRecord{rec("A1", "GCA_1", "S1")}); err != nil {
				t.Fatal(err)
			}
			n, err := s.InsertMany(ctx, []*model.VariantRecord{
				rec("A1", "GCA_1", "S1"),
				rec("A2", "GCA_1", "S1"),
				rec("A2", "GCA_1", "S1"),
			})
			if err != nil {
				t.Fatalf("InsertMany: %v", err)
			}
			if n != 1 {
				t.Errorf("inserted %d, want 1 (one existing id, one duplicate in batch)", n)
			}
		})
	}
}

func TestStore_DeleteDuplicateIDsCountOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.InsertMany(ctx, []*model.VariantRecord{rec("A1", "GCA_1", "S1")}); err != nil {
				t.Fatal(err)
			}
			n, err := s.DeleteMany(ctx, []string{"A1", "A1"})
			if err != nil {
				t.Fatal(err)
			}
			if n != 1 {
				t.Errorf("deleted %d, want 1", n)
			}
		})
	}
}

func TestStore_CursorIsSnapshot(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.InsertMany(ctx, []*model.VariantRecord{rec("A1", "GCA_1", "S1")}); err != nil {
				t.Fatal(err)
			}
			cur, err := s.Find(ctx, Filter{SequenceAccession: "GCA_1", Studies: []string{"S1"}})
			if err != nil {
				t.Fatal(err)
			}
			defer cur.Close(ctx)

			if _, err := s.InsertMany(ctx, []*model.VariantRecord{rec("A2", "GCA_1", "S1")}); err != nil {
				t.Fatal(err)
			}
			var seen []string
			for cur.Next(ctx) {
				seen = append(seen, cur.Record().ID)
			}
			if diff := cmp.Diff([]string{"A1"}, seen); diff != "" {
				t.Errorf("cursor saw writes made after Find (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_FindRejectsEmptyFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, f := range []Filter{{}, {SequenceAccession: "GCA_1"}, {Studies: []string{"S1"}}} {
				if _, err := s.Find(context.Background(), f); !errors.Is(err, ErrEmptyFilter) {
					t.Errorf("Find(%+v): expected ErrEmptyFilter, got %v", f, err)
				}
			}
		})
	}
}

func TestPebble_ManyStudiesAndRecords(t *testing.T) {
	ctx := context.Background()
	p, err := OpenPebble("db", &pebble.Options{FS: vfs.NewMem()}, silentLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	var batch []*model.VariantRecord
	for i := 0; i < 50; i++ {
		batch = append(batch, rec(fmt.Sprintf("ID%03d", i), "GCA_1", fmt.Sprintf("S%d", i%5)))
	}
	if _, err := p.InsertMany(ctx, batch); err != nil {
		t.Fatal(err)
	}
	got := collect(t, p, Filter{SequenceAccession: "GCA_1", Studies: []string{"S4", "S0", "S0"}})
	if len(got) != 20 {
		t.Errorf("got %d records, want 20", len(got))
	}

	r, err := p.Get("ID007")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Study != "S2" || r.Extra["accession"] != int64(7) {
		t.Errorf("Get returned %+v", r)
	}
	if _, err := p.Get("nope"); !errors.Is(err, pebble.ErrNotFound) {
		t.Errorf("expected pebble.ErrNotFound, got %v", err)
	}
}

func TestMemory_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(rec("A1", "GCA_1", "S1"))
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Find(ctx, Filter{SequenceAccession: "GCA_1", Studies: []string{"S1"}}); !errors.Is(err, ErrClosed) {
		t.Errorf("Find: expected ErrClosed, got %v", err)
	}
	if _, err := m.InsertMany(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("InsertMany: expected ErrClosed, got %v", err)
	}
	if _, err := m.DeleteMany(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("DeleteMany: expected ErrClosed, got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("closed store lost its contents")
	}
}

func TestMongoConfig_URI(t *testing.T) {
	tests := []struct {
		name string
		cfg  MongoConfig
		want string
	}{
		{"host and port", MongoConfig{Host: "mongo.internal", Port: 27018}, "mongodb://mongo.internal:27018"},
		{"default port", MongoConfig{Host: "mongo.internal"}, "mongodb://mongo.internal:27017"},
		{"ipv6", MongoConfig{Host: "::1", Port: 27017}, "mongodb://[::1]:27017"},
		{"full uri", MongoConfig{Host: "mongodb+srv://cluster0.example.net", Port: 1}, "mongodb+srv://cluster0.example.net"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.URI(); got != tt.want {
				t.Errorf("URI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenMongo_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenMongo(ctx, MongoConfig{Database: "d", Collection: "c"}, silentLogger()); err == nil {
		t.Error("expected error for empty host")
	}
	if _, err := OpenMongo(ctx, MongoConfig{Host: "h"}, silentLogger()); err == nil {
		t.Error("expected error for empty database")
	}
}
