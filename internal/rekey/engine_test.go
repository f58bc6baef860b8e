package rekey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/contig-rekey/contig-rekey/internal/identity"
	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/synonym"
)

func newTestEngine(t *testing.T, s *recordingStore, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(silentLogger())}, opts...)
	e, err := NewEngine(s, testResolver(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func testRequest() Request {
	return Request{Assembly: testAssembly, Studies: []string{"S1"}}
}

func TestEngine_RekeysSubmittedContig(t *testing.T) {
	orig := newRecord("S1", "chr1", 100)
	if orig.ID != "CCA36B421140C541FCFCBA8EF399F699C7CA61F9" {
		t.Fatalf("unexpected fixture id %s", orig.ID)
	}
	s := newRecordingStore(orig)

	sum, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := model.Summary{Checked: 1, Inserted: 1, Deleted: 1}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("store holds %d records, want 1", len(all))
	}
	got := all[0]
	if got.ID != "DD3EB4B7F5142FD02AE3469A9BA147FAB61D55F2" || got.Contig != "CM000001.1" {
		t.Errorf("rekeyed record = %s", got)
	}
}

func TestEngine_AlreadyCanonicalUntouched(t *testing.T) {
	canonical := newRecord("S1", "CM000001.1", 100)
	s := newRecordingStore(canonical)

	sum, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(model.Summary{Checked: 1, AlreadyCanonical: 1}, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"find"}, s.Ops()); diff != "" {
		t.Errorf("unexpected store calls (-want +got):\n%s", diff)
	}
	if _, ok := s.Get(canonical.ID); !ok {
		t.Error("canonical record removed")
	}
}

func TestEngine_SecondRunIsNoop(t *testing.T) {
	s := newRecordingStore(
		newRecord("S1", "chr1", 1),
		newRecord("S1", "NC_000001.11", 2),
		newRecord("S1", "chr2_ucsc", 3),
		newRecord("S1", "CM000002.1", 4),
	)
	e := newTestEngine(t, s)

	first, err := e.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if diff := cmp.Diff(model.Summary{Checked: 4, AlreadyCanonical: 1, Inserted: 3, Deleted: 3}, first); diff != "" {
		t.Errorf("first summary mismatch (-want +got):\n%s", diff)
	}

	second, err := e.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff(model.Summary{Checked: 4, AlreadyCanonical: 4}, second); diff != "" {
		t.Errorf("second summary mismatch (-want +got):\n%s", diff)
	}
	for _, r := range s.All() {
		if err := identity.Verify(r); err != nil {
			t.Errorf("stored record fails verification: %v", err)
		}
	}
}

func TestEngine_FilterScopesStudies(t *testing.T) {
	inScope := newRecord("S1", "chr1", 1)
	otherStudy := newRecord("S9", "chr1", 1)
	otherAssembly := newRecord("S1", "chr1", 1)
	otherAssembly.SequenceAccession = "GCA_2"
	otherAssembly.ID = identity.ID(otherAssembly)
	s := newRecordingStore(inScope, otherStudy, otherAssembly)

	sum, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Checked != 1 {
		t.Errorf("Checked = %d, want 1", sum.Checked)
	}
	for _, r := range []*model.VariantRecord{otherStudy, otherAssembly} {
		if _, ok := s.Get(r.ID); !ok {
			t.Errorf("out-of-scope record %s was rewritten", r)
		}
	}
}

func TestEngine_ReconcilesAcrossBatches(t *testing.T) {
	var records []*model.VariantRecord
	for i := int64(1); i <= 7; i++ {
		records = append(records, newRecord("S1", "chr1", i))
	}
	s := newRecordingStore(records...)

	sum, err := newTestEngine(t, s, WithBatchSize(3)).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Reconciled() || sum.Inserted != 7 {
		t.Errorf("summary = %+v, want 7 reconciled rewrites", sum)
	}
	wantOps := []string{"find", "insert", "delete", "insert", "delete", "insert", "delete"}
	if diff := cmp.Diff(wantOps, s.Ops()); diff != "" {
		t.Errorf("op order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MismatchIsFatal(t *testing.T) {
	good := newRecord("S1", "chr1", 1)
	bad := newRecord("S1", "chr1", 2)
	// The corrupted ID sorts after every real one, so the good record is
	// read and committed first.
	bad.ID = strings.Repeat("F", 40)
	s := newRecordingStore(good, bad)

	sum, err := newTestEngine(t, s, WithBatchSize(1)).Run(context.Background(), testRequest())
	var mismatch *identity.IDMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected IDMismatchError, got %v", err)
	}
	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.RecordID != bad.ID {
		t.Errorf("error does not name the offending record: %v", err)
	}
	if FailureKind(err) != KindIDMismatch {
		t.Errorf("FailureKind = %q", FailureKind(err))
	}
	if diff := cmp.Diff(model.Summary{Checked: 1, Inserted: 1, Deleted: 1}, sum); diff != "" {
		t.Errorf("partial summary mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Get(bad.ID); !ok {
		t.Error("mismatched record was touched")
	}
}

func TestEngine_MismatchBeforeAnyWrite(t *testing.T) {
	bad := newRecord("S1", "chr1", 2)
	bad.ID = strings.Repeat("0", 40)
	s := newRecordingStore(bad, newRecord("S1", "chr1", 1))

	_, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if FailureKind(err) != KindIDMismatch {
		t.Fatalf("expected id mismatch, got %v", err)
	}
	if diff := cmp.Diff([]string{"find"}, s.Ops()); diff != "" {
		t.Errorf("store was written (-want +got):\n%s", diff)
	}
}

func TestEngine_UnresolvedContigIsFatal(t *testing.T) {
	s := newRecordingStore(newRecord("S1", "chrUn_xyz", 1), newRecord("S1", "chr1", 2))

	_, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if !errors.Is(err, synonym.ErrNoSynonym) {
		t.Fatalf("expected ErrNoSynonym, got %v", err)
	}
	if FailureKind(err) != KindUnresolvedContig {
		t.Errorf("FailureKind = %q", FailureKind(err))
	}
	for _, op := range s.Ops() {
		if op != "find" {
			t.Errorf("unexpected write %q after unresolved contig", op)
		}
	}
}

func TestEngine_PartialWritesAreReported(t *testing.T) {
	s := newRecordingStore(newRecord("S1", "chr1", 1), newRecord("S1", "chr1", 2))
	s.insertCap = 1

	sum, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Inserted != 1 || sum.Deleted != 2 {
		t.Errorf("summary = %+v, want 1 inserted and 2 deleted", sum)
	}
	if sum.Reconciled() {
		t.Error("partial write reported as reconciled")
	}
}

func TestEngine_InsertFailureStopsRun(t *testing.T) {
	s := newRecordingStore(newRecord("S1", "chr1", 1))
	s.insertErr = errBoom

	_, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	if !errors.Is(err, errBoom) || FailureKind(err) != KindStore {
		t.Fatalf("expected store failure, got %v", err)
	}
	if diff := cmp.Diff([]string{"find", "insert"}, s.Ops()); diff != "" {
		t.Errorf("op order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_FindFailure(t *testing.T) {
	s := newRecordingStore()
	s.findErr = errBoom

	_, err := newTestEngine(t, s).Run(context.Background(), testRequest())
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "find" {
		t.Fatalf("expected find StoreError, got %v", err)
	}
}

func TestEngine_DryRun(t *testing.T) {
	orig := newRecord("S1", "chr1", 1)
	s := newRecordingStore(orig, newRecord("S1", "CM000001.1", 2))

	sum, err := newTestEngine(t, s, WithDryRun(true)).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(model.Summary{Checked: 2, AlreadyCanonical: 1, Staged: 1}, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"find"}, s.Ops()); diff != "" {
		t.Errorf("dry run wrote to the store (-want +got):\n%s", diff)
	}
	if _, ok := s.Get(orig.ID); !ok {
		t.Error("dry run removed the original")
	}
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	s := newRecordingStore(
		newRecord("S1", "chr1", 1),
		newRecord("S1", "chr1", 2),
		newRecord("S1", "CM000002.1", 3),
	)

	if _, err := newTestEngine(t, s, WithMetrics(m)).Run(context.Background(), testRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := testutil.ToFloat64(m.RecordsCheckedTotal); got != 3 {
		t.Errorf("checked = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.AlreadyCanonicalTotal); got != 1 {
		t.Errorf("already canonical = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(synonym.StrategyName)); got != 2 {
		t.Errorf("name resolutions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(synonym.StrategyGenbank)); got != 1 {
		t.Errorf("genbank resolutions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecordsInsertedTotal); got != 2 {
		t.Errorf("inserted = %v, want 2", got)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	s := newRecordingStore()
	if _, err := NewEngine(nil, testResolver()); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewEngine(s, nil); err == nil {
		t.Error("expected error for nil resolver")
	}
	if _, err := NewEngine(s, testResolver(), WithBatchSize(0)); err == nil {
		t.Error("expected error for zero batch size")
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Assembly: "GCA_1", Studies: []string{"S1", "S2"}}, false},
		{"no assembly", Request{Studies: []string{"S1"}}, true},
		{"no studies", Request{Assembly: "GCA_1"}, true},
		{"blank study", Request{Assembly: "GCA_1", Studies: []string{"S1", ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"mismatch", &RecordError{RecordID: "X", Err: &identity.IDMismatchError{Stored: "X", Computed: "Y"}}, KindIDMismatch},
		{"unresolved", &RecordError{RecordID: "X", Err: &synonym.UnresolvedContigError{Contig: "c"}}, KindUnresolvedContig},
		{"assembly not found", synonym.ErrAssemblyNotFound, KindSynonymSource},
		{"malformed report", &synonym.SourceError{Assembly: "GCA_1", Err: errors.New("line 3: expected at least 9 columns, got 2")}, KindSynonymSource},
		{"wrapped source error", fmt.Errorf("run: %w", &synonym.SourceError{Assembly: "GCA_1", Err: errBoom}), KindSynonymSource},
		{"store", &StoreError{Op: "insert", Err: errBoom}, KindStore},
		{"unknown", errBoom, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureKind(tt.err); got != tt.want {
				t.Errorf("FailureKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
