// Package rekey rewrites the contig of content-addressed variant records to
// its canonical GenBank accession. Because a record's ID is the hash of its
// fields, a rewrite is an insert of the rekeyed copy followed by a delete of
// the original; records are never updated in place.
package rekey

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contig-rekey/contig-rekey/internal/identity"
	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/store"
	"github.com/contig-rekey/contig-rekey/internal/synonym"
)

// Request selects the records of one run.
type Request struct {
	// Assembly is the sequence accession the records are reported against.
	Assembly string
	// Studies restricts the run to records submitted by these studies.
	Studies []string
}

// Validate reports whether the request is usable.
func (r Request) Validate() error {
	if r.Assembly == "" {
		return fmt.Errorf("assembly must not be empty")
	}
	if len(r.Studies) == 0 {
		return fmt.Errorf("at least one study is required")
	}
	for i, s := range r.Studies {
		if s == "" {
			return fmt.Errorf("studies[%d] must not be empty", i)
		}
	}
	return nil
}

// Resolver maps a contig to its canonical form.
type Resolver interface {
	Resolve(contig string) (synonym.Resolution, error)
}

// Engine runs one rekeying pass over a store. It processes records strictly
// one at a time in cursor order.
type Engine struct {
	store     store.Store
	resolver  Resolver
	batchSize int
	dryRun    bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the number of staged inserts that triggers a flush.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithDryRun resolves and stages rewrites without writing them.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records run counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine over s using r for contig resolution.
func NewEngine(s store.Store, r Resolver, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if r == nil {
		return nil, fmt.Errorf("resolver must not be nil")
	}
	e := &Engine{
		store:     s,
		resolver:  r,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", e.batchSize)
	}
	return e, nil
}

// Run processes every record of req.Assembly submitted by one of
// req.Studies. Each record's stored ID is verified against its fields, its
// contig is resolved, and records that are not already canonical are
// rekeyed. Any fatal error stops the run and discards the unflushed batch;
// batches flushed before the error stay committed. The returned summary
// holds the counts reached so far even when err is non-nil.
func (e *Engine) Run(ctx context.Context, req Request) (model.Summary, error) {
	var sum model.Summary
	if err := req.Validate(); err != nil {
		return sum, err
	}
	logger := e.logger.With("assembly", req.Assembly)

	committer := NewCommitter(e.store, e.batchSize, logger,
		WithCommitterDryRun(e.dryRun),
		WithCommitterMetrics(e.metrics),
	)
	var totals BatchResult
	flush := func() error {
		res, err := committer.Flush(ctx)
		totals.Add(res)
		return err
	}

	cur, err := e.store.Find(ctx, store.Filter{SequenceAccession: req.Assembly, Studies: req.Studies})
	if err != nil {
		return sum, &StoreError{Op: "find", Err: err}
	}
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil {
			logger.Warn("closing cursor", "error", cerr)
		}
	}()

	logger.Info("rekeying started", "studies", req.Studies, "batch_size", e.batchSize, "dry_run", e.dryRun)

	mappings := make(map[string]string)
	fail := func(err error) (model.Summary, error) {
		committer.Discard()
		sum.Inserted, sum.Deleted, sum.Staged = totals.Inserted, totals.Deleted, totals.Staged
		return sum, err
	}

	for cur.Next(ctx) {
		r := cur.Record()
		if err := identity.Verify(r); err != nil {
			return fail(&RecordError{RecordID: r.ID, Err: err})
		}
		res, err := e.resolver.Resolve(r.Contig)
		if err != nil {
			return fail(&RecordError{RecordID: r.ID, Err: err})
		}
		sum.Checked++
		e.observe(res)

		if res.AlreadyCanonical {
			sum.AlreadyCanonical++
			continue
		}
		if _, seen := mappings[r.Contig]; !seen {
			mappings[r.Contig] = res.Canonical
			logger.Debug("contig mapping", "contig", r.Contig, "canonical", res.Canonical, "strategy", res.Strategy)
		}
		committer.Stage(identity.Rekey(r, res.Canonical), r.ID)

		if committer.Full() {
			if err := flush(); err != nil {
				return fail(err)
			}
		}
	}
	if err := cur.Err(); err != nil {
		return fail(&StoreError{Op: "cursor", Err: err})
	}
	if err := flush(); err != nil {
		return fail(err)
	}

	sum.Inserted, sum.Deleted, sum.Staged = totals.Inserted, totals.Deleted, totals.Staged

	attrs := []any{
		"checked", sum.Checked,
		"already_canonical", sum.AlreadyCanonical,
		"inserted", sum.Inserted,
		"deleted", sum.Deleted,
		"distinct_contigs_rewritten", len(mappings),
	}
	switch {
	case e.dryRun:
		logger.Info("dry run completed", append(attrs, "staged", sum.Staged)...)
	case !sum.Reconciled():
		logger.Warn("rekeying completed with unreconciled counts", attrs...)
	default:
		logger.Info("rekeying completed", attrs...)
	}
	return sum, nil
}

func (e *Engine) observe(res synonym.Resolution) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordsCheckedTotal.Inc()
	e.metrics.ResolutionsTotal.WithLabelValues(res.Strategy).Inc()
	if res.AlreadyCanonical {
		e.metrics.AlreadyCanonicalTotal.Inc()
	}
}
