package rekey

import (
	"context"
	"log/slog"
	"time"

	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/store"
)

// DefaultBatchSize is the number of staged inserts that triggers a flush.
const DefaultBatchSize = 1000

// BatchResult holds what one flush applied.
type BatchResult struct {
	Inserted int
	Deleted  int
	// Staged counts the pairs discarded by a dry-run flush.
	Staged int
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Inserted += other.Inserted
	r.Deleted += other.Deleted
	r.Staged += other.Staged
}

// Committer stages insert/delete pairs and writes them in bounded batches.
// It is not safe for concurrent use.
type Committer struct {
	store     store.Store
	batchSize int
	dryRun    bool
	logger    *slog.Logger
	metrics   *metrics.Metrics

	inserts []*model.VariantRecord
	deletes []string
}

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithCommitterDryRun makes Flush discard staged pairs instead of writing them.
func WithCommitterDryRun(dryRun bool) CommitterOption {
	return func(c *Committer) { c.dryRun = dryRun }
}

// WithCommitterMetrics records flush counts and latency in m.
func WithCommitterMetrics(m *metrics.Metrics) CommitterOption {
	return func(c *Committer) { c.metrics = m }
}

// NewCommitter creates a Committer over s. A batchSize below 1 selects
// DefaultBatchSize. If logger is nil, slog.Default() is used.
func NewCommitter(s store.Store, batchSize int, logger *slog.Logger, opts ...CommitterOption) *Committer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Committer{
		store:     s,
		batchSize: batchSize,
		logger:    logger,
		inserts:   make([]*model.VariantRecord, 0, batchSize),
		deletes:   make([]string, 0, batchSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stage queues the insert of rekeyed and the delete of originalID.
func (c *Committer) Stage(rekeyed *model.VariantRecord, originalID string) {
	c.inserts = append(c.inserts, rekeyed)
	c.deletes = append(c.deletes, originalID)
}

// Pending returns the number of staged pairs.
func (c *Committer) Pending() int {
	return len(c.inserts)
}

// Full reports whether the staged inserts reached the batch size.
func (c *Committer) Full() bool {
	return len(c.inserts) >= c.batchSize
}

// Discard drops every staged pair without writing.
func (c *Committer) Discard() {
	if n := len(c.inserts); n > 0 {
		c.logger.Warn("discarding staged batch", "pairs", n)
	}
	c.reset()
}

// Flush writes staged inserts as one unordered bulk insert, then staged
// deletes as one unordered bulk delete, then clears both queues. Inserts
// go first so that a crash between the two calls leaves a duplicate rather
// than a gap. Partial writes are reported through the counts, not as an
// error; an error means the store call itself failed.
func (c *Committer) Flush(ctx context.Context) (BatchResult, error) {
	n := len(c.inserts)
	if n == 0 {
		return BatchResult{}, nil
	}
	if c.dryRun {
		c.reset()
		c.logger.Debug("dry run: batch discarded", "pairs", n)
		return BatchResult{Staged: n}, nil
	}

	start := time.Now()
	var res BatchResult
	inserted, err := c.store.InsertMany(ctx, c.inserts)
	if err != nil {
		return res, &StoreError{Op: "insert", Err: err}
	}
	res.Inserted = inserted

	deleted, err := c.store.DeleteMany(ctx, c.deletes)
	if err != nil {
		return res, &StoreError{Op: "delete", Err: err}
	}
	res.Deleted = deleted
	c.reset()

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.BatchFlushDuration.Observe(elapsed.Seconds())
		c.metrics.RecordsInsertedTotal.Add(float64(res.Inserted))
		c.metrics.RecordsDeletedTotal.Add(float64(res.Deleted))
	}
	if res.Inserted != n || res.Deleted != n {
		c.logger.Warn("batch partially applied",
			"staged", n,
			"inserted", res.Inserted,
			"deleted", res.Deleted,
		)
	} else {
		c.logger.Debug("batch flushed", "pairs", n, "duration", elapsed)
	}
	return res, nil
}

func (c *Committer) reset() {
	clear(c.inserts)
	c.inserts = c.inserts[:0]
	c.deletes = c.deletes[:0]
}
