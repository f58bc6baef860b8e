// Package sink delivers run reports to the log, Slack, a generic webhook,
// and S3.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// Sink delivers run reports to one destination. Implementations must be
// safe for concurrent use.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Deliver sends report, retrying transient failures.
	Deliver(ctx context.Context, report *model.RunReport) error
	// Filter selects the reports the sink receives.
	Filter() Filter
}

// Filter selects which run reports a sink receives.
type Filter struct {
	// Severities limits delivery to these severities. Empty means all.
	Severities []model.Severity
	// DryRuns enables delivery of dry-run reports, which are dropped
	// otherwise.
	DryRuns bool
}

// Allows reports whether a sink with this filter should receive report.
func (f Filter) Allows(report *model.RunReport) bool {
	if report.Outcome == model.OutcomeDryRun && !f.DryRuns {
		return false
	}
	return len(f.Severities) == 0 || slices.Contains(f.Severities, report.Severity)
}

// backoff is a retry schedule: up to attempts tries, waiting first after
// the first failure and multiplying the wait by factor after each further
// failure.
type backoff struct {
	attempts int
	first    time.Duration
	factor   int
}

// defaultBackoff waits 1s then 5s between three attempts.
func defaultBackoff() backoff {
	return backoff{attempts: 3, first: time.Second, factor: 5}
}

// wait returns the pause after the n-th failed attempt, counting from 1.
func (b backoff) wait(n int) time.Duration {
	d := b.first
	for i := 1; i < n; i++ {
		d *= time.Duration(b.factor)
	}
	return d
}

// retry calls send until it succeeds, fails permanently, or the schedule
// is exhausted.
func retry(ctx context.Context, logger *slog.Logger, sink string, b backoff, send func(context.Context) error) error {
	var err error
	for n := 1; n <= b.attempts; n++ {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%s sink: abandoned before attempt %d: %w", sink, n, cerr)
		}
		if err = send(ctx); err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		logger.Warn("report delivery attempt failed",
			"sink", sink,
			"attempt", n,
			"attempts", b.attempts,
			"error", err,
		)
		if n == b.attempts {
			break
		}
		t := time.NewTimer(b.wait(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s sink: abandoned during backoff: %w", sink, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("%s sink: gave up after %d attempts: %w", sink, b.attempts, err)
}
