package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
)

// Registry manages the set of active sinks. It provides thread-safe
// registration, lookup, and fan-out delivery to all registered sinks.
type Registry struct {
	mu      sync.RWMutex
	sinks   map[string]Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a new sink Registry. If logger is nil, slog.Default()
// is used. The metrics parameter may be nil if metric recording is not needed
// (e.g., in tests).
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sinks:   make(map[string]Sink),
		logger:  logger,
		metrics: m,
	}
}

// Register adds a sink to the registry. Returns an error if a sink with the
// same name is already registered.
func (r *Registry) Register(s Sink) error {
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}

	name := s.Name()
	if name == "" {
		return fmt.Errorf("sink name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("sink %q is already registered", name)
	}

	r.sinks[name] = s
	r.logger.Debug("sink registered", "sink", name)
	return nil
}

// Get returns the sink with the given name, or nil if not found.
func (r *Registry) Get(name string) Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sinks[name]
}

// Count returns the number of registered sinks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Names returns the sorted names of all registered sinks.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeliverAll fans out a run report to all registered sinks whose filter
// allows it. Sinks are delivered to concurrently and one
// sink's failure does not block or cancel the others. Delivery errors are
// logged and counted in metrics; the method returns the count of failed
// deliveries.
func (r *Registry) DeliverAll(ctx context.Context, report *model.RunReport) int {
	if report == nil {
		r.logger.Error("DeliverAll called with nil report")
		return 0
	}

	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	r.mu.RUnlock()

	var (
		g        errgroup.Group
		failures atomic.Int32
	)
	for _, s := range sinks {
		if !s.Filter().Allows(report) {
			r.logger.Debug("sink skipped by filter",
				"sink", s.Name(),
				"severity", string(report.Severity),
				"outcome", string(report.Outcome),
			)
			continue
		}

		g.Go(func() error {
			if err := s.Deliver(ctx, report); err != nil {
				failures.Add(1)
				r.logger.Error("sink delivery failed",
					"sink", s.Name(),
					"run_id", report.RunID,
					"error", err,
				)
				r.count(s.Name(), "failure")
				return nil
			}
			r.logger.Debug("sink delivery succeeded",
				"sink", s.Name(),
				"run_id", report.RunID,
			)
			r.count(s.Name(), "success")
			return nil
		})
	}
	_ = g.Wait()
	return int(failures.Load())
}

func (r *Registry) count(sinkName, status string) {
	if r.metrics != nil {
		r.metrics.SinkDeliveriesTotal.WithLabelValues(sinkName, status).Inc()
	}
}
