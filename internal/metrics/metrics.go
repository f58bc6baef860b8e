// Package metrics defines and registers all Prometheus metrics for a
// rekeying run. Consumers obtain a *Metrics instance via NewMetrics() and
// use the exported fields to record observations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "contig_rekey"
)

// Metrics holds all Prometheus metric collectors for contig-rekey.
type Metrics struct {
	// RecordsCheckedTotal counts records read and hash-verified.
	RecordsCheckedTotal prometheus.Counter

	// AlreadyCanonicalTotal counts records whose contig already was a
	// GenBank accession.
	AlreadyCanonicalTotal prometheus.Counter

	// RecordsInsertedTotal counts rekeyed records the store reported
	// inserted.
	RecordsInsertedTotal prometheus.Counter

	// RecordsDeletedTotal counts original records the store reported
	// deleted.
	RecordsDeletedTotal prometheus.Counter

	// ResolutionsTotal counts contig resolutions, partitioned by the
	// strategy that matched.
	ResolutionsTotal *prometheus.CounterVec

	// BatchFlushDuration observes the time of one insert+delete flush in
	// seconds.
	BatchFlushDuration prometheus.Histogram

	// RunsTotal counts completed runs, partitioned by outcome.
	RunsTotal *prometheus.CounterVec

	// RunFailuresTotal counts failed runs, partitioned by failure kind.
	RunFailuresTotal *prometheus.CounterVec

	// RunDuration reports the wall time of the last run in seconds.
	RunDuration prometheus.Gauge

	// SinkDeliveriesTotal counts run report deliveries, partitioned by sink
	// name and status (success/failure).
	SinkDeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors with
// the provided prometheus.Registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsCheckedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_checked_total",
				Help:      "Total number of records read and hash-verified.",
			},
		),

		AlreadyCanonicalTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_already_canonical_total",
				Help:      "Total number of records already using a GenBank contig.",
			},
		),

		RecordsInsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_inserted_total",
				Help:      "Total number of rekeyed records inserted.",
			},
		),

		RecordsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_deleted_total",
				Help:      "Total number of original records deleted.",
			},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contig_resolutions_total",
				Help:      "Total number of contig resolutions by matching strategy.",
			},
			[]string{"strategy"},
		),

		BatchFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_flush_duration_seconds",
				Help:      "Time spent flushing one insert and delete batch, in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of rekeying runs by outcome.",
			},
			[]string{"outcome"},
		),

		RunFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_failures_total",
				Help:      "Total number of failed rekeying runs by failure kind.",
			},
			[]string{"kind"},
		),

		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last rekeying run in seconds.",
			},
		),

		SinkDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_deliveries_total",
				Help:      "Total number of run report deliveries.",
			},
			[]string{"sink", "status"},
		),
	}

	reg.MustRegister(
		m.RecordsCheckedTotal,
		m.AlreadyCanonicalTotal,
		m.RecordsInsertedTotal,
		m.RecordsDeletedTotal,
		m.ResolutionsTotal,
		m.BatchFlushDuration,
		m.RunsTotal,
		m.RunFailuresTotal,
		m.RunDuration,
		m.SinkDeliveriesTotal,
	)

	return m
}

// ObserveRun records the outcome of a finished run. failureKind is empty
// for runs that did not fail.
func (m *Metrics) ObserveRun(outcome, failureKind string, seconds float64) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if failureKind != "" {
		m.RunFailuresTotal.WithLabelValues(failureKind).Inc()
	}
	m.RunDuration.Set(seconds)
}
