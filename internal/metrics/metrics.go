// Package metrics defines the Prometheus collectors of the export scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons for ExportMetrics.CyclesSkipped
const (
	SkipBusy      = "busy"
	SkipLockHeld  = "lock_held"
	SkipLockError = "lock_error"
)

// Resolution failure reasons for ExportMetrics.ResolutionFailures
const (
	ResolutionStorageError  = "storage_error"
	ResolutionInvalidStored = "invalid_stored_address"
)

// ExportMetrics holds the collectors updated by the export pipeline and scheduler
type ExportMetrics struct {
	Cycles             *prometheus.CounterVec
	CyclesSkipped      *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	BatchSize          prometheus.Histogram
	Submissions        *prometheus.CounterVec
	Marked             prometheus.Counter
	MarkingFailures    prometheus.Counter
	ResolutionFailures *prometheus.CounterVec
	Quarantined        prometheus.Counter
}

// NewExportMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewExportMetrics(reg prometheus.Registerer) *ExportMetrics {
	m := &ExportMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_export_cycles_total",
			Help: "Export cycles run, by outcome",
		}, []string{"outcome"}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_export_cycles_skipped_total",
			Help: "Scheduler ticks skipped because a cycle could not start",
		}, []string{"reason"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airdrop_export_cycle_duration_seconds",
			Help:    "Wall time of export cycles, including confirmation wait",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "airdrop_export_batch_size",
			Help:    "Participants per submitted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_export_submissions_total",
			Help: "allowAirdrop submissions, by final status",
		}, []string{"status"}),
		Marked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airdrop_export_marked_total",
			Help: "Participants marked exported after a confirmed batch",
		}),
		MarkingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airdrop_export_marking_failures_total",
			Help: "Participants in a confirmed batch whose exported flag could not be persisted",
		}),
		ResolutionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_sponsor_resolution_failures_total",
			Help: "Sponsor lookups that degraded to the zero address because of an error",
		}, []string{"reason"}),
		Quarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airdrop_export_quarantined_total",
			Help: "Participants removed from export because their pair reverts on its own",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Cycles,
			m.CyclesSkipped,
			m.CycleDuration,
			m.BatchSize,
			m.Submissions,
			m.Marked,
			m.MarkingFailures,
			m.ResolutionFailures,
			m.Quarantined,
		)
	}
	return m
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
