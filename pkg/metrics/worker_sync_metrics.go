// Package metrics holds the Prometheus instrumentation of the sync pipeline and
// database pool health helpers.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global     *SyncMetrics
	globalOnce sync.Once
)

// SyncMetrics holds the pipeline counters.
//
// Metrics:
//   - outreach_sync_records_total{job,outcome} - fetched/upserted/errored/skipped records
//   - outreach_sync_runs_total{job,status} - finished runs by final status
//   - outreach_sync_run_duration_seconds{job} - run wall time
//   - outreach_sync_page_duration_seconds{job} - fetch+process time of one page
//   - outreach_reply_classifications_total{tier} - replies classified per tier
//   - outreach_reply_ai_fallbacks_total{reason} - AI failures answered by rules
//   - outreach_stale_runs_recovered_total - stuck runs reset by recovery
type SyncMetrics struct {
	RecordsTotal      *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	PageDuration      *prometheus.HistogramVec
	Classifications   *prometheus.CounterVec
	AIFallbacks       *prometheus.CounterVec
	RecoveredRunTotal prometheus.Counter
}

// Sync returns the process-wide metrics, registering them once.
func Sync() *SyncMetrics {
	globalOnce.Do(func() {
		global = &SyncMetrics{
			RecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outreach_sync_records_total",
					Help: "Records processed by sync jobs",
				},
				[]string{"job", "outcome"},
			),
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outreach_sync_runs_total",
					Help: "Finished sync runs by status",
				},
				[]string{"job", "status"},
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "outreach_sync_run_duration_seconds",
					Help:    "Sync run duration in seconds",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
				},
				[]string{"job"},
			),
			PageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "outreach_sync_page_duration_seconds",
					Help:    "Time to fetch and process one page",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"job"},
			),
			Classifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outreach_reply_classifications_total",
					Help: "Replies classified per tier",
				},
				[]string{"tier"},
			),
			AIFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outreach_reply_ai_fallbacks_total",
					Help: "AI classification failures answered by the rule tier",
				},
				[]string{"reason"},
			),
			RecoveredRunTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "outreach_stale_runs_recovered_total",
					Help: "Stuck runs reset by the recovery routine",
				},
			),
		}
	})
	return global
}

// ObserveRecords adds n records with the given outcome.
func (m *SyncMetrics) ObserveRecords(job, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(job, outcome).Add(float64(n))
}

// ObserveRun records a finished run.
func (m *SyncMetrics) ObserveRun(job, status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(job, status).Inc()
	m.RunDuration.WithLabelValues(job).Observe(d.Seconds())
}
