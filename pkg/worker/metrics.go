// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsWorker holds Prometheus metrics for the embedding worker pool.
type metricsWorker struct {
	once sync.Once

	claims      prometheus.Counter
	claimedJobs prometheus.Counter
	emptyPolls  prometheus.Counter
	completions prometheus.Counter
	failures    prometheus.Counter
	retries     prometheus.Counter
	reclaims    prometheus.Counter

	queuePending prometheus.Gauge

	batchDuration prometheus.Histogram
	embedDuration prometheus.Histogram
}

var wMetrics metricsWorker

func (m *metricsWorker) init() {
	m.once.Do(func() {
		m.claims = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_claims_total", Help: "Claim calls issued"})
		m.claimedJobs = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_claimed_jobs_total", Help: "Jobs claimed"})
		m.emptyPolls = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_empty_polls_total", Help: "Polls that found no pending jobs"})
		m.completions = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_completions_total", Help: "Jobs completed"})
		m.failures = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_failures_total", Help: "Jobs failed permanently or retryably"})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_retries_total", Help: "Retryable failures returned to pending"})
		m.reclaims = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_worker_reclaims_total", Help: "Stale in_progress jobs reclaimed by the janitor"})

		m.queuePending = prometheus.NewGauge(prometheus.GaugeOpts{Name: "chessmate_worker_queue_pending", Help: "Pending jobs at last poll"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		m.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "chessmate_worker_batch_seconds", Help: "Duration of one claim-embed-upsert batch", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "chessmate_worker_embed_seconds", Help: "Duration of embedder calls", Buckets: buckets})

		prometheus.MustRegister(
			m.claims, m.claimedJobs, m.emptyPolls,
			m.completions, m.failures, m.retries, m.reclaims,
			m.queuePending,
			m.batchDuration, m.embedDuration,
		)
	})
}
