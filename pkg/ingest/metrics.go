// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngest holds Prometheus metrics for the ingestion subsystem.
type metricsIngest struct {
	once sync.Once

	gamesStored   prometheus.Counter
	gamesSkipped  prometheus.Counter
	duplicates    prometheus.Counter
	positions     prometheus.Counter
	jobsEnqueued  prometheus.Counter
	admissionHits prometheus.Counter

	runDuration prometheus.Histogram
}

var ingMetrics metricsIngest

func (m *metricsIngest) init() {
	m.once.Do(func() {
		m.gamesStored = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_games_stored_total", Help: "Games stored"})
		m.gamesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_games_skipped_total", Help: "Games skipped (no moves / illegal SAN)"})
		m.duplicates = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_duplicates_total", Help: "Duplicate games rejected"})
		m.positions = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_positions_total", Help: "Positions inserted"})
		m.jobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_jobs_enqueued_total", Help: "Embedding jobs enqueued"})
		m.admissionHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "chessmate_ingest_admission_aborts_total", Help: "Runs aborted by queue admission control"})

		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chessmate_ingest_run_seconds",
			Help:    "Duration of ingest runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		})

		prometheus.MustRegister(
			m.gamesStored, m.gamesSkipped, m.duplicates,
			m.positions, m.jobsEnqueued, m.admissionHits,
			m.runDuration,
		)
	})
}
