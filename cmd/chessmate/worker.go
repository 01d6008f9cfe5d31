// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/worker"
)

// runWorker executes the 'embedding-worker' command: a long-running
// pool draining the embedding job queue into the vector store.
func runWorker(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("embedding-worker", flag.ExitOnError)
	workers := fs.Int("workers", 4, "Number of parallel worker loops")
	pollSleep := fs.Duration("poll-sleep", worker.DefaultPollSleep, "Sleep between polls of an empty queue")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate embedding-worker [options]

Description:
  Claim pending embedding jobs in batches, embed the positions, upsert
  the vectors into Qdrant, and mark the jobs completed. Jobs from
  crashed workers are reclaimed after their in-progress timeout. Runs
  until interrupted; the batch in flight is drained before exit.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  chessmate embedding-worker
  chessmate embedding-worker --workers 8 --metrics-addr :9091
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)

	vectors := vectorClient(cfg)
	if vectors == nil {
		cerrors.FatalError(cerrors.NewUserError(
			"QDRANT_URL is not set",
			"the embedding worker writes vectors to Qdrant",
			"Export QDRANT_URL, e.g. http://localhost:6333",
			nil,
		), globals.JSON)
	}
	embedder := embedClient(cfg)
	if embedder == nil {
		cerrors.FatalError(cerrors.NewUserError(
			"OPENAI_API_KEY is not set",
			"the embedding worker needs the embedding API",
			"Export OPENAI_API_KEY",
			nil,
		), globals.JSON)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, *workers+2, globals)
	defer st.Close()

	if err := vectors.EnsureCollection(ctx, cfg.EmbedDimensions); err != nil {
		cerrors.FatalError(cerrors.NewInfraError(
			"Cannot prepare the vector collection",
			err.Error(),
			"Check QDRANT_URL and that Qdrant is reachable",
			err,
		), globals.JSON)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ui.Infof("Embedding worker running with %d workers (poll %s)", *workers, *pollSleep)
	pool := worker.New(st, embedder, vectors, *workers, *pollSleep, slog.Default())
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		cerrors.FatalError(err, globals.JSON)
	}
	ui.Successf("Worker stopped")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("worker.metrics.failed", "addr", addr, "error", err)
	}
}
