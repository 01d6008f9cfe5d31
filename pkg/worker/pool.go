// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package worker runs the embedding worker pool: N cooperating loops
// that claim pending jobs from the queue, embed position FENs in
// batches, upsert the vectors, and settle each job.
//
// Claims are disjoint across loops and across processes (the queue uses
// a skip-locked row claim), so scaling out is just starting more loops.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/chessmate/chessmate/pkg/embedding"
	"github.com/chessmate/chessmate/pkg/store"
	"github.com/chessmate/chessmate/pkg/vectorstore"
)

// Tunables.
const (
	// ClaimBatchSize matches the embedder's batch cap.
	ClaimBatchSize = embedding.MaxBatchSize

	// InProgressTimeout is how long a claimed job may sit before the
	// janitor assumes its worker died and requeues it.
	InProgressTimeout = 15 * time.Minute

	// DefaultPollSleep is the idle backoff when a claim comes back empty.
	DefaultPollSleep = time.Second

	// janitorEveryPolls is how many poll intervals pass between
	// janitor sweeps after the startup sweep.
	janitorEveryPolls = 5

	// pruneBatchSize bounds each sweep's reconciliation of re-enqueued
	// jobs whose position was already embedded.
	pruneBatchSize = 1000
)

// Queue is the job-queue slice of the store the pool needs.
type Queue interface {
	Claim(ctx context.Context, limit int) ([]store.Job, error)
	CompleteWithVector(ctx context.Context, jobID, positionID int64, vectorID string) error
	Fail(ctx context.Context, jobID int64, msg string, retryable bool) error
	ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error)
	PruneCompleted(ctx context.Context, batch int) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
	FetchPositionContexts(ctx context.Context, positionIDs []int64) (map[int64]store.PositionContext, error)
}

// VectorStore is the upsert capability of the vector store adapter.
type VectorStore interface {
	UpsertPoints(ctx context.Context, points []vectorstore.Point) error
}

// Pool runs the worker loops until its context is cancelled.
type Pool struct {
	queue     Queue
	embedder  embedding.Embedder
	vectors   VectorStore
	workers   int
	pollSleep time.Duration
	log       *slog.Logger
}

// New builds a Pool. workers defaults to 1, pollSleep to DefaultPollSleep.
func New(queue Queue, embedder embedding.Embedder, vectors VectorStore, workers int, pollSleep time.Duration, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if pollSleep <= 0 {
		pollSleep = DefaultPollSleep
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		queue: queue, embedder: embedder, vectors: vectors,
		workers: workers, pollSleep: pollSleep, log: log,
	}
}

// Run starts the janitor and the worker loops and blocks until ctx is
// cancelled. A loop that is mid-batch when cancellation arrives drains
// its batch before exiting; nothing is interrupted half-settled.
func (p *Pool) Run(ctx context.Context) error {
	wMetrics.init()

	if n, err := p.queue.ReclaimStale(ctx, InProgressTimeout); err != nil {
		p.log.Warn("worker.janitor.error", "error", err)
	} else if n > 0 {
		wMetrics.reclaims.Add(float64(n))
		p.log.Info("worker.janitor.reclaimed", "jobs", n)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.janitor(ctx)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}

	wg.Wait()
	p.log.Info("worker.pool.stopped", "workers", p.workers)
	return nil
}

// loop is one claim-embed-settle cycle repeated until cancellation.
func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wMetrics.claims.Inc()
		jobs, err := p.queue.Claim(ctx, ClaimBatchSize)
		if err != nil {
			log.Warn("worker.claim.error", "error", err)
			if !sleepCtx(ctx, p.pollSleep) {
				return
			}
			continue
		}
		if len(jobs) == 0 {
			wMetrics.emptyPolls.Inc()
			log.Debug("worker.claim.empty")
			if !sleepCtx(ctx, p.pollSleep) {
				return
			}
			continue
		}

		wMetrics.claimedJobs.Add(float64(len(jobs)))
		// Settle the whole batch even if shutdown starts meanwhile.
		p.processBatch(context.WithoutCancel(ctx), log, jobs)
	}
}

// processBatch embeds one claimed batch and settles every job in it.
func (p *Pool) processBatch(ctx context.Context, log *slog.Logger, jobs []store.Job) {
	start := time.Now()
	defer func() { wMetrics.batchDuration.Observe(time.Since(start).Seconds()) }()

	positionIDs := make([]int64, len(jobs))
	for i, j := range jobs {
		positionIDs[i] = j.PositionID
	}

	contexts, err := p.queue.FetchPositionContexts(ctx, positionIDs)
	if err != nil {
		p.failBatch(ctx, log, jobs, fmt.Sprintf("fetch position contexts: %v", err), true)
		return
	}

	// Jobs whose position vanished (cascade delete) fail permanently;
	// the rest form the embed batch.
	var (
		live   []store.Job
		inputs []string
	)
	for _, j := range jobs {
		pc, ok := contexts[j.PositionID]
		if !ok {
			p.fail(ctx, log, j, "position no longer exists", false)
			continue
		}
		live = append(live, j)
		inputs = append(inputs, pc.FEN)
	}
	if len(live) == 0 {
		return
	}

	embedStart := time.Now()
	vectors, err := p.embedder.Embed(ctx, inputs)
	wMetrics.embedDuration.Observe(time.Since(embedStart).Seconds())
	if err != nil {
		retryable := embedding.Retryable(err)
		p.failBatch(ctx, log, live, fmt.Sprintf("embed: %v", err), retryable)
		return
	}

	points := make([]vectorstore.Point, 0, len(live))
	ids := make([]uint64, len(live))
	for i, j := range live {
		pc := contexts[j.PositionID]
		ids[i] = vectorID(pc.FEN)
		points = append(points, vectorstore.Point{
			ID:      ids[i],
			Vector:  vectors[i],
			Payload: payloadFor(pc),
		})
	}

	if err := p.vectors.UpsertPoints(ctx, points); err != nil {
		p.failBatch(ctx, log, live, fmt.Sprintf("vector upsert: %v", err), true)
		return
	}

	for i, j := range live {
		vid := strconv.FormatUint(ids[i], 10)
		if err := p.queue.CompleteWithVector(ctx, j.ID, j.PositionID, vid); err != nil {
			p.fail(ctx, log, j, fmt.Sprintf("complete: %v", err), true)
			continue
		}
		wMetrics.completions.Inc()
	}
	log.Debug("worker.batch.settled", "jobs", len(live))
}

func (p *Pool) failBatch(ctx context.Context, log *slog.Logger, jobs []store.Job, msg string, retryable bool) {
	for _, j := range jobs {
		p.fail(ctx, log, j, msg, retryable)
	}
}

func (p *Pool) fail(ctx context.Context, log *slog.Logger, j store.Job, msg string, retryable bool) {
	wMetrics.failures.Inc()
	if retryable && j.Attempts < store.MaxAttempts {
		wMetrics.retries.Inc()
	}
	if err := p.queue.Fail(ctx, j.ID, msg, retryable); err != nil {
		log.Error("worker.fail.error", "job", j.ID, "error", err)
		return
	}
	log.Warn("worker.job.failed", "job", j.ID, "attempts", j.Attempts, "retryable", retryable, "error", msg)
}

// janitor periodically requeues jobs stuck in in_progress.
func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(janitorEveryPolls) * p.pollSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.ReclaimStale(ctx, InProgressTimeout)
			if err != nil {
				p.log.Warn("worker.janitor.error", "error", err)
				continue
			}
			if n > 0 {
				wMetrics.reclaims.Add(float64(n))
				p.log.Info("worker.janitor.reclaimed", "jobs", n)
			}
			if n, err := p.queue.PruneCompleted(ctx, pruneBatchSize); err == nil && n > 0 {
				p.log.Info("worker.janitor.pruned", "jobs", n)
			}
			if pending, err := p.queue.PendingCount(ctx); err == nil {
				wMetrics.queuePending.Set(float64(pending))
			}
		}
	}
}

// payloadFor builds the vector payload from the owning game's metadata.
func payloadFor(pc store.PositionContext) map[string]any {
	payload := map[string]any{
		"position_id": pc.PositionID,
		"game_id":     pc.GameID,
		"ply":         pc.Ply,
		"white_name":  pc.WhiteName,
		"black_name":  pc.BlackName,
		"result":      pc.Result,
	}
	if pc.WhiteElo != nil {
		payload["white_elo"] = *pc.WhiteElo
	}
	if pc.BlackElo != nil {
		payload["black_elo"] = *pc.BlackElo
	}
	if pc.OpeningSlug != nil {
		payload["opening_slug"] = *pc.OpeningSlug
	}
	if pc.ECOCode != nil {
		payload["eco_code"] = *pc.ECOCode
	}
	return payload
}

// vectorID derives the deterministic point id for a FEN. The same
// position always maps to the same vector, which is what makes the
// upsert idempotent across retries and re-ingests.
func vectorID(fen string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(fen))
	return h.Sum64()
}

// sleepCtx sleeps for d or until ctx is done; it reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
