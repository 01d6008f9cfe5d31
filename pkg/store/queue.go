// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Job lifecycle states.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// MaxAttempts caps retries: a job that has been claimed five times and
// failed retryably five times lands in failed, never pending again.
const MaxAttempts = 5

// Job is one row of the embedding job queue as seen by a worker.
type Job struct {
	ID         int64
	PositionID int64
	Attempts   int
}

// claimSQL transitions up to $1 pending jobs to in_progress in one
// statement. FOR UPDATE SKIP LOCKED guarantees concurrent claimers get
// disjoint sets without blocking each other.
const claimSQL = `
WITH picked AS (
    SELECT id
    FROM embedding_jobs
    WHERE status = 'pending'
    ORDER BY enqueued_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $1
)
UPDATE embedding_jobs j
SET status = 'in_progress',
    started_at = now(),
    attempts = j.attempts + 1
FROM picked
WHERE j.id = picked.id
RETURNING j.id, j.position_id, j.attempts`

// Claim atomically moves up to limit pending jobs to in_progress,
// oldest first, and returns them. Concurrent callers never receive the
// same job.
func (s *Store) Claim(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx, claimSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", infra(err))
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.PositionID, &j.Attempts); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", infra(err))
	}
	return jobs, nil
}

// CompleteWithVector settles a successful job: the position's vector_id
// and the job's completed state commit together or not at all.
func (s *Store) CompleteWithVector(ctx context.Context, jobID, positionID int64, vectorID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE positions SET vector_id = $2 WHERE id = $1`,
			positionID, vectorID); err != nil {
			return fmt.Errorf("set vector id: %w", infra(err))
		}
		if _, err := tx.Exec(ctx, `
			UPDATE embedding_jobs
			SET status = 'completed', completed_at = now(), last_error = NULL
			WHERE id = $1`, jobID); err != nil {
			return fmt.Errorf("complete job %d: %w", jobID, infra(err))
		}
		return nil
	})
}

// failSQL settles a failed job: retryable failures below the attempt
// cap go back to pending, everything else lands in failed for good.
// attempts was already incremented at claim time, so a job claimed
// MaxAttempts times never re-enters pending.
const failSQL = `
UPDATE embedding_jobs
SET status = CASE
        WHEN $2::bool AND attempts < $3 THEN 'pending'
        ELSE 'failed'
    END,
    started_at = NULL,
    last_error = $4
WHERE id = $1`

// Fail records a job failure. Retryable failures below the attempt cap
// re-enter pending immediately; everything else lands in failed.
func (s *Store) Fail(ctx context.Context, jobID int64, msg string, retryable bool) error {
	_, err := s.pool.Exec(ctx, failSQL, jobID, retryable, MaxAttempts, msg)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, infra(err))
	}
	return nil
}

// CountByStatus returns queue depth per status. Absent statuses are zero.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM embedding_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", infra(err))
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs: %w", infra(err))
	}
	return out, nil
}

// PendingCount is the admission-control probe.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM embedding_jobs WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", infra(err))
	}
	return n, nil
}

// ReclaimStale requeues in_progress jobs whose worker died: any job
// started longer ago than timeout goes back to pending. Returns the
// number of jobs reclaimed. Safe to run concurrently with claimers.
func (s *Store) ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE embedding_jobs
		SET status = 'pending', started_at = NULL
		WHERE status = 'in_progress'
		  AND started_at < now() - make_interval(secs => $1)`,
		timeout.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", infra(err))
	}
	return tag.RowsAffected(), nil
}

// PruneCompleted reconciles jobs whose position already carries a
// vector_id (a prior run completed the embedding before a re-enqueue).
// Returns the number of jobs flipped to completed.
func (s *Store) PruneCompleted(ctx context.Context, batch int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH done AS (
		    SELECT j.id
		    FROM embedding_jobs j
		    JOIN positions p ON p.id = j.position_id
		    WHERE j.status = 'pending' AND p.vector_id IS NOT NULL
		    LIMIT $1
		)
		UPDATE embedding_jobs j
		SET status = 'completed', completed_at = now()
		FROM done
		WHERE j.id = done.id`, batch)
	if err != nil {
		return 0, fmt.Errorf("prune completed: %w", infra(err))
	}
	return tag.RowsAffected(), nil
}
