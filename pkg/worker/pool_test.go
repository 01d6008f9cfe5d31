// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package worker

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/chessmate/chessmate/pkg/embedding"
	"github.com/chessmate/chessmate/pkg/store"
	"github.com/chessmate/chessmate/pkg/vectorstore"
)

func TestMain(m *testing.M) {
	wMetrics.init()
	os.Exit(m.Run())
}

// fakeQueue is an in-memory queue with the same claim semantics as the
// SQL one: pending jobs move to in_progress on claim, attempts increment.
type fakeQueue struct {
	mu        sync.Mutex
	pending   []store.Job
	contexts  map[int64]store.PositionContext
	completed map[int64]string // jobID -> vectorID
	failed    map[int64]string
	requeued  int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		contexts:  map[int64]store.PositionContext{},
		completed: map[int64]string{},
		failed:    map[int64]string{},
	}
}

func (q *fakeQueue) addJob(id, positionID int64, fen string) {
	q.pending = append(q.pending, store.Job{ID: id, PositionID: positionID})
	q.contexts[positionID] = store.PositionContext{
		PositionID: positionID, GameID: positionID * 10, Ply: 1, FEN: fen,
		WhiteName: "W", BlackName: "B", Result: "1-0",
	}
}

func (q *fakeQueue) Claim(_ context.Context, limit int) ([]store.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := limit
	if n > len(q.pending) {
		n = len(q.pending)
	}
	claimed := make([]store.Job, n)
	for i := 0; i < n; i++ {
		q.pending[i].Attempts++
		claimed[i] = q.pending[i]
	}
	q.pending = q.pending[n:]
	return claimed, nil
}

func (q *fakeQueue) CompleteWithVector(_ context.Context, jobID, _ int64, vectorID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[jobID] = vectorID
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, jobID int64, msg string, retryable bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = msg
	if retryable {
		q.requeued++
	}
	return nil
}

func (q *fakeQueue) ReclaimStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) PruneCompleted(context.Context, int) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) PendingCount(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *fakeQueue) FetchPositionContexts(_ context.Context, ids []int64) (map[int64]store.PositionContext, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := map[int64]store.PositionContext{}
	for _, id := range ids {
		if pc, ok := q.contexts[id]; ok {
			out[id] = pc
		}
	}
	return out, nil
}

type fakeVectors struct {
	mu     sync.Mutex
	points []vectorstore.Point
	err    error
}

func (v *fakeVectors) UpsertPoints(_ context.Context, points []vectorstore.Point) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	v.points = append(v.points, points...)
	return nil
}

func TestProcessBatch_CompletesJobs(t *testing.T) {
	q := newFakeQueue()
	q.addJob(1, 100, "fen-one")
	q.addJob(2, 200, "fen-two")
	vecs := &fakeVectors{}
	p := New(q, &embedding.Mock{Dimensions: 4}, vecs, 1, time.Millisecond, nil)

	jobs, _ := q.Claim(context.Background(), ClaimBatchSize)
	p.processBatch(context.Background(), p.log, jobs)

	if len(q.completed) != 2 || len(q.failed) != 0 {
		t.Fatalf("completed=%v failed=%v", q.completed, q.failed)
	}

	// vector_id recorded on the job matches the deterministic FEN hash.
	want := strconv.FormatUint(vectorID("fen-one"), 10)
	if q.completed[1] != want {
		t.Errorf("job 1 vector id = %s, want %s", q.completed[1], want)
	}

	if len(vecs.points) != 2 {
		t.Fatalf("upserted %d points", len(vecs.points))
	}
	payload := vecs.points[0].Payload
	if payload["game_id"] != int64(1000) || payload["white_name"] != "W" || payload["result"] != "1-0" {
		t.Errorf("payload = %v", payload)
	}
}

func TestProcessBatch_EmbedFailureRequeuesBatch(t *testing.T) {
	q := newFakeQueue()
	q.addJob(1, 100, "fen-one")
	q.addJob(2, 200, "fen-two")
	mock := &embedding.Mock{Err: &embedding.APIError{StatusCode: 429, Message: "rate limit"}}
	p := New(q, mock, &fakeVectors{}, 1, time.Millisecond, nil)

	jobs, _ := q.Claim(context.Background(), ClaimBatchSize)
	p.processBatch(context.Background(), p.log, jobs)

	if len(q.failed) != 2 || q.requeued != 2 {
		t.Errorf("whole batch must fail retryably: failed=%v requeued=%d", q.failed, q.requeued)
	}
	if len(q.completed) != 0 {
		t.Errorf("nothing may complete on embed failure")
	}
}

func TestProcessBatch_NonRetryableEmbedFailure(t *testing.T) {
	q := newFakeQueue()
	q.addJob(1, 100, "fen-one")
	mock := &embedding.Mock{Err: &embedding.APIError{StatusCode: 400, Message: "bad input"}}
	p := New(q, mock, &fakeVectors{}, 1, time.Millisecond, nil)

	jobs, _ := q.Claim(context.Background(), ClaimBatchSize)
	p.processBatch(context.Background(), p.log, jobs)

	if q.requeued != 0 || len(q.failed) != 1 {
		t.Errorf("400 must fail permanently: failed=%v requeued=%d", q.failed, q.requeued)
	}
}

func TestProcessBatch_MissingPositionFailsThatJobOnly(t *testing.T) {
	q := newFakeQueue()
	q.addJob(1, 100, "fen-one")
	q.pending = append(q.pending, store.Job{ID: 2, PositionID: 999}) // no context
	vecs := &fakeVectors{}
	p := New(q, &embedding.Mock{Dimensions: 4}, vecs, 1, time.Millisecond, nil)

	jobs, _ := q.Claim(context.Background(), ClaimBatchSize)
	p.processBatch(context.Background(), p.log, jobs)

	if len(q.completed) != 1 || q.completed[1] == "" {
		t.Errorf("live job must complete: %v", q.completed)
	}
	if _, ok := q.failed[2]; !ok || q.requeued != 0 {
		t.Errorf("orphan job must fail permanently: failed=%v", q.failed)
	}
}

func TestProcessBatch_UpsertFailureRetryable(t *testing.T) {
	q := newFakeQueue()
	q.addJob(1, 100, "fen-one")
	vecs := &fakeVectors{err: errors.New("qdrant down")}
	p := New(q, &embedding.Mock{Dimensions: 4}, vecs, 1, time.Millisecond, nil)

	jobs, _ := q.Claim(context.Background(), ClaimBatchSize)
	p.processBatch(context.Background(), p.log, jobs)

	if q.requeued != 1 || len(q.completed) != 0 {
		t.Errorf("upsert failure must requeue: failed=%v completed=%v", q.failed, q.completed)
	}
}

func TestRun_DrainsAndStops(t *testing.T) {
	q := newFakeQueue()
	for i := int64(1); i <= 40; i++ {
		q.addJob(i, i*100, "fen-"+strconv.FormatInt(i, 10))
	}
	p := New(q, &embedding.Mock{Dimensions: 4}, &fakeVectors{}, 4, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		q.mu.Lock()
		n := len(q.completed)
		q.mu.Unlock()
		if n == 40 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d/40 jobs completed", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestVectorID_Deterministic(t *testing.T) {
	a := vectorID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	b := vectorID("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	c := vectorID("different")
	if a != b || a == c {
		t.Errorf("vectorID not a pure function: %d %d %d", a, b, c)
	}
}
