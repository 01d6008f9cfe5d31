// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package agent implements the optional agent re-ranking stage: the
// post-ranking top-K games are each judged by a chat model, and the
// model's score is merged into the final ordering.
//
// The stage is strictly additive: any per-candidate failure degrades to
// a neutral score with a warning, never to a failed query.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chessmate/chessmate/internal/config"
	"github.com/chessmate/chessmate/pkg/intent"
	"github.com/chessmate/chessmate/pkg/query"
)

// Retry policy for individual model calls.
const (
	maxCallAttempts = 3
	backoffBase     = 500 * time.Millisecond
	backoffMult     = 2.0
	backoffCap      = 5 * time.Second

	// pgnTruncateAt bounds the prompt size per candidate.
	pgnTruncateAt = 2000
)

// Evaluation is the parsed model judgement for one game.
type Evaluation struct {
	Score       float64  `json:"score"`
	Themes      []string `json:"themes"`
	Explanation string   `json:"explanation"`
}

// Evaluator runs the re-ranking stage.
type Evaluator struct {
	client ChatClient
	cfg    config.AgentConfig
	cache  *lruCache
	log    *slog.Logger
}

// New builds an Evaluator from the agent configuration.
func New(client ChatClient, cfg config.AgentConfig, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Evaluator{
		client: client,
		cfg:    cfg,
		cache:  newLRUCache(cfg.CacheCapacity),
		log:    log,
	}
}

// Rerank judges every result against the plan and re-sorts by the
// merged score. pgns maps game id to full PGN text. Returned warnings
// describe per-candidate degradations; the result list itself is never
// shorter than the input.
func (e *Evaluator) Rerank(ctx context.Context, plan intent.Plan, results []query.ScoredResult, pgns map[int64]string) ([]query.ScoredResult, *query.AgentTotals, []string) {
	totals := &query.AgentTotals{}
	if len(results) == 0 {
		return results, totals, nil
	}

	out := make([]query.ScoredResult, len(results))
	copy(out, results)

	var (
		mu       sync.Mutex
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)

	fingerprint := plan.Fingerprint()
	for i := range out {
		i := i
		g.Go(func() error {
			r := &out[i]

			key := strings.Join([]string{
				e.cfg.Model, e.cfg.ReasoningEffort, fingerprint, fmt.Sprint(r.ID),
			}, "|")
			if ev, ok := e.cache.Get(key); ok {
				mu.Lock()
				totals.CacheHits++
				mu.Unlock()
				applyEvaluation(r, ev, e.cfg.Weight)
				return nil
			}

			ev, usage, warn := e.evaluate(gctx, plan, *r, pgns[r.ID])
			mu.Lock()
			totals.Calls++
			totals.InputTokens += usage.InputTokens
			totals.OutputTokens += usage.OutputTokens
			totals.ReasoningTokens += usage.ReasoningTokens
			totals.CostUSD += e.cost(usage)
			if warn != "" {
				warnings = append(warnings, warn)
			}
			mu.Unlock()

			if warn == "" {
				e.cache.Put(key, ev)
			}
			applyEvaluation(r, ev, e.cfg.Weight)
			return nil
		})
	}
	// Workers only return nil; the group is used for its limit.
	_ = g.Wait()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out, totals, warnings
}

// evaluate calls the model with retries and parses its JSON. Failures
// and malformed output degrade to a neutral evaluation plus a warning.
func (e *Evaluator) evaluate(ctx context.Context, plan intent.Plan, r query.ScoredResult, pgn string) (Evaluation, CallUsage, string) {
	prompt := buildPrompt(plan, r, pgn)

	var (
		raw     string
		usage   CallUsage
		callErr error
	)
	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return neutralEvaluation(), usage,
					fmt.Sprintf("agent evaluation failed for game %d: %v", r.ID, ctx.Err())
			case <-time.After(backoffWithJitter(backoffBase, attempt, backoffMult, backoffCap)):
			}
		}
		raw, usage, callErr = e.client.Complete(ctx, prompt)
		if callErr == nil {
			break
		}
		e.log.Warn("agent.call.retry", "game_id", r.ID, "attempt", attempt+1, "error", callErr)
	}

	if callErr != nil {
		return neutralEvaluation(), usage,
			fmt.Sprintf("agent evaluation failed for game %d: %v", r.ID, callErr)
	}

	ev, err := parseEvaluation(raw)
	if err != nil {
		return neutralEvaluation(), usage,
			fmt.Sprintf("agent returned malformed JSON for game %d", r.ID)
	}

	e.log.Info("agent-telemetry",
		"game_id", r.ID,
		"latency_ms", usage.Latency.Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"reasoning_tokens", usage.ReasoningTokens,
		"effort", e.cfg.ReasoningEffort,
		"cost_usd", e.cost(usage),
	)
	return ev, usage, ""
}

// parseEvaluation decodes and clamps the model output.
func parseEvaluation(raw string) (Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Evaluation{}, err
	}
	if ev.Score < 0 {
		ev.Score = 0
	}
	if ev.Score > 1 {
		ev.Score = 1
	}
	return ev, nil
}

func neutralEvaluation() Evaluation {
	return Evaluation{Score: 0.5}
}

// applyEvaluation merges the agent score into the final ranking score.
func applyEvaluation(r *query.ScoredResult, ev Evaluation, weight float64) {
	score := ev.Score
	r.AgentScore = &score
	r.Themes = ev.Themes
	r.Explanation = ev.Explanation
	r.FinalScore = (1-weight)*r.TotalScore + weight*ev.Score
}

// buildPrompt names the plan's constraints and embeds the truncated PGN.
func buildPrompt(plan intent.Plan, r query.ScoredResult, pgn string) string {
	var b strings.Builder
	b.WriteString("Search intent: ")
	b.WriteString(intent.Render(plan))
	b.WriteString("\n")

	if len(plan.Filters) > 0 {
		b.WriteString("Constraints:")
		for _, f := range plan.Filters {
			fmt.Fprintf(&b, " %s=%s", f.Field, f.Value)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nGame %d: %s vs %s (%s)\n", r.ID, r.White, r.Black, r.Result)
	if len(pgn) > pgnTruncateAt {
		pgn = pgn[:pgnTruncateAt]
	}
	b.WriteString(pgn)
	return b.String()
}

func (e *Evaluator) cost(u CallUsage) float64 {
	return float64(u.InputTokens)/1000*e.cfg.CostInputPer1K +
		float64(u.OutputTokens)/1000*e.cfg.CostOutputPer1K +
		float64(u.ReasoningTokens)/1000*e.cfg.CostReasoningPer1K
}

// backoffWithJitter is exponential backoff with full jitter in [0, d].
func backoffWithJitter(base time.Duration, attempt int, mult float64, capDur time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > capDur {
		d = capDur
	}
	if d <= 0 {
		return base
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
