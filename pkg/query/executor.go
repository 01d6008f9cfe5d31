// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package query implements the hybrid executor: metadata retrieval and
// vector retrieval fused into one ranked result list, with graceful
// degradation when the vector store is down.
package query

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/pkg/intent"
	"github.com/chessmate/chessmate/pkg/openings"
	"github.com/chessmate/chessmate/pkg/store"
	"github.com/chessmate/chessmate/pkg/vectorstore"
)

// Score fusion weights.
const (
	vectorWeight  = 0.7
	keywordWeight = 0.3

	// Fallback vector score for metadata games without a vector hit.
	fallbackBase    = 0.5
	fallbackPerWord = 0.01
	fallbackCap     = 0.7

	vectorSearchLimit = 100
	minOverfetch      = 50
)

// MetadataSearcher is the store slice the executor reads games from.
type MetadataSearcher interface {
	SearchGames(ctx context.Context, f store.GameFilters, overfetch int) ([]store.GameSummary, error)
}

// VectorSearcher is the vector store slice. May be absent.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.Hit, error)
}

// Embedder embeds the cleaned question text. May be absent; the
// executor then falls back to the keyword pseudo-vector.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ScoredResult is one ranked game.
type ScoredResult struct {
	store.GameSummary

	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	TotalScore   float64 `json:"total_score"`

	// Filled by the agent evaluator when it runs.
	AgentScore  *float64 `json:"agent_score,omitempty"`
	FinalScore  float64  `json:"final_score"`
	Themes      []string `json:"themes,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// AgentTotals aggregates agent token usage and cost for one query.
type AgentTotals struct {
	Calls           int     `json:"calls"`
	CacheHits       int     `json:"cache_hits"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	CostUSD         float64 `json:"cost_usd"`
}

// Response is the query result envelope.
type Response struct {
	RunID    string         `json:"run_id"`
	Plan     intent.Plan    `json:"plan"`
	Results  []ScoredResult `json:"results"`
	Warnings []string       `json:"warnings,omitempty"`
	Agent    *AgentTotals   `json:"agent,omitempty"`
}

// Executor fuses metadata and vector retrieval.
type Executor struct {
	meta     MetadataSearcher
	vectors  VectorSearcher
	embedder Embedder
	log      *slog.Logger
}

// New builds an Executor. vectors and embedder may be nil; a nil
// vectors degrades every query to keyword-only scoring.
func New(meta MetadataSearcher, vectors VectorSearcher, embedder Embedder, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{meta: meta, vectors: vectors, embedder: embedder, log: log}
}

// Execute runs the full pipeline for a plan. A metadata failure fails
// the query; a vector store failure degrades it.
func (e *Executor) Execute(ctx context.Context, plan intent.Plan) (*Response, error) {
	resp := &Response{RunID: uuid.NewString(), Plan: plan}

	overfetch := plan.Limit * 10
	if overfetch < minOverfetch {
		overfetch = minOverfetch
	}

	summaries, err := e.meta.SearchGames(ctx, FiltersFromPlan(plan), overfetch)
	if err != nil {
		return nil, cerrors.NewInfraError(
			"metadata search failed",
			err.Error(),
			"check DATABASE_URL and that Postgres is reachable",
			fmt.Errorf("%w: %v", cerrors.ErrUnavailable, err),
		)
	}

	hits, degraded := e.vectorHits(ctx, plan, resp)

	vw, kw := vectorWeight, keywordWeight
	if degraded {
		vw, kw = 0, 1
	}

	keywords := plan.Keywords
	results := make([]ScoredResult, 0, len(summaries))
	for _, g := range summaries {
		tokens := summaryTokens(g)

		overlap := keywordOverlap(keywords, tokens)
		keywordScore := float64(overlap) / math.Max(1, float64(len(keywords)))

		var vectorScore float64
		if !degraded {
			if score, ok := hits[g.ID]; ok {
				vectorScore = score
			} else {
				vectorScore = fallbackBase + fallbackPerWord*float64(overlap)
				if vectorScore > fallbackCap {
					vectorScore = fallbackCap
				}
			}
		}

		results = append(results, ScoredResult{
			GameSummary:  g,
			VectorScore:  vectorScore,
			KeywordScore: keywordScore,
			TotalScore:   vw*vectorScore + kw*keywordScore,
		})
	}

	sortResults(results)
	if len(results) > plan.Limit {
		results = results[:plan.Limit]
	}
	for i := range results {
		results[i].FinalScore = results[i].TotalScore
	}

	resp.Results = results
	e.log.Debug("query.executed",
		"run_id", resp.RunID,
		"candidates", len(summaries),
		"results", len(results),
		"degraded", degraded,
	)
	return resp, nil
}

// vectorHits runs the vector search and indexes the best hit per game.
// It reports degraded=true when the executor must fall back to
// keyword-only scoring.
func (e *Executor) vectorHits(ctx context.Context, plan intent.Plan, resp *Response) (map[int64]float64, bool) {
	if e.vectors == nil {
		resp.Warnings = append(resp.Warnings, "Vector search unavailable")
		return nil, true
	}

	vec, err := e.queryVector(ctx, plan)
	if err != nil {
		resp.Warnings = append(resp.Warnings, "Vector search unavailable")
		e.log.Warn("query.embed.failed", "error", err)
		return nil, true
	}

	hits, err := e.vectors.Search(ctx, vec, vectorFilter(plan), vectorSearchLimit)
	if err != nil {
		if errors.Is(err, cerrors.ErrUnavailable) {
			resp.Warnings = append(resp.Warnings, "Vector search unavailable")
		} else {
			resp.Warnings = append(resp.Warnings, "Vector search failed: "+err.Error())
		}
		e.log.Warn("query.vector.degraded", "error", err)
		return nil, true
	}

	best := make(map[int64]float64, len(hits))
	for _, h := range hits {
		gameID, ok := payloadGameID(h.Payload)
		if !ok {
			continue
		}
		if h.Score > best[gameID] {
			best[gameID] = h.Score
		}
	}
	return best, false
}

// queryVector embeds the cleaned text when a real embedder is wired,
// else derives the deterministic keyword pseudo-vector.
func (e *Executor) queryVector(ctx context.Context, plan intent.Plan) ([]float32, error) {
	if e.embedder != nil {
		vecs, err := e.embedder.Embed(ctx, []string{plan.CleanedText})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for one input", len(vecs))
		}
		return vecs[0], nil
	}
	return PseudoVector(plan.Keywords), nil
}

// PseudoVector hashes each keyword into one of 8 buckets and
// L2-normalizes the result. Deterministic, and the zero vector for an
// empty keyword list.
func PseudoVector(keywords []string) []float32 {
	v := make([]float32, 8)
	for _, kw := range keywords {
		h := fnv.New32a()
		h.Write([]byte(kw))
		v[h.Sum32()%8]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}

// FiltersFromPlan maps intent filters onto metadata predicates.
func FiltersFromPlan(plan intent.Plan) store.GameFilters {
	f := store.GameFilters{
		WhiteMin:       plan.Rating.WhiteMin,
		BlackMin:       plan.Rating.BlackMin,
		MaxRatingDelta: plan.Rating.MaxRatingDelta,
	}
	for _, flt := range plan.Filters {
		switch flt.Field {
		case "opening":
			f.OpeningSlugs = append(f.OpeningSlugs, flt.Value)
		case "eco_range":
			if lo, hi, ok := splitECORange(flt.Value); ok {
				f.ECORanges = append(f.ECORanges, store.ECORange{Lo: lo, Hi: hi})
			}
		}
	}
	return f
}

// vectorFilter maps the plan onto payload predicates. ECO ranges are
// not expressible as payload ranges (the codes are strings); the
// metadata intersection enforces them.
func vectorFilter(plan intent.Plan) vectorstore.Filter {
	var f vectorstore.Filter

	var slugs []string
	for _, flt := range plan.Filters {
		if flt.Field == "opening" {
			slugs = append(slugs, flt.Value)
		}
	}
	if len(slugs) > 0 {
		f.Must = append(f.Must, vectorstore.Condition{Key: "opening_slug", MatchAny: slugs})
	}

	if plan.Rating.WhiteMin > 0 {
		gte := float64(plan.Rating.WhiteMin)
		f.Must = append(f.Must, vectorstore.Condition{Key: "white_elo", GTE: &gte})
	}
	if plan.Rating.BlackMin > 0 {
		gte := float64(plan.Rating.BlackMin)
		f.Must = append(f.Must, vectorstore.Condition{Key: "black_elo", GTE: &gte})
	}
	return f
}

func splitECORange(s string) (lo, hi string, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// sortResults orders by total score descending, then played_on
// descending (unknown dates last), then game id ascending.
func sortResults(results []ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		switch {
		case a.PlayedOn == nil && b.PlayedOn != nil:
			return false
		case a.PlayedOn != nil && b.PlayedOn == nil:
			return true
		case a.PlayedOn != nil && b.PlayedOn != nil && !a.PlayedOn.Equal(*b.PlayedOn):
			return a.PlayedOn.After(*b.PlayedOn)
		}
		return a.ID < b.ID
	})
}

// summaryTokens normalizes the searchable text of a summary: player
// names, opening name, event.
func summaryTokens(g store.GameSummary) map[string]bool {
	parts := []string{g.White, g.Black, g.Event}
	if g.OpeningName != nil {
		parts = append(parts, *g.OpeningName)
	}
	tokens := map[string]bool{}
	for _, tok := range strings.Fields(openings.Normalize(strings.Join(parts, " "))) {
		tokens[tok] = true
	}
	return tokens
}

func keywordOverlap(keywords []string, tokens map[string]bool) int {
	n := 0
	for _, kw := range keywords {
		if tokens[kw] {
			n++
		}
	}
	return n
}

// payloadGameID extracts game_id from a vector payload; JSON numbers
// arrive as float64.
func payloadGameID(payload map[string]any) (int64, bool) {
	switch v := payload["game_id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
