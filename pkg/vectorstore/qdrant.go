// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package vectorstore is the Qdrant adapter: idempotent point upserts
// and filtered k-NN search over the position vectors.
//
// Transport failures and server errors surface as ErrUnavailable so the
// hybrid executor can degrade to keyword-only scoring instead of
// failing the query.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

// Point is one vector with its payload, keyed by a numeric id derived
// from the position FEN.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// Hit is one search result. Score is normalized to [0,1].
type Hit struct {
	ID      uint64
	Score   float64
	Payload map[string]any
}

// Condition is one predicate of a conjunctive filter: either an
// equality match (MatchAny) or a numeric range (GTE/LTE), never both.
type Condition struct {
	Key      string
	MatchAny []string
	GTE, LTE *float64
}

// Filter is a conjunction of conditions. The zero value matches all.
type Filter struct {
	Must []Condition
}

// Config configures the adapter.
type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
}

// Client talks to one Qdrant collection over REST.
type Client struct {
	baseURL    string
	collection string
	client     *http.Client
}

// New builds a Client. Timeout defaults to 10 seconds.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection if it does not exist, with
// cosine distance at the given dimensionality.
func (c *Client) EnsureCollection(ctx context.Context, dimensions int) error {
	status, _, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	status, raw, err := c.do(ctx, http.MethodPut, c.collectionPath(), body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("create collection %s: status %d: %s", c.collection, status, raw)
	}
	return nil
}

// UpsertPoints writes points idempotently: re-upserting an id replaces
// its vector and payload.
func (c *Client) UpsertPoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	items := make([]map[string]any, len(points))
	for i, p := range points {
		items[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}

	status, raw, err := c.do(ctx, http.MethodPut,
		c.collectionPath()+"/points?wait=true", map[string]any{"points": items})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert %d points: status %d: %s", len(points), status, raw)
	}
	return nil
}

type queryResponse struct {
	Result struct {
		Points []struct {
			ID      uint64         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

// Search runs filtered k-NN and returns hits with scores clamped to
// [0,1].
func (c *Client) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error) {
	body := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := filter.toJSON(); f != nil {
		body["filter"] = f
	}

	status, raw, err := c.do(ctx, http.MethodPost, c.collectionPath()+"/points/query", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search: status %d: %s", status, raw)
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, len(parsed.Result.Points))
	for i, p := range parsed.Result.Points {
		hits[i] = Hit{ID: p.ID, Score: clamp01(p.Score), Payload: p.Payload}
	}
	return hits, nil
}

// toJSON renders the filter in Qdrant's condition grammar, or nil for
// the match-all filter.
func (f Filter) toJSON() map[string]any {
	if len(f.Must) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(f.Must))
	for _, cond := range f.Must {
		switch {
		case len(cond.MatchAny) == 1:
			must = append(must, map[string]any{
				"key":   cond.Key,
				"match": map[string]any{"value": cond.MatchAny[0]},
			})
		case len(cond.MatchAny) > 1:
			must = append(must, map[string]any{
				"key":   cond.Key,
				"match": map[string]any{"any": cond.MatchAny},
			})
		default:
			r := map[string]any{}
			if cond.GTE != nil {
				r["gte"] = *cond.GTE
			}
			if cond.LTE != nil {
				r["lte"] = *cond.LTE
			}
			must = append(must, map[string]any{"key": cond.Key, "range": r})
		}
	}
	return map[string]any{"must": must}
}

func (c *Client) collectionPath() string {
	return "/collections/" + c.collection
}

// do performs one JSON request. Transport failures and 5xx responses
// map to ErrUnavailable; other statuses are returned for the caller to
// interpret.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: vector store: %v", cerrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: vector store: %v", cerrors.ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return 0, nil, fmt.Errorf("%w: vector store: status %d", cerrors.ErrUnavailable, resp.StatusCode)
	}
	return resp.StatusCode, raw, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
