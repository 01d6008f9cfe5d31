// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package embedding provides the batch embedding capability used by the
// worker pool and the query executor. The production implementation
// talks to the OpenAI embeddings endpoint; tests substitute the Mock.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxBatchSize is the largest input slice a single Embed call accepts.
// The worker's claim batch is sized to match.
const MaxBatchSize = 16

// Embedder turns text into fixed-dimension vectors, preserving input
// order in the output.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// APIError is a non-2xx response from the embedding endpoint.
type APIError struct {
	StatusCode int
	Message    string

	// RetryAfter is the server-suggested backoff from a 429, zero when
	// the header was absent or unparseable.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding api: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying: rate limits
// and server-side errors are, other client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Retryable classifies any embedding failure. Network-level errors
// (no *APIError in the chain) are always retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
