// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Mock is a deterministic in-memory Embedder for tests: the same input
// always produces the same unit-length vector, and calls are recorded.
type Mock struct {
	// Dimensions of generated vectors. Defaults to 8 when zero.
	Dimensions int

	// Err, when set, is returned by every Embed call.
	Err error

	mu    sync.Mutex
	calls [][]string
}

// Embed hashes each input into a deterministic L2-normalized vector.
func (m *Mock) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), inputs...))
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	dims := m.Dimensions
	if dims == 0 {
		dims = 8
	}

	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		out[i] = deterministicVector(input, dims)
	}
	return out, nil
}

// Calls returns a copy of every recorded batch.
func (m *Mock) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

func deterministicVector(input string, dims int) []float32 {
	v := make([]float32, dims)
	h := fnv.New64a()
	h.Write([]byte(input))
	seed := h.Sum64()

	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>33)) / float32(1<<30)
		norm += float64(v[i]) * float64(v[i])
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}
