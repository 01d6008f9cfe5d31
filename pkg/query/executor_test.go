// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/pkg/intent"
	"github.com/chessmate/chessmate/pkg/store"
	"github.com/chessmate/chessmate/pkg/vectorstore"
)

type fakeMeta struct {
	summaries []store.GameSummary
	err       error
	gotFilter store.GameFilters
	gotLimit  int
}

func (f *fakeMeta) SearchGames(_ context.Context, filters store.GameFilters, overfetch int) ([]store.GameSummary, error) {
	f.gotFilter, f.gotLimit = filters, overfetch
	return f.summaries, f.err
}

type fakeVectors struct {
	hits      []vectorstore.Hit
	err       error
	gotFilter vectorstore.Filter
}

func (f *fakeVectors) Search(_ context.Context, _ []float32, filter vectorstore.Filter, _ int) ([]vectorstore.Hit, error) {
	f.gotFilter = filter
	return f.hits, f.err
}

func summaries() []store.GameSummary {
	opening := "King's Indian Defense"
	return []store.GameSummary{
		{ID: 1, White: "Kasparov", Black: "Karpov", Event: "Linares", OpeningName: &opening},
		{ID: 2, White: "Smith", Black: "Jones", Event: "Open"},
	}
}

// Hybrid fusion: A has a vector hit and strong keyword overlap, B falls
// back; C (a hit outside the metadata set) is excluded.
func TestExecute_HybridFusion(t *testing.T) {
	meta := &fakeMeta{summaries: summaries()}
	vecs := &fakeVectors{hits: []vectorstore.Hit{
		{ID: 11, Score: 0.9, Payload: map[string]any{"game_id": float64(1)}},
		{ID: 12, Score: 0.95, Payload: map[string]any{"game_id": float64(3)}}, // not in metadata
	}}
	e := New(meta, vecs, nil, nil)

	plan := intent.Plan{
		Limit:    5,
		Keywords: []string{"kasparov", "karpov", "linares", "brilliancy", "jones"},
	}
	resp, err := e.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results (game 3 excluded), got %d", len(resp.Results))
	}

	a, b := resp.Results[0], resp.Results[1]
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("order = [%d, %d], want [1, 2]", a.ID, b.ID)
	}

	// A: vector hit 0.9, keywords 3/5.
	assertNear(t, "A vector", a.VectorScore, 0.9)
	assertNear(t, "A keyword", a.KeywordScore, 0.6)
	assertNear(t, "A total", a.TotalScore, 0.7*0.9+0.3*0.6)

	// B: no hit, 1 overlapping keyword -> fallback 0.51, keywords 1/5.
	assertNear(t, "B vector", b.VectorScore, 0.51)
	assertNear(t, "B keyword", b.KeywordScore, 0.2)
	assertNear(t, "B total", b.TotalScore, 0.7*0.51+0.3*0.2)
}

func TestExecute_FallbackCap(t *testing.T) {
	// Enough overlapping keywords to push the fallback past its cap.
	meta := &fakeMeta{summaries: []store.GameSummary{
		{ID: 1, White: "a b c d e f g h i j", Black: "k l m n o p q r s t u v w x y z"},
	}}
	vecs := &fakeVectors{}
	e := New(meta, vecs, nil, nil)

	plan := intent.Plan{Limit: 5}
	for _, kw := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
		"k", "l", "m", "n", "o", "p", "q", "r", "s", "t", "u", "v", "w"} {
		plan.Keywords = append(plan.Keywords, kw)
	}

	resp, err := e.Execute(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	assertNear(t, "capped fallback", resp.Results[0].VectorScore, 0.7)
}

func TestExecute_VectorOutageDegrades(t *testing.T) {
	meta := &fakeMeta{summaries: summaries()}
	vecs := &fakeVectors{err: cerrors.ErrUnavailable}
	e := New(meta, vecs, nil, nil)

	plan := intent.Plan{Limit: 5, Keywords: []string{"kasparov"}}
	resp, err := e.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("degraded query must not fail: %v", err)
	}

	if len(resp.Warnings) != 1 || resp.Warnings[0] != "Vector search unavailable" {
		t.Errorf("warnings = %v", resp.Warnings)
	}
	for _, r := range resp.Results {
		if r.VectorScore != 0 {
			t.Errorf("game %d vector score = %f, want 0", r.ID, r.VectorScore)
		}
		if r.TotalScore != r.KeywordScore {
			t.Errorf("weights must collapse to keyword-only: %+v", r)
		}
	}
}

func TestExecute_MetadataFailureFails(t *testing.T) {
	meta := &fakeMeta{err: errors.New("connection refused")}
	e := New(meta, &fakeVectors{}, nil, nil)

	_, err := e.Execute(context.Background(), intent.Plan{Limit: 5})
	if !errors.Is(err, cerrors.ErrUnavailable) {
		t.Fatalf("metadata failure must be Unavailable, got %v", err)
	}
	var ue *cerrors.UserError
	if !errors.As(err, &ue) || ue.ExitCode != cerrors.ExitInfra {
		t.Errorf("expected infra exit code, got %v", err)
	}
}

func TestExecute_OverfetchAndTruncate(t *testing.T) {
	var many []store.GameSummary
	for i := int64(1); i <= 60; i++ {
		many = append(many, store.GameSummary{ID: i})
	}
	meta := &fakeMeta{summaries: many}
	e := New(meta, &fakeVectors{}, nil, nil)

	resp, err := e.Execute(context.Background(), intent.Plan{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if meta.gotLimit != 50 {
		t.Errorf("overfetch = %d, want max(3*10, 50) = 50", meta.gotLimit)
	}
	if len(resp.Results) != 3 {
		t.Errorf("results = %d, want 3", len(resp.Results))
	}

	e.Execute(context.Background(), intent.Plan{Limit: 10})
	if meta.gotLimit != 100 {
		t.Errorf("overfetch = %d, want 100", meta.gotLimit)
	}
}

func TestExecute_Tiebreaks(t *testing.T) {
	older := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := &fakeMeta{summaries: []store.GameSummary{
		{ID: 5, PlayedOn: &older},
		{ID: 9},
		{ID: 3, PlayedOn: &newer},
		{ID: 2, PlayedOn: &newer},
	}}
	e := New(meta, &fakeVectors{}, nil, nil)

	resp, err := e.Execute(context.Background(), intent.Plan{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}

	var ids []int64
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	// Equal scores: newest first, unknown dates last, id ascending on
	// equal dates.
	want := []int64{2, 3, 5, 9}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestExecute_PayloadFilters(t *testing.T) {
	meta := &fakeMeta{summaries: summaries()}
	vecs := &fakeVectors{}
	e := New(meta, vecs, nil, nil)

	plan := intent.Plan{
		Limit: 5,
		Filters: []intent.Filter{
			{Field: "opening", Value: "kings_indian_defense"},
			{Field: "eco_range", Value: "E60-E99"},
		},
		Rating: intent.RatingFilter{WhiteMin: 2500},
	}
	if _, err := e.Execute(context.Background(), plan); err != nil {
		t.Fatal(err)
	}

	// Metadata side sees slug, ECO range, and rating bound.
	if len(meta.gotFilter.OpeningSlugs) != 1 || meta.gotFilter.OpeningSlugs[0] != "kings_indian_defense" {
		t.Errorf("metadata slugs = %v", meta.gotFilter.OpeningSlugs)
	}
	if len(meta.gotFilter.ECORanges) != 1 || meta.gotFilter.ECORanges[0] != (store.ECORange{Lo: "E60", Hi: "E99"}) {
		t.Errorf("metadata eco ranges = %v", meta.gotFilter.ECORanges)
	}

	// Vector side sees slug match and elo range.
	var keys []string
	for _, c := range vecs.gotFilter.Must {
		keys = append(keys, c.Key)
	}
	if len(keys) != 2 || keys[0] != "opening_slug" || keys[1] != "white_elo" {
		t.Errorf("vector filter keys = %v", keys)
	}
}

func TestPseudoVector(t *testing.T) {
	a := PseudoVector([]string{"kasparov", "endgame"})
	b := PseudoVector([]string{"kasparov", "endgame"})
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("pseudo-vector is not deterministic")
		}
	}

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("pseudo-vector not unit length: %f", norm)
	}

	zero := PseudoVector(nil)
	for _, x := range zero {
		if x != 0 {
			t.Errorf("empty keywords must yield the zero vector: %v", zero)
		}
	}
}

func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}
