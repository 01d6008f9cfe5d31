// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"strings"
	"testing"
)

func TestBuildSearchQuery_NoFilters(t *testing.T) {
	sql, args := buildSearchQuery(GameFilters{}, 50)

	if strings.Contains(sql, "WHERE") {
		t.Errorf("no filters should produce no WHERE clause:\n%s", sql)
	}
	if !strings.Contains(sql, "ORDER BY g.played_on DESC NULLS LAST, g.id ASC") {
		t.Errorf("missing canonical ordering:\n%s", sql)
	}
	if len(args) != 1 || args[0] != 50 {
		t.Errorf("args = %v, want [50]", args)
	}
}

func TestBuildSearchQuery_OpeningDisjunction(t *testing.T) {
	f := GameFilters{
		OpeningSlugs: []string{"kings_indian_defense"},
		ECORanges:    []ECORange{{Lo: "E60", Hi: "E99"}},
	}
	sql, args := buildSearchQuery(f, 50)

	if !strings.Contains(sql, "g.opening_slug = ANY($1) OR (g.eco_code >= $2 AND g.eco_code <= $3)") {
		t.Errorf("slug and ECO range must be one disjunction:\n%s", sql)
	}
	if len(args) != 4 {
		t.Errorf("args = %v, want 4 entries", args)
	}
}

func TestBuildSearchQuery_ConjunctiveFilters(t *testing.T) {
	f := GameFilters{
		Result:         "1-0",
		WhiteMin:       2500,
		BlackMin:       2400,
		MaxRatingDelta: 100,
	}
	sql, args := buildSearchQuery(f, 30)

	for _, want := range []string{
		"g.result = $1",
		"g.white_rating >= $2",
		"g.black_rating >= $3",
		"abs(g.white_rating - g.black_rating) <= $4",
		"LIMIT $5",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing %q in:\n%s", want, sql)
		}
	}
	if !strings.Contains(sql, "g.white_rating IS NOT NULL AND g.black_rating IS NOT NULL") {
		t.Errorf("delta filter must require both ratings present:\n%s", sql)
	}
	if args[len(args)-1] != 30 {
		t.Errorf("last arg should be the overfetch limit, got %v", args)
	}
}

func TestClaimSQL_SkipsLockedRows(t *testing.T) {
	// The claim statement is the concurrency hinge; pin its shape.
	for _, want := range []string{
		"FOR UPDATE SKIP LOCKED",
		"ORDER BY enqueued_at ASC",
		"status = 'pending'",
		"attempts = j.attempts + 1",
		"started_at = now()",
	} {
		if !strings.Contains(claimSQL, want) {
			t.Errorf("claim statement missing %q", want)
		}
	}
}

func TestFailSQL_CapsRetries(t *testing.T) {
	// Retry is gated on attempts (incremented at claim time) staying
	// below the cap; pin the guard so a sixth attempt stays impossible.
	for _, want := range []string{
		"WHEN $2::bool AND attempts < $3 THEN 'pending'",
		"ELSE 'failed'",
		"started_at = NULL",
		"last_error = $4",
	} {
		if !strings.Contains(failSQL, want) {
			t.Errorf("fail statement missing %q", want)
		}
	}
	if MaxAttempts != 5 {
		t.Errorf("retry cap = %d, want 5", MaxAttempts)
	}
}
