// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(Config{BaseURL: srv.URL, Collection: "positions"}), srv
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	var created map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			http.NotFound(w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/positions":
			json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	if err := c.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	vectors, _ := created["vectors"].(map[string]any)
	if vectors["size"] != float64(1536) || vectors["distance"] != "Cosine" {
		t.Errorf("collection config = %v", created)
	}
}

func TestUpsertPoints_Shape(t *testing.T) {
	var body map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/positions/points" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Error("upsert must wait for durability")
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := c.UpsertPoints(context.Background(), []Point{{
		ID:     42,
		Vector: []float32{0.1, 0.2},
		Payload: map[string]any{
			"game_id": int64(7), "ply": 3, "opening_slug": "sicilian_najdorf",
		},
	}})
	if err != nil {
		t.Fatalf("UpsertPoints: %v", err)
	}

	points := body["points"].([]any)
	p := points[0].(map[string]any)
	if p["id"] != float64(42) {
		t.Errorf("point id = %v", p["id"])
	}
	payload := p["payload"].(map[string]any)
	if payload["opening_slug"] != "sicilian_najdorf" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSearch_FilterGrammarAndScores(t *testing.T) {
	var body map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/positions/points/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": 1, "score": 0.91, "payload": map[string]any{"game_id": 5}},
					{"id": 2, "score": 1.2, "payload": map[string]any{"game_id": 6}},
					{"id": 3, "score": -0.1, "payload": map[string]any{"game_id": 7}},
				},
			},
		})
	}))
	defer srv.Close()

	gte := 2500.0
	filter := Filter{Must: []Condition{
		{Key: "opening_slug", MatchAny: []string{"kings_indian_defense"}},
		{Key: "white_elo", GTE: &gte},
	}}

	hits, err := c.Search(context.Background(), []float32{1, 0}, filter, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if body["limit"] != float64(100) || body["with_payload"] != true {
		t.Errorf("query body = %v", body)
	}
	must := body["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("filter must = %v", must)
	}
	eq := must[0].(map[string]any)
	if eq["key"] != "opening_slug" || eq["match"].(map[string]any)["value"] != "kings_indian_defense" {
		t.Errorf("equality condition = %v", eq)
	}
	rg := must[1].(map[string]any)
	if rg["range"].(map[string]any)["gte"] != float64(2500) {
		t.Errorf("range condition = %v", rg)
	}

	// Scores clamped into [0,1].
	if hits[0].Score != 0.91 || hits[1].Score != 1 || hits[2].Score != 0 {
		t.Errorf("scores = %v %v %v", hits[0].Score, hits[1].Score, hits[2].Score)
	}
}

func TestSearch_ServerErrorIsUnavailable(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := c.Search(context.Background(), []float32{1}, Filter{}, 10)
	if !errors.Is(err, cerrors.ErrUnavailable) {
		t.Fatalf("5xx must map to ErrUnavailable, got %v", err)
	}
}

func TestSearch_ConnectionRefusedIsUnavailable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Collection: "positions"})
	_, err := c.Search(context.Background(), []float32{1}, Filter{}, 10)
	if !errors.Is(err, cerrors.ErrUnavailable) {
		t.Fatalf("transport failure must map to ErrUnavailable, got %v", err)
	}
}
