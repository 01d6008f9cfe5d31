// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pgn

import (
	"strings"
	"testing"
)

func TestPrecheck(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[Result "1-0"]

1. e4 e5 1-0

[White "C"]
[Black "D"]

1. d4 d5

[White "E"]
[Black "F"]
[Result "*"]

1. e4 Kb8 *

[White "G"]
[Black "H"]
[Result "0-1"]

*
`
	issues, total, err := Precheck(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Precheck: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(issues) != 3 {
		t.Fatalf("issues = %+v, want 3", issues)
	}

	if issues[0].Game != 2 || issues[0].Problem != "missing Result tag" || issues[0].White != "C" {
		t.Errorf("issue 0: %+v", issues[0])
	}
	if issues[1].Game != 3 || !strings.Contains(issues[1].Problem, "illegal move Kb8 at ply 2") {
		t.Errorf("issue 1: %+v", issues[1])
	}
	if issues[2].Game != 4 || issues[2].Problem != "no moves" {
		t.Errorf("issue 2: %+v", issues[2])
	}
}

func TestFENs(t *testing.T) {
	input := scholarsMate + "\n" + `[White "Empty"]
[Black "Game"]
[Result "*"]

*
`
	var fens []string
	err := FENs(strings.NewReader(input), func(fen string) error {
		fens = append(fens, fen)
		return nil
	})
	if err != nil {
		t.Fatalf("FENs: %v", err)
	}
	if len(fens) != 7 {
		t.Fatalf("expected 7 FENs (empty game skipped), got %d", len(fens))
	}
	if !strings.HasPrefix(fens[0], "rnbqkbnr/pppppppp/8/8/4P3/") {
		t.Errorf("unexpected first FEN: %s", fens[0])
	}
}
