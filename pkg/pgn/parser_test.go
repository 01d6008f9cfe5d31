// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pgn

import (
	"errors"
	"strings"
	"testing"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

const scholarsMate = `[Event "Casual Game"]
[Site "?"]
[Date "2024.01.15"]
[White "Attacker, Alice"]
[Black "Defender, Bob"]
[WhiteElo "2100"]
[BlackElo "1900"]
[ECO "C20"]
[Result "1-0"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0
`

func scan(t *testing.T, input string) []*Game {
	t.Helper()
	var games []*Game
	sc := NewScanner(strings.NewReader(input))
	for sc.Scan() {
		g, err := sc.Game()
		if err != nil {
			t.Fatalf("unexpected per-game error: %v", err)
		}
		games = append(games, g)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return games
}

func TestScanner_SingleGame(t *testing.T) {
	games := scan(t, scholarsMate)
	if len(games) != 1 {
		t.Fatalf("expected 1 game, got %d", len(games))
	}

	g := games[0]
	if g.Index != 1 || g.Result != "1-0" {
		t.Errorf("index=%d result=%q", g.Index, g.Result)
	}
	if g.WhiteName() != "Attacker, Alice" || g.BlackName() != "Defender, Bob" {
		t.Errorf("players: %q vs %q", g.WhiteName(), g.BlackName())
	}
	if got := len(g.Positions); got != 7 {
		t.Fatalf("expected 7 plies, got %d", got)
	}

	first := g.Positions[0]
	if first.Ply != 1 || first.SAN != "e4" || first.SideToMove != "black" || first.MoveNumber != 1 {
		t.Errorf("unexpected first position: %+v", first)
	}
	if !strings.HasPrefix(first.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq") {
		t.Errorf("unexpected FEN after 1.e4: %s", first.FEN)
	}

	last := g.Positions[6]
	if last.SAN != "Qxf7#" || last.SideToMove != "black" || last.MoveNumber != 4 {
		t.Errorf("unexpected final position: %+v", last)
	}
}

func TestScanner_SideToMoveAlternates(t *testing.T) {
	g := scan(t, scholarsMate)[0]
	for i, p := range g.Positions {
		want := "black"
		if i%2 == 1 {
			want = "white"
		}
		if p.SideToMove != want {
			t.Errorf("ply %d: side_to_move = %q, want %q", p.Ply, p.SideToMove, want)
		}
	}
}

func TestScanner_MultipleGames(t *testing.T) {
	input := scholarsMate + "\n" + `[Event "Second"]
[White "Carol"]
[Black "Dave"]
[Result "1/2-1/2"]

1. d4 d5 1/2-1/2
`
	games := scan(t, input)
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[1].Index != 2 || games[1].Result != "1/2-1/2" || len(games[1].Positions) != 2 {
		t.Errorf("second game: index=%d result=%q plies=%d",
			games[1].Index, games[1].Result, len(games[1].Positions))
	}
}

func TestScanner_CommentsVariationsNAGs(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[Result "*"]

1. e4 {best by test (says Fischer)} e5 $1 2. Nf3!? (2. f4 {the gambit}
exf4 (2... d5)) 2... Nc6 ; trailing comment
3. Bb5 *
`
	games := scan(t, input)
	if len(games) != 1 {
		t.Fatalf("expected 1 game, got %d", len(games))
	}
	var sans []string
	for _, p := range games[0].Positions {
		sans = append(sans, p.SAN)
	}
	want := []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}
	if len(sans) != len(want) {
		t.Fatalf("sans = %v, want %v", sans, want)
	}
	for i := range want {
		if sans[i] != want[i] {
			t.Errorf("ply %d: %q, want %q", i+1, sans[i], want[i])
		}
	}
}

func TestScanner_MultilineCommentDoesNotSplitGame(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[Result "*"]

1. e4 {a comment

that spans a blank line} e5 *
`
	games := scan(t, input)
	if len(games) != 1 || len(games[0].Positions) != 2 {
		t.Fatalf("comment with embedded blank line split the game: %v", games)
	}
}

func TestScanner_NoMovesError(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[Result "*"]

*

[White "C"]
[Black "D"]
[Result "1-0"]

1. e4 1-0
`
	sc := NewScanner(strings.NewReader(input))

	if !sc.Scan() {
		t.Fatal("expected first game")
	}
	_, err := sc.Game()
	var noMoves *cerrors.NoMovesError
	if !errors.As(err, &noMoves) || noMoves.Game != 1 {
		t.Fatalf("expected NoMovesError for game 1, got %v", err)
	}

	if !sc.Scan() {
		t.Fatal("stream should continue past an empty game")
	}
	g, err := sc.Game()
	if err != nil || len(g.Positions) != 1 {
		t.Fatalf("second game should parse: %v %v", g, err)
	}
}

func TestScanner_IllegalMoveError(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[Result "*"]

1. e4 e5 2. Ke3 *

[White "C"]
[Black "D"]
[Result "*"]

1. d4 *
`
	sc := NewScanner(strings.NewReader(input))

	if !sc.Scan() {
		t.Fatal("expected first game")
	}
	_, err := sc.Game()
	var illegal *cerrors.IllegalMoveError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalMoveError, got %v", err)
	}
	if illegal.Game != 1 || illegal.Ply != 3 || illegal.SAN != "Ke3" {
		t.Errorf("unexpected error detail: %+v", illegal)
	}

	if !sc.Scan() {
		t.Fatal("stream should continue past an illegal game")
	}
	if g, err := sc.Game(); err != nil || len(g.Positions) != 1 {
		t.Fatalf("second game should parse: %v", err)
	}
}

func TestScanner_BadEncodingIsStreamFatal(t *testing.T) {
	// 0xE9 is "é" in Windows-1252 and invalid as a UTF-8 start byte here.
	input := "[White \"Fran\xe7ois\"]\n[Black \"B\"]\n\n1. e4 *\n"
	sc := NewScanner(strings.NewReader(input))
	for sc.Scan() {
	}
	if !errors.Is(sc.Err(), cerrors.ErrBadEncoding) {
		t.Fatalf("expected ErrBadEncoding, got %v", sc.Err())
	}
}

// failingReader yields its data, then a permanent read error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestScanner_ReadErrorIsStreamFatal(t *testing.T) {
	readErr := errors.New("device not ready")
	sc := NewScanner(&failingReader{data: []byte(scholarsMate + "\n"), err: readErr})

	games := 0
	for sc.Scan() {
		if _, err := sc.Game(); err == nil {
			games++
		}
	}

	// The complete game before the failure is still delivered; the
	// stream must not end as a clean EOF.
	if games != 1 {
		t.Fatalf("expected 1 game before the failure, got %d", games)
	}
	if !errors.Is(sc.Err(), readErr) {
		t.Fatalf("read error not surfaced: Err() = %v", sc.Err())
	}
}

func TestScanner_CustomStartFEN(t *testing.T) {
	input := `[White "A"]
[Black "B"]
[SetUp "1"]
[FEN "4k3/8/8/8/8/8/4P3/4K3 w - - 0 40"]
[Result "*"]

40. e4 Kd7 *
`
	g := scan(t, input)[0]
	if len(g.Positions) != 2 {
		t.Fatalf("expected 2 plies, got %d", len(g.Positions))
	}
	if g.Positions[0].MoveNumber != 40 || g.Positions[1].MoveNumber != 41 {
		t.Errorf("move numbers should continue from the FEN: %+v", g.Positions)
	}
}

func TestScanner_RawPGNPreserved(t *testing.T) {
	g := scan(t, scholarsMate)[0]
	if !strings.Contains(g.PGN, `[ECO "C20"]`) || !strings.Contains(g.PGN, "4. Qxf7# 1-0") {
		t.Errorf("raw PGN not preserved:\n%s", g.PGN)
	}
}

func TestGame_Elo(t *testing.T) {
	g := scan(t, scholarsMate)[0]
	if w := g.Elo("WhiteElo"); w == nil || *w != 2100 {
		t.Errorf("WhiteElo = %v", w)
	}

	tests := []struct {
		tag  string
		want bool // non-nil expected
	}{
		{"?", false}, {"", false}, {"-", false}, {"abc", false}, {"0", false}, {"2750", true},
	}
	for _, tt := range tests {
		g := &Game{Headers: map[string]string{"BlackElo": tt.tag}}
		got := g.Elo("BlackElo")
		if (got != nil) != tt.want {
			t.Errorf("Elo(%q) = %v, want non-nil=%v", tt.tag, got, tt.want)
		}
	}
}

func TestClassifyToken(t *testing.T) {
	tests := []struct {
		tok  string
		san  string
		keep bool
	}{
		{"e4", "e4", true},
		{"1.", "", false},
		{"1...", "", false},
		{"12.e4", "e4", true},
		{"Nf3!?", "Nf3", true},
		{"Qxf7#", "Qxf7#", true},
		{"O-O-O", "O-O-O", true},
		{"$14", "", false},
		{"1-0", "", false},
		{"1/2-1/2", "", false},
	}
	for _, tt := range tests {
		san, _, keep := classifyToken(tt.tok)
		if san != tt.san || keep != tt.keep {
			t.Errorf("classifyToken(%q) = (%q, %v), want (%q, %v)",
				tt.tok, san, keep, tt.san, tt.keep)
		}
	}
}
