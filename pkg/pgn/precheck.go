// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package pgn

import (
	"errors"
	"fmt"
	"io"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

// Issue is one problem found by Precheck in a PGN stream.
type Issue struct {
	// Game is the 1-based index of the offending game.
	Game int `json:"game"`

	// White and Black are the player tags when the headers were readable.
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`

	// Problem is a one-line description, e.g. "illegal move Ke3 at ply 3".
	Problem string `json:"problem"`
}

// Precheck scans a stream the way ingestion would and reports every game
// that ingestion would skip or that carries suspect headers (TWIC exports
// routinely ship games with a missing Result tag). The stream itself must
// be valid UTF-8; encoding problems are returned as an error.
func Precheck(r io.Reader) ([]Issue, int, error) {
	var issues []Issue
	total := 0

	sc := NewScanner(r)
	for sc.Scan() {
		total++
		game, err := sc.Game()
		if err != nil {
			issues = append(issues, issueForError(err))
			continue
		}
		if game.Header("Result") == "" {
			issues = append(issues, Issue{
				Game:    game.Index,
				White:   game.WhiteName(),
				Black:   game.BlackName(),
				Problem: "missing Result tag",
			})
		}
	}
	if err := sc.Err(); err != nil {
		return issues, total, err
	}
	return issues, total, nil
}

func issueForError(err error) Issue {
	var noMoves *cerrors.NoMovesError
	if errors.As(err, &noMoves) {
		return Issue{Game: noMoves.Game, Problem: "no moves"}
	}
	var illegal *cerrors.IllegalMoveError
	if errors.As(err, &illegal) {
		return Issue{
			Game:    illegal.Game,
			Problem: fmt.Sprintf("illegal move %s at ply %d", illegal.SAN, illegal.Ply),
		}
	}
	return Issue{Problem: err.Error()}
}

// FENs streams every FEN of every parseable game in order, invoking fn
// once per ply. Games that fail per-game parsing are skipped, matching
// ingestion behavior.
func FENs(r io.Reader, fn func(fen string) error) error {
	sc := NewScanner(r)
	for sc.Scan() {
		game, err := sc.Game()
		if err != nil {
			continue
		}
		for _, p := range game.Positions {
			if err := fn(p.FEN); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}
