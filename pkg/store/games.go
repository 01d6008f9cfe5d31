// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

// Player is one row in players. Peak rating only ever rises.
type Player struct {
	ID           int64
	Name         string
	FederationID *string
	PeakRating   *int
}

// GameRecord is the input for storing one game. Positions must be
// ordered by ply starting at 1.
type GameRecord struct {
	White, Black   Player
	Event          string
	Site           string
	Round          string
	PlayedOn       *time.Time
	Result         string
	ECOCode        *string
	OpeningSlug    *string
	OpeningName    *string
	WhiteRating    *int
	BlackRating    *int
	PGN            string
	Positions      []PositionRecord
}

// PositionRecord is one per-ply snapshot to persist.
type PositionRecord struct {
	Ply        int
	MoveNumber int
	SideToMove string
	SAN        string
	FEN        string
}

// GameSummary is the metadata-search projection of a game.
type GameSummary struct {
	ID          int64      `json:"id"`
	White       string     `json:"white"`
	Black       string     `json:"black"`
	Event       string     `json:"event,omitempty"`
	PlayedOn    *time.Time `json:"played_on,omitempty"`
	Result      string     `json:"result"`
	ECOCode     *string    `json:"eco_code,omitempty"`
	OpeningSlug *string    `json:"opening_slug,omitempty"`
	OpeningName *string    `json:"opening_name,omitempty"`
	WhiteRating *int       `json:"white_rating,omitempty"`
	BlackRating *int       `json:"black_rating,omitempty"`
}

// GameDetail is a summary plus the full PGN, for the agent evaluator.
type GameDetail struct {
	GameSummary
	PGN string `json:"-"`
}

// ECORange is an inclusive pair of 3-character ECO codes.
type ECORange struct {
	Lo, Hi string
}

// GameFilters are the metadata predicates of a query plan. Zero values
// mean "no constraint". OpeningSlugs and ECORanges together form one
// disjunction; the remaining fields are conjunctive.
type GameFilters struct {
	OpeningSlugs   []string
	ECORanges      []ECORange
	Result         string
	WhiteMin       int
	BlackMin       int
	MaxRatingDelta int
}

// StoreGame persists one game atomically: player upserts, the game row,
// all positions, and one pending embedding job per position happen in a
// single transaction. Returns the new game id and the number of jobs
// enqueued, or ErrDuplicateGame when the identical game already exists.
func (s *Store) StoreGame(ctx context.Context, rec *GameRecord) (gameID int64, enqueued int64, err error) {
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		whiteID, err := upsertPlayer(ctx, tx, rec.White)
		if err != nil {
			return fmt.Errorf("upsert white: %w", err)
		}
		blackID, err := upsertPlayer(ctx, tx, rec.Black)
		if err != nil {
			return fmt.Errorf("upsert black: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO games (white_id, black_id, event, site, round, played_on,
			                   result, eco_code, opening_slug, opening_name,
			                   white_rating, black_rating, pgn)
			VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (white_id, black_id, COALESCE(played_on, '0001-01-01'::date), md5(pgn))
			DO NOTHING
			RETURNING id`,
			whiteID, blackID, rec.Event, rec.Site, rec.Round, rec.PlayedOn,
			rec.Result, rec.ECOCode, rec.OpeningSlug, rec.OpeningName,
			rec.WhiteRating, rec.BlackRating, rec.PGN,
		)
		if err := row.Scan(&gameID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
				return cerrors.ErrDuplicateGame
			}
			return fmt.Errorf("insert game: %w", err)
		}

		rows := make([][]any, len(rec.Positions))
		for i, p := range rec.Positions {
			rows[i] = []any{gameID, p.Ply, p.MoveNumber, p.SideToMove, p.SAN, p.FEN}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"positions"},
			[]string{"game_id", "ply", "move_number", "side_to_move", "san", "fen"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert positions: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO embedding_jobs (position_id)
			SELECT id FROM positions WHERE game_id = $1
			ON CONFLICT (position_id) DO NOTHING`, gameID)
		if err != nil {
			return fmt.Errorf("enqueue jobs: %w", err)
		}
		enqueued = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return gameID, enqueued, nil
}

func upsertPlayer(ctx context.Context, tx pgx.Tx, p Player) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO players (name, federation_id, peak_rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, COALESCE(federation_id, ''))
		DO UPDATE SET peak_rating = GREATEST(players.peak_rating, EXCLUDED.peak_rating)
		RETURNING id`,
		p.Name, p.FederationID, p.PeakRating,
	).Scan(&id)
	return id, err
}

const summaryColumns = `
	g.id, w.name, b.name, COALESCE(g.event, ''), g.played_on, g.result,
	g.eco_code, g.opening_slug, g.opening_name, g.white_rating, g.black_rating`

// SearchGames applies metadata filters and returns up to overfetch
// summaries ordered by played_on DESC. overfetch is computed by the
// caller as max(limit*10, 50).
func (s *Store) SearchGames(ctx context.Context, f GameFilters, overfetch int) ([]GameSummary, error) {
	sql, args := buildSearchQuery(f, overfetch)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search games: %w", infra(err))
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.ID, &g.White, &g.Black, &g.Event, &g.PlayedOn, &g.Result,
			&g.ECOCode, &g.OpeningSlug, &g.OpeningName, &g.WhiteRating, &g.BlackRating); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search games: %w", infra(err))
	}
	return out, nil
}

// buildSearchQuery renders the filter conjunction into SQL. Opening
// slugs and ECO ranges form one disjunctive group; everything else ANDs.
func buildSearchQuery(f GameFilters, overfetch int) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var openingOr []string
	if len(f.OpeningSlugs) > 0 {
		openingOr = append(openingOr, fmt.Sprintf("g.opening_slug = ANY(%s)", arg(f.OpeningSlugs)))
	}
	for _, r := range f.ECORanges {
		openingOr = append(openingOr,
			fmt.Sprintf("(g.eco_code >= %s AND g.eco_code <= %s)", arg(r.Lo), arg(r.Hi)))
	}
	if len(openingOr) > 0 {
		where = append(where, "("+strings.Join(openingOr, " OR ")+")")
	}

	if f.Result != "" {
		where = append(where, "g.result = "+arg(f.Result))
	}
	if f.WhiteMin > 0 {
		where = append(where, "g.white_rating >= "+arg(f.WhiteMin))
	}
	if f.BlackMin > 0 {
		where = append(where, "g.black_rating >= "+arg(f.BlackMin))
	}
	if f.MaxRatingDelta > 0 {
		where = append(where,
			"g.white_rating IS NOT NULL AND g.black_rating IS NOT NULL AND abs(g.white_rating - g.black_rating) <= "+arg(f.MaxRatingDelta))
	}

	sql := `SELECT` + summaryColumns + `
	FROM games g
	JOIN players w ON w.id = g.white_id
	JOIN players b ON b.id = g.black_id`
	if len(where) > 0 {
		sql += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	sql += "\n\tORDER BY g.played_on DESC NULLS LAST, g.id ASC\n\tLIMIT " + arg(overfetch)
	return sql, args
}

// FetchGamesWithPGN loads full game details for the given ids, returned
// in the order of ids. Unknown ids are silently dropped.
func (s *Store) FetchGamesWithPGN(ctx context.Context, ids []int64) ([]GameDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT`+summaryColumns+`, g.pgn
		FROM games g
		JOIN players w ON w.id = g.white_id
		JOIN players b ON b.id = g.black_id
		WHERE g.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch games: %w", infra(err))
	}
	defer rows.Close()

	byID := make(map[int64]GameDetail, len(ids))
	for rows.Next() {
		var d GameDetail
		if err := rows.Scan(&d.ID, &d.White, &d.Black, &d.Event, &d.PlayedOn, &d.Result,
			&d.ECOCode, &d.OpeningSlug, &d.OpeningName, &d.WhiteRating, &d.BlackRating, &d.PGN); err != nil {
			return nil, fmt.Errorf("scan detail: %w", err)
		}
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch games: %w", infra(err))
	}

	out := make([]GameDetail, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// CountGames returns the number of stored games.
func (s *Store) CountGames(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w", infra(err))
	}
	return n, nil
}

// PositionContext is everything the worker needs to embed one position
// and build its vector payload: the FEN plus the owning game's metadata.
type PositionContext struct {
	PositionID  int64
	GameID      int64
	Ply         int
	FEN         string
	WhiteName   string
	BlackName   string
	WhiteElo    *int
	BlackElo    *int
	OpeningSlug *string
	ECOCode     *string
	Result      string
}

// FetchPositionContexts loads worker payload context for a claimed
// batch, keyed by position id.
func (s *Store) FetchPositionContexts(ctx context.Context, positionIDs []int64) (map[int64]PositionContext, error) {
	if len(positionIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.game_id, p.ply, p.fen, w.name, b.name,
		       g.white_rating, g.black_rating, g.opening_slug, g.eco_code, g.result
		FROM positions p
		JOIN games g   ON g.id = p.game_id
		JOIN players w ON w.id = g.white_id
		JOIN players b ON b.id = g.black_id
		WHERE p.id = ANY($1)`, positionIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch position contexts: %w", infra(err))
	}
	defer rows.Close()

	out := make(map[int64]PositionContext, len(positionIDs))
	for rows.Next() {
		var pc PositionContext
		if err := rows.Scan(&pc.PositionID, &pc.GameID, &pc.Ply, &pc.FEN,
			&pc.WhiteName, &pc.BlackName, &pc.WhiteElo, &pc.BlackElo,
			&pc.OpeningSlug, &pc.ECOCode, &pc.Result); err != nil {
			return nil, fmt.Errorf("scan position context: %w", err)
		}
		out[pc.PositionID] = pc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch position contexts: %w", infra(err))
	}
	return out, nil
}

// isUniqueViolation reports a 23505 from Postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
