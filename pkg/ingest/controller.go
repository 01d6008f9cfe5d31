// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ingest implements the ingestion controller: it streams a PGN
// file through the parser, persists each game atomically, and enqueues
// one embedding job per position, subject to queue admission control.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/pkg/openings"
	"github.com/chessmate/chessmate/pkg/pgn"
	"github.com/chessmate/chessmate/pkg/store"
)

// Repository is the slice of the store the controller needs. *store.Store
// satisfies it; tests use a fake.
type Repository interface {
	StoreGame(ctx context.Context, rec *store.GameRecord) (gameID int64, enqueued int64, err error)
	PendingCount(ctx context.Context) (int64, error)
}

// Result summarizes one ingest run.
type Result struct {
	GamesStored     int           `json:"games_stored"`
	GamesSkipped    int           `json:"games_skipped"`
	Duplicates      int           `json:"duplicates"`
	PositionsStored int64         `json:"positions_stored"`
	JobsEnqueued    int64         `json:"jobs_enqueued"`
	Duration        time.Duration `json:"duration"`
}

// Controller drives one or more ingest runs against a repository.
type Controller struct {
	repo       Repository
	maxPending int
	log        *slog.Logger
	stdout     io.Writer
}

// New builds a Controller. maxPending <= 0 disables admission control.
func New(repo Repository, maxPending int, log *slog.Logger, stdout io.Writer) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{repo: repo, maxPending: maxPending, log: log, stdout: stdout}
}

// Run ingests every game in r. The admission threshold is checked before
// each game: once the pending queue exceeds it, the run aborts with
// ErrQueueSaturated and the returned Result reports what was already
// committed (those games stay committed; ingestion is per-game atomic).
func (c *Controller) Run(ctx context.Context, r io.Reader) (*Result, error) {
	ingMetrics.init()
	start := time.Now()
	res := &Result{}
	defer func() {
		res.Duration = time.Since(start)
		ingMetrics.runDuration.Observe(res.Duration.Seconds())
	}()

	sc := pgn.NewScanner(r)
	for sc.Scan() {
		if err := c.admit(ctx); err != nil {
			return res, err
		}

		game, err := sc.Game()
		if err != nil {
			res.GamesSkipped++
			ingMetrics.gamesSkipped.Inc()
			c.log.Warn("ingest.game.skipped", "error", err)
			continue
		}

		gameID, enqueued, err := c.repo.StoreGame(ctx, recordFromGame(game))
		if err != nil {
			if errors.Is(err, cerrors.ErrDuplicateGame) {
				res.Duplicates++
				ingMetrics.duplicates.Inc()
				c.log.Info("ingest.game.duplicate", "game", game.Index)
				continue
			}
			return res, cerrors.NewInfraError(
				"failed to store game",
				err.Error(),
				"check DATABASE_URL and that Postgres is reachable",
				err,
			)
		}

		res.GamesStored++
		res.PositionsStored += int64(len(game.Positions))
		res.JobsEnqueued += enqueued
		ingMetrics.gamesStored.Inc()
		ingMetrics.positions.Add(float64(len(game.Positions)))
		ingMetrics.jobsEnqueued.Add(float64(enqueued))

		fmt.Fprintf(c.stdout, "Stored game %d with %d positions\n", gameID, len(game.Positions))
		c.log.Info("ingest.game.stored",
			"game_id", gameID,
			"positions", len(game.Positions),
			"white", game.WhiteName(),
			"black", game.BlackName(),
		)
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, cerrors.ErrBadEncoding) {
			return res, cerrors.NewUserError(
				"PGN stream is not valid UTF-8",
				err.Error(),
				"convert the file to UTF-8, e.g. iconv -f WINDOWS-1252 -t UTF-8",
				err,
			)
		}
		return res, cerrors.NewInfraError(
			"PGN stream failed mid-read",
			err.Error(),
			"check the file or the device it is read from, then re-run; committed games are kept",
			err,
		)
	}

	return res, nil
}

// admit enforces the queue-depth threshold before each game.
func (c *Controller) admit(ctx context.Context) error {
	if c.maxPending <= 0 {
		return nil
	}
	pending, err := c.repo.PendingCount(ctx)
	if err != nil {
		return cerrors.NewInfraError(
			"cannot check embedding queue depth",
			err.Error(),
			"check DATABASE_URL and that Postgres is reachable",
			err,
		)
	}
	if pending > int64(c.maxPending) {
		ingMetrics.admissionHits.Inc()
		c.log.Warn("ingest.admission.saturated", "pending", pending, "max", c.maxPending)
		return cerrors.NewUserError(
			"embedding queue saturated",
			fmt.Sprintf("%d jobs pending, threshold %d", pending, c.maxPending),
			"wait for the embedding workers to drain the queue, or raise CHESSMATE_MAX_PENDING_EMBEDDINGS",
			cerrors.ErrQueueSaturated,
		)
	}
	return nil
}

// recordFromGame maps a parsed game onto a store record, resolving the
// opening taxonomy from the ECO tag.
func recordFromGame(g *pgn.Game) *store.GameRecord {
	rec := &store.GameRecord{
		White:       store.Player{Name: g.WhiteName(), PeakRating: g.Elo("WhiteElo")},
		Black:       store.Player{Name: g.BlackName(), PeakRating: g.Elo("BlackElo")},
		Event:       g.Header("Event"),
		Site:        g.Header("Site"),
		Round:       g.Header("Round"),
		PlayedOn:    parseDate(g.Header("Date")),
		Result:      g.Result,
		WhiteRating: g.Elo("WhiteElo"),
		BlackRating: g.Elo("BlackElo"),
		PGN:         g.PGN,
	}

	if fed := g.Header("WhiteFideId"); fed != "" {
		rec.White.FederationID = &fed
	}
	if fed := g.Header("BlackFideId"); fed != "" {
		rec.Black.FederationID = &fed
	}

	if eco := g.Header("ECO"); eco != "" && eco != "?" {
		rec.ECOCode = &eco
		if slug := openings.SlugForECO(eco); slug != "" {
			rec.OpeningSlug = &slug
			name := openings.NameForSlug(slug)
			rec.OpeningName = &name
		}
	}
	if name := g.Header("Opening"); name != "" && rec.OpeningName == nil {
		rec.OpeningName = &name
	}

	rec.Positions = make([]store.PositionRecord, len(g.Positions))
	for i, p := range g.Positions {
		rec.Positions[i] = store.PositionRecord{
			Ply:        p.Ply,
			MoveNumber: p.MoveNumber,
			SideToMove: p.SideToMove,
			SAN:        p.SAN,
			FEN:        p.FEN,
		}
	}
	return rec
}

// parseDate accepts the PGN "YYYY.MM.DD" form, tolerating "??" segments
// by truncating to what is known. Fully unknown dates yield nil.
func parseDate(tag string) *time.Time {
	if len(tag) < 4 || tag[:4] == "????" {
		return nil
	}
	for _, layout := range []string{"2006.01.02", "2006.01", "2006"} {
		if t, err := time.Parse(layout, trimUnknown(tag, layout)); err == nil {
			return &t
		}
	}
	return nil
}

// trimUnknown cuts "2001.??.??" down to "2001" so the shorter layouts
// can parse it.
func trimUnknown(tag, layout string) string {
	if i := indexUnknown(tag); i >= 0 {
		tag = tag[:i]
		for len(tag) > 0 && tag[len(tag)-1] == '.' {
			tag = tag[:len(tag)-1]
		}
	}
	if len(tag) > len(layout) {
		tag = tag[:len(layout)]
	}
	return tag
}

func indexUnknown(tag string) int {
	for i := 0; i < len(tag); i++ {
		if tag[i] == '?' {
			return i
		}
	}
	return -1
}
