// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/output"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/ingest"
)

// runIngest executes the 'ingest' command: parse a PGN file, store
// every legal game, and enqueue one embedding job per position.
func runIngest(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	maxPending := fs.Int("max-pending", 0, "Admission threshold override (0 uses config)")
	poolSize := fs.Int("pool-size", 8, "Postgres connection pool size")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate ingest [options] <file.pgn>

Description:
  Parse the PGN file, replay every game for legality, store games and
  per-ply positions in Postgres, and enqueue an embedding job for each
  position. Broken games are skipped with a warning; duplicates are
  counted and ignored. Ingestion refuses to start a game when the
  pending embedding backlog is over the admission threshold.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  chessmate ingest twic1580.pgn
  chessmate ingest --max-pending 500000 twic1580.pgn
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg := loadConfig(configPath, globals)
	threshold := cfg.MaxPendingEmbeddings
	if *maxPending > 0 {
		threshold = *maxPending
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(path)
	if err != nil {
		cerrors.FatalError(cerrors.NewUserError(
			"Cannot open PGN file",
			err.Error(),
			"Check the path and file permissions",
			err,
		), globals.JSON)
	}
	defer f.Close()

	st := openStore(ctx, cfg, *poolSize, globals)
	defer st.Close()

	ctrl := ingest.New(st, threshold, slog.Default(), os.Stdout)
	result, err := ctrl.Run(ctx, f)
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			cerrors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Successf("Ingested %d games (%d positions, %d jobs enqueued) in %s",
		result.GamesStored, result.PositionsStored, result.JobsEnqueued, result.Duration.Round(time.Millisecond))
	if result.GamesSkipped > 0 {
		ui.Warnf("Skipped %d unparseable games", result.GamesSkipped)
	}
	if result.Duplicates > 0 {
		ui.Infof("Ignored %d duplicate games", result.Duplicates)
	}
}
