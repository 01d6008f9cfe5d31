// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/output"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/pgn"
)

// runPrecheck executes the 'twic-precheck' command: scan a PGN file
// and report the games a full ingest would skip, without touching the
// database.
func runPrecheck(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("twic-precheck", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate twic-precheck <file.pgn>

Description:
  Dry-run parse of a PGN file (TWIC issues, tournament dumps). Lists
  every game that a full ingest would skip: illegal moves, empty
  movetext, missing Result tags. Nothing is written to the database.

Examples:
  chessmate twic-precheck twic1580.pgn
  chessmate twic-precheck --json twic1580.pgn
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		cerrors.FatalError(cerrors.NewUserError(
			"Cannot open PGN file",
			err.Error(),
			"Check the path and file permissions",
			err,
		), globals.JSON)
	}
	defer f.Close()

	issues, total, err := pgn.Precheck(f)
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(map[string]any{
			"total_games": total,
			"issues":      issues,
		}); err != nil {
			cerrors.FatalError(err, globals.JSON)
		}
		return
	}

	if len(issues) == 0 {
		ui.Successf("All %d games parse cleanly", total)
		return
	}
	ui.Warnf("%d of %d games would be skipped:", len(issues), total)
	for _, is := range issues {
		label := "?"
		if is.White != "" || is.Black != "" {
			label = is.White + " - " + is.Black
		}
		fmt.Printf("  game %d (%s): %s\n", is.Game, label, is.Problem)
	}
}
