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
	"github.com/chessmate/chessmate/pkg/pgn"
)

// runFEN executes the 'fen' command: print the final position of each
// game in a PGN file, one per line. Unparseable games are skipped.
func runFEN(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("fen", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate fen <file.pgn>

Description:
  Replay every game in the file and print the FEN of its final
  position, one line per game. Games that fail to parse are skipped.

Examples:
  chessmate fen twic1580.pgn
  chessmate fen --json twic1580.pgn
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

	err = pgn.FENs(f, func(fen string) error {
		if globals.JSON {
			return output.JSONCompact(map[string]string{"fen": fen})
		}
		fmt.Println(fen)
		return nil
	})
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}
}
