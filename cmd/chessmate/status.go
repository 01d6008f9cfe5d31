// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/output"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/store"
)

// statusReport is the machine-readable 'status' output.
type statusReport struct {
	Games int64            `json:"games"`
	Queue map[string]int64 `json:"queue"`
}

// runStatus executes the 'status' command: archive size and embedding
// queue depth per status.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate status

Description:
  Show the number of stored games and the embedding job queue depth,
  broken down by status (pending, in_progress, completed, failed).

Examples:
  chessmate status
  chessmate status --json
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st := openStore(ctx, cfg, 2, globals)
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		cerrors.FatalError(err, globals.JSON)
	}

	games, err := st.CountGames(ctx)
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}
	queue, err := st.CountByStatus(ctx)
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(statusReport{Games: games, Queue: queue}); err != nil {
			cerrors.FatalError(err, globals.JSON)
		}
		return
	}

	ui.Headerf("Chessmate archive")
	fmt.Printf("  games: %d\n", games)
	fmt.Println("  embedding queue:")
	for _, status := range []string{
		store.StatusPending, store.StatusInProgress, store.StatusCompleted, store.StatusFailed,
	} {
		fmt.Printf("    %-12s %d\n", status, queue[status])
	}
	if queue[store.StatusFailed] > 0 {
		ui.Warnf("%d jobs failed permanently; inspect embedding_jobs.last_error", queue[store.StatusFailed])
	}
}
