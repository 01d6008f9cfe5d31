// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package main implements the chessmate CLI: PGN ingestion, the
// embedding worker, and natural-language querying over the archive.
//
// Usage:
//
//	chessmate ingest <file.pgn>          Ingest games and enqueue embeddings
//	chessmate embedding-worker           Drain the embedding job queue
//	chessmate query "<question>"         Answer a question about the archive
//	chessmate serve                      Run the HTTP question API
//	chessmate status                     Show archive and queue counters
//	chessmate fen <file.pgn>             Stream final FENs of each game
//	chessmate twic-precheck <file.pgn>   Report unparseable games
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	JSON  bool
	Debug bool
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to chessmate.yaml (default: ./chessmate.yaml)")
		jsonOut     = flag.Bool("json", false, "Machine-readable JSON output")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `chessmate - ask questions about a chess game archive

Usage:
  chessmate <command> [options]

Commands:
  ingest            Parse a PGN file, store games, enqueue embedding jobs
  embedding-worker  Claim queued positions, embed them, upsert vectors
  query             Answer a natural-language question about stored games
  serve             Run the HTTP question API
  status            Show archive size and embedding queue depth
  fen               Stream the final FEN of every game in a PGN file
  twic-precheck     Report games a full ingest would skip

Global Options:
  --config   Path to chessmate.yaml
  --json     Machine-readable JSON output
  --debug    Enable debug logging
  --version  Show version and exit

Examples:
  chessmate ingest twic1580.pgn
  chessmate embedding-worker --workers 8
  chessmate query "find 3 king's indian games where white is rated 2500"
  chessmate serve --addr :8080

Environment Variables:
  DATABASE_URL        Postgres connection string
  QDRANT_URL          Qdrant endpoint (empty disables vector search)
  OPENAI_API_KEY      Embedding API credential
  AGENT_API_KEY       Enables agent re-ranking
  CHESSMATE_API_URL   Makes 'query' call a remote serve instance

For detailed command help: chessmate <command> --help

`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("chessmate version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	globals := GlobalFlags{JSON: *jsonOut, Debug: *debug}
	setupLogging(globals.Debug)

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "ingest":
		runIngest(cmdArgs, *configPath, globals)
	case "embedding-worker":
		runWorker(cmdArgs, *configPath, globals)
	case "query":
		runQuery(cmdArgs, *configPath, globals)
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "fen":
		runFEN(cmdArgs, globals)
	case "twic-precheck":
		runPrecheck(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// setupLogging installs the process-wide text logger on stderr so that
// stdout stays reserved for command output.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
