// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/server"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/query"
)

// runServe executes the 'serve' command: the HTTP question API.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate serve [options]

Description:
  Serve the question pipeline over HTTP:
    GET  /health   Liveness probe
    POST /query    {"question": "..."} -> ranked games
    GET  /metrics  Prometheus metrics

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  chessmate serve
  chessmate serve --addr 127.0.0.1:9000
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(configPath, globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, 8, globals)
	defer st.Close()

	var vectors query.VectorSearcher
	if vc := vectorClient(cfg); vc != nil {
		vectors = vc
	}
	var embedder query.Embedder
	if ec := embedClient(cfg); ec != nil {
		embedder = ec
	}

	runner := query.New(st, vectors, embedder, slog.Default())

	var reranker server.Reranker
	if ev := agentEvaluator(cfg, slog.Default()); ev != nil {
		reranker = ev
	}

	if !globals.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(runner, reranker, st, version, slog.Default())

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		ui.Infof("chessmate API listening on %s", *addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		cerrors.FatalError(cerrors.NewInfraError(
			"HTTP server failed",
			err.Error(),
			"Check that the listen address is free",
			err,
		), globals.JSON)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("serve.shutdown.failed", "error", err)
	}
	ui.Successf("Server stopped")
}
