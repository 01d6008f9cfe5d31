// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package server exposes the question pipeline over HTTP. It is a thin
// shell: intent analysis, the hybrid executor, and the optional agent
// stage all live in their own packages; the server only wires them to
// gin handlers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/pkg/intent"
	"github.com/chessmate/chessmate/pkg/query"
	"github.com/chessmate/chessmate/pkg/store"
)

// QueryRunner is the executor slice the server depends on.
type QueryRunner interface {
	Execute(ctx context.Context, plan intent.Plan) (*query.Response, error)
}

// Reranker is the optional agent stage. Nil disables it.
type Reranker interface {
	Rerank(ctx context.Context, plan intent.Plan, results []query.ScoredResult, pgns map[int64]string) ([]query.ScoredResult, *query.AgentTotals, []string)
}

// PGNFetcher loads full game records for the agent prompts.
type PGNFetcher interface {
	FetchGamesWithPGN(ctx context.Context, ids []int64) ([]store.GameDetail, error)
}

// Server handles the HTTP question API.
type Server struct {
	runner  QueryRunner
	agent   Reranker
	games   PGNFetcher
	log     *slog.Logger
	version string
}

// New builds a Server. agent and games may be nil together; a non-nil
// agent requires a non-nil games.
func New(runner QueryRunner, agent Reranker, games PGNFetcher, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{runner: runner, agent: agent, games: games, log: log, version: version}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.POST("/query", s.handleQuery)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// queryRequest is the POST /query body.
type queryRequest struct {
	Question string `json:"question"`
}

type errorResponse struct {
	Error string `json:"error"`
	Fix   string `json:"fix,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "question must not be empty"})
		return
	}

	plan := intent.Analyse(req.Question)
	resp, err := s.runner.Execute(c.Request.Context(), plan)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.agent != nil && len(resp.Results) > 0 {
		s.rerank(c.Request.Context(), plan, resp)
	}

	s.log.Info("server.query.answered",
		"run_id", resp.RunID,
		"results", len(resp.Results),
		"warnings", len(resp.Warnings),
	)
	c.JSON(http.StatusOK, resp)
}

// rerank runs the agent stage in place. Any failure to load PGNs
// degrades to the pre-agent ranking with a warning.
func (s *Server) rerank(ctx context.Context, plan intent.Plan, resp *query.Response) {
	ids := make([]int64, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}

	pgns := map[int64]string{}
	if s.games != nil {
		details, err := s.games.FetchGamesWithPGN(ctx, ids)
		if err != nil {
			resp.Warnings = append(resp.Warnings, "agent re-ranking skipped: could not load games")
			s.log.Warn("server.agent.skipped", "error", err)
			return
		}
		for _, d := range details {
			pgns[d.ID] = d.PGN
		}
	}

	results, totals, warnings := s.agent.Rerank(ctx, plan, resp.Results, pgns)
	resp.Results = results
	resp.Agent = totals
	resp.Warnings = append(resp.Warnings, warnings...)
}

// writeError maps pipeline errors onto HTTP statuses: infrastructure
// outages are 503, user errors 400, anything else 500.
func (s *Server) writeError(c *gin.Context, err error) {
	var ue *cerrors.UserError
	status := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, cerrors.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &ue) && ue.ExitCode == cerrors.ExitUser:
		status = http.StatusBadRequest
	}
	if errors.As(err, &ue) {
		body.Error = ue.Message
		body.Fix = ue.Fix
	}

	s.log.Error("server.query.failed", "status", status, "error", err)
	c.JSON(status, body)
}
