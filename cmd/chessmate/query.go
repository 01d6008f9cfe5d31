// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/chessmate/chessmate/internal/config"
	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/internal/output"
	"github.com/chessmate/chessmate/internal/ui"
	"github.com/chessmate/chessmate/pkg/intent"
	"github.com/chessmate/chessmate/pkg/query"
)

// runQuery executes the 'query' command: answer one natural-language
// question, either in-process or against a remote serve instance.
func runQuery(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	noAgent := fs.Bool("no-agent", false, "Skip agent re-ranking even when configured")
	timeout := fs.Duration("timeout", 2*time.Minute, "Total time budget for the question")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: chessmate query [options] "<question>"

Description:
  Analyse the question, run the hybrid metadata+vector search, and
  print the ranked games. When AGENT_API_KEY is set, the top results
  are additionally judged by the agent model. When CHESSMATE_API_URL
  is set, the question is sent to that serve instance instead of
  running the pipeline in-process.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  chessmate query "find 3 king's indian games where white is rated 2500"
  chessmate query --json "endgame zugzwang"
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fs.Usage()
		os.Exit(1)
	}
	question := fs.Arg(0)

	cfg := loadConfig(configPath, globals)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		resp *query.Response
		err  error
	)
	if cfg.APIURL != "" {
		resp, err = remoteQuery(ctx, cfg.APIURL, question)
	} else {
		resp, err = localQuery(ctx, cfg, question, !*noAgent, globals)
	}
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(resp); err != nil {
			cerrors.FatalError(err, globals.JSON)
		}
		return
	}
	printResponse(resp)
}

// localQuery runs the full pipeline in-process.
func localQuery(ctx context.Context, cfg *config.Config, question string, withAgent bool, globals GlobalFlags) (*query.Response, error) {
	st := openStore(ctx, cfg, 4, globals)
	defer st.Close()

	var vectors query.VectorSearcher
	if vc := vectorClient(cfg); vc != nil {
		vectors = vc
	}
	var embedder query.Embedder
	if ec := embedClient(cfg); ec != nil {
		embedder = ec
	}

	plan := intent.Analyse(question)
	resp, err := query.New(st, vectors, embedder, slog.Default()).Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	if withAgent && len(resp.Results) > 0 {
		if ev := agentEvaluator(cfg, slog.Default()); ev != nil {
			details, err := st.FetchGamesWithPGN(ctx, resultIDs(resp.Results))
			if err != nil {
				resp.Warnings = append(resp.Warnings, "agent re-ranking skipped: could not load games")
				return resp, nil
			}
			pgns := make(map[int64]string, len(details))
			for _, d := range details {
				pgns[d.ID] = d.PGN
			}
			results, totals, warnings := ev.Rerank(ctx, plan, resp.Results, pgns)
			resp.Results = results
			resp.Agent = totals
			resp.Warnings = append(resp.Warnings, warnings...)
		}
	}
	return resp, nil
}

// remoteQuery posts the question to a serve instance.
func remoteQuery(ctx context.Context, apiURL, question string) (*query.Response, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(apiURL, "/") + "/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, cerrors.NewInfraError(
			"Cannot reach the chessmate API",
			err.Error(),
			"Check CHESSMATE_API_URL and that the server is running",
			fmt.Errorf("%w: %v", cerrors.ErrUnavailable, err),
		)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Fix   string `json:"fix"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = fmt.Sprintf("status %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode == http.StatusServiceUnavailable {
			return nil, cerrors.NewInfraError("Query failed", apiErr.Error, apiErr.Fix, cerrors.ErrUnavailable)
		}
		return nil, cerrors.NewUserError("Query rejected", apiErr.Error, apiErr.Fix, nil)
	}

	var resp query.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}
	return &resp, nil
}

func resultIDs(results []query.ScoredResult) []int64 {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}

// printResponse renders the human-readable answer.
func printResponse(resp *query.Response) {
	for _, w := range resp.Warnings {
		ui.Warnf("Warning: %s", w)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No games matched.")
		return
	}

	for i, r := range resp.Results {
		date := "unknown date"
		if r.PlayedOn != nil {
			date = r.PlayedOn.Format("2006-01-02")
		}
		opening := ""
		if r.OpeningName != nil {
			opening = " [" + *r.OpeningName + "]"
		}

		ui.Headerf("%d. %s - %s  %s (%s)%s", i+1, r.White, r.Black, r.Result, date, opening)
		fmt.Printf("   score %.3f (vector %.3f, keyword %.3f", r.FinalScore, r.VectorScore, r.KeywordScore)
		if r.AgentScore != nil {
			fmt.Printf(", agent %.2f", *r.AgentScore)
		}
		fmt.Println(")")
		if r.Explanation != "" {
			ui.Detailf("%s", r.Explanation)
		}
	}

	if resp.Agent != nil {
		ui.Detailf("agent: %d calls, %d cache hits, %d tokens, $%.4f",
			resp.Agent.Calls, resp.Agent.CacheHits,
			resp.Agent.InputTokens+resp.Agent.OutputTokens+resp.Agent.ReasoningTokens,
			resp.Agent.CostUSD)
	}
}
