// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"log/slog"

	"github.com/chessmate/chessmate/internal/config"
	cerrors "github.com/chessmate/chessmate/internal/errors"
	"github.com/chessmate/chessmate/pkg/agent"
	"github.com/chessmate/chessmate/pkg/embedding"
	"github.com/chessmate/chessmate/pkg/store"
	"github.com/chessmate/chessmate/pkg/vectorstore"
)

// loadConfig wraps config.Load with the CLI's error conventions.
func loadConfig(path string, globals GlobalFlags) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		cerrors.FatalError(cerrors.NewUserError(
			"Configuration is invalid",
			err.Error(),
			"Fix chessmate.yaml or the conflicting environment variable",
			err,
		), globals.JSON)
	}
	return cfg
}

// openStore connects to Postgres and applies the schema. Exits the
// process on failure.
func openStore(ctx context.Context, cfg *config.Config, poolSize int, globals GlobalFlags) *store.Store {
	if cfg.DatabaseURL == "" {
		cerrors.FatalError(cerrors.NewUserError(
			"DATABASE_URL is not set",
			"chessmate needs a Postgres connection string",
			"Export DATABASE_URL or set database_url in chessmate.yaml",
			nil,
		), globals.JSON)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, poolSize)
	if err != nil {
		cerrors.FatalError(err, globals.JSON)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		cerrors.FatalError(err, globals.JSON)
	}
	return st
}

// vectorClient builds the Qdrant client, or nil when QDRANT_URL is
// unset. Callers treat nil as "vector search unavailable".
func vectorClient(cfg *config.Config) *vectorstore.Client {
	if cfg.QdrantURL == "" {
		return nil
	}
	return vectorstore.New(vectorstore.Config{
		BaseURL:    cfg.QdrantURL,
		Collection: cfg.QdrantCollection,
		Timeout:    cfg.VectorTimeout,
	})
}

// embedClient builds the OpenAI embedder, or nil when no key is set.
func embedClient(cfg *config.Config) *embedding.OpenAIClient {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return embedding.NewOpenAIClient(embedding.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.EmbedModel,
		Dimensions: cfg.EmbedDimensions,
		Timeout:    cfg.EmbedTimeout,
	})
}

// agentEvaluator builds the re-ranking stage, or nil when disabled.
func agentEvaluator(cfg *config.Config, log *slog.Logger) *agent.Evaluator {
	if !cfg.Agent.Enabled() {
		return nil
	}
	chat := agent.NewOpenAIChat(agent.OpenAIChatConfig{
		APIKey:          cfg.Agent.APIKey,
		Model:           cfg.Agent.Model,
		ReasoningEffort: cfg.Agent.ReasoningEffort,
		Verbosity:       cfg.Agent.Verbosity,
		Timeout:         cfg.Agent.Timeout,
	})
	return agent.New(chat, cfg.Agent, log)
}
