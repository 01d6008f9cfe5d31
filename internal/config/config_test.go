// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err, "explicit missing config file should error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxPendingEmbeddings, cfg.MaxPendingEmbeddings)
	assert.Equal(t, 30*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 10*time.Second, cfg.VectorTimeout)
	assert.False(t, cfg.Agent.Enabled(), "agent should be disabled without AGENT_API_KEY")
	assert.Equal(t, DefaultAgentWeight, cfg.Agent.Weight)
	assert.Equal(t, DefaultAgentMaxConcurrency, cfg.Agent.MaxConcurrency)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chessmate.yaml")
	yaml := `
database_url: postgres://file/db
max_pending_embeddings: 100
agent:
  model: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("CHESSMATE_MAX_PENDING_EMBEDDINGS", "42")
	t.Setenv("AGENT_API_KEY", "sk-test")
	t.Setenv("AGENT_REASONING_EFFORT", "low")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL, "env should override file")
	assert.Equal(t, 42, cfg.MaxPendingEmbeddings)
	assert.Equal(t, "from-file", cfg.Agent.Model, "file value should survive when env unset")
	assert.True(t, cfg.Agent.Enabled())
	assert.Equal(t, "low", cfg.Agent.ReasoningEffort)
}

func TestLoad_DisabledAdmission(t *testing.T) {
	t.Setenv("CHESSMATE_MAX_PENDING_EMBEDDINGS", "-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.MaxPendingEmbeddings, "negative threshold disables admission control")
}

func TestLoad_RejectsBadAgentWeight(t *testing.T) {
	t.Setenv("AGENT_WEIGHT", "1.5")

	_, err := Load("")
	require.Error(t, err, "weight outside [0,1] should be rejected")
}
