// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads chessmate configuration from the environment,
// optionally seeded by a chessmate.yaml file and a local .env file.
//
// Precedence, lowest to highest: built-in defaults, chessmate.yaml,
// environment variables. A missing config file is not an error; the
// whole surface is usable from the environment alone.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for tunables not set by file or environment.
const (
	DefaultMaxPendingEmbeddings = 250000
	DefaultEmbedModel           = "text-embedding-3-small"
	DefaultEmbedDimensions      = 1536
	DefaultEmbedBatchSize       = 16
	DefaultQdrantCollection     = "chessmate_positions"
	DefaultAgentModel           = "gpt-4o-mini"
	DefaultAgentWeight          = 0.5
	DefaultAgentMaxConcurrency  = 4

	DefaultEmbedTimeout  = 30 * time.Second
	DefaultAgentTimeout  = 60 * time.Second
	DefaultVectorTimeout = 10 * time.Second
)

// AgentConfig holds the optional agent re-ranking stage configuration.
// The stage is enabled if and only if APIKey is non-empty.
type AgentConfig struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	ReasoningEffort string        `yaml:"reasoning_effort"` // minimal|low|medium|high
	Verbosity       string        `yaml:"verbosity"`        // free-form passthrough
	Weight          float64       `yaml:"weight"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	CacheCapacity   int           `yaml:"cache_capacity"` // 0 disables the cache
	Timeout         time.Duration `yaml:"timeout"`

	// Cost estimates per 1K tokens, used for telemetry only.
	CostInputPer1K     float64 `yaml:"cost_input_per_1k"`
	CostOutputPer1K    float64 `yaml:"cost_output_per_1k"`
	CostReasoningPer1K float64 `yaml:"cost_reasoning_per_1k"`
}

// Enabled reports whether the agent stage should run.
func (a AgentConfig) Enabled() bool { return a.APIKey != "" }

// Config is the process-wide chessmate configuration. It is read-only
// after Load; construct it once and pass it down explicitly.
type Config struct {
	// DatabaseURL is the Postgres connection string for the metadata
	// repository and the embedding job queue.
	DatabaseURL string `yaml:"database_url"`

	// QdrantURL is the vector store endpoint, e.g. http://localhost:6333.
	QdrantURL string `yaml:"qdrant_url"`

	// QdrantCollection is the collection holding position vectors.
	QdrantCollection string `yaml:"qdrant_collection"`

	// OpenAIAPIKey is the credential for the external embedder.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// EmbedModel and EmbedDimensions describe the embedder output.
	EmbedModel      string `yaml:"embed_model"`
	EmbedDimensions int    `yaml:"embed_dimensions"`

	// MaxPendingEmbeddings is the ingest admission threshold. Values
	// <= 0 disable admission control.
	MaxPendingEmbeddings int `yaml:"max_pending_embeddings"`

	// APIURL, when set, makes `chessmate query` call a remote server
	// instead of running the pipeline in-process.
	APIURL string `yaml:"api_url"`

	// Per-call timeouts for external dependencies.
	EmbedTimeout  time.Duration `yaml:"embed_timeout"`
	VectorTimeout time.Duration `yaml:"vector_timeout"`

	Agent AgentConfig `yaml:"agent"`
}

// Load builds the configuration. path names an optional chessmate.yaml;
// an empty path tries ./chessmate.yaml. A .env file in the working
// directory is loaded best-effort before the environment is read.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := &Config{
		QdrantCollection:     DefaultQdrantCollection,
		EmbedModel:           DefaultEmbedModel,
		EmbedDimensions:      DefaultEmbedDimensions,
		MaxPendingEmbeddings: DefaultMaxPendingEmbeddings,
		EmbedTimeout:         DefaultEmbedTimeout,
		VectorTimeout:        DefaultVectorTimeout,
		Agent: AgentConfig{
			Model:          DefaultAgentModel,
			Weight:         DefaultAgentWeight,
			MaxConcurrency: DefaultAgentMaxConcurrency,
			Timeout:        DefaultAgentTimeout,
		},
	}

	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.Agent.Weight < 0 || cfg.Agent.Weight > 1 {
		return nil, fmt.Errorf("agent weight %.2f out of range [0,1]", cfg.Agent.Weight)
	}
	if cfg.Agent.MaxConcurrency <= 0 {
		cfg.Agent.MaxConcurrency = DefaultAgentMaxConcurrency
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	explicit := path != ""
	if path == "" {
		path = "chessmate.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.QdrantURL, "QDRANT_URL")
	setString(&c.QdrantCollection, "QDRANT_COLLECTION")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.EmbedModel, "OPENAI_EMBED_MODEL")
	setString(&c.APIURL, "CHESSMATE_API_URL")
	setInt(&c.MaxPendingEmbeddings, "CHESSMATE_MAX_PENDING_EMBEDDINGS")

	setString(&c.Agent.APIKey, "AGENT_API_KEY")
	setString(&c.Agent.Model, "AGENT_MODEL")
	setString(&c.Agent.ReasoningEffort, "AGENT_REASONING_EFFORT")
	setString(&c.Agent.Verbosity, "AGENT_VERBOSITY")
	setFloat(&c.Agent.Weight, "AGENT_WEIGHT")
	setInt(&c.Agent.MaxConcurrency, "AGENT_MAX_CONCURRENCY")
	setInt(&c.Agent.CacheCapacity, "AGENT_CACHE_CAPACITY")
	setFloat(&c.Agent.CostInputPer1K, "AGENT_COST_INPUT_PER_1K")
	setFloat(&c.Agent.CostOutputPer1K, "AGENT_COST_OUTPUT_PER_1K")
	setFloat(&c.Agent.CostReasoningPer1K, "AGENT_COST_REASONING_PER_1K")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
