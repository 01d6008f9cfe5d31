// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultChatBaseURL = "https://api.openai.com/v1"

// CallUsage is the token accounting of one chat call.
type CallUsage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	Latency         time.Duration
}

// ChatClient is the model-call capability the evaluator depends on.
// Tests substitute a deterministic fake.
type ChatClient interface {
	// Complete sends one prompt and returns the raw assistant text.
	Complete(ctx context.Context, prompt string) (string, CallUsage, error)
}

// OpenAIChatConfig configures the production chat client.
type OpenAIChatConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	ReasoningEffort string
	Verbosity       string
	Timeout         time.Duration
}

// OpenAIChat calls the OpenAI chat completions endpoint with JSON
// response formatting.
type OpenAIChat struct {
	cfg    OpenAIChatConfig
	client *http.Client
}

// NewOpenAIChat builds the production ChatClient.
func NewOpenAIChat(cfg OpenAIChatConfig) *OpenAIChat {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultChatBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIChat{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	ResponseFormat  *format       `json:"response_format,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
	Verbosity       string        `json:"verbosity,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type format struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens            int `json:"prompt_tokens"`
		CompletionTokens        int `json:"completion_tokens"`
		CompletionTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements ChatClient.
func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, CallUsage, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat:  &format{Type: "json_object"},
		ReasoningEffort: c.cfg.ReasoningEffort,
		Verbosity:       c.cfg.Verbosity,
	})
	if err != nil {
		return "", CallUsage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", CallUsage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", CallUsage{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", CallUsage{}, fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", CallUsage{}, fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", CallUsage{}, fmt.Errorf("chat api: status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", CallUsage{}, fmt.Errorf("chat api: empty choices")
	}

	usage := CallUsage{
		InputTokens:     parsed.Usage.PromptTokens,
		OutputTokens:    parsed.Usage.CompletionTokens,
		ReasoningTokens: parsed.Usage.CompletionTokensDetails.ReasoningTokens,
		Latency:         time.Since(start),
	}
	return parsed.Choices[0].Message.Content, usage, nil
}

const systemPrompt = `You are a chess analysis assistant. Given a search intent and one game in PGN, rate how well the game matches the intent. Respond with a single JSON object: {"score": <0..1>, "themes": [<strings>], "explanation": <one sentence>}.`
