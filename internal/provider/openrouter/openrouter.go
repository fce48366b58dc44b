// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package openrouter configures the OpenAI-compatible provider for OpenRouter.
package openrouter

import (
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	"github.com/modelsmith-dev/modelsmith/internal/provider/openai"
)

const (
	name    = "openrouter"
	baseURL = "https://openrouter.ai/api/v1"
)

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// New creates a provider that speaks to OpenRouter. Model IDs are the
// upstream vendor/model pairs, so refs look like openrouter/anthropic/claude-sonnet-4-5.
func New(cfg Config) (*openai.Provider, error) {
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	return openai.New(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: base,
		Name:    name,
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/modelsmith-dev/modelsmith",
			"X-Title":      "modelsmith",
		},
		Models: knownModels(),
	})
}

func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "anthropic/claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: name, MaxContextTokens: 200000, MaxOutputTokens: 16000},
		{ID: "openai/gpt-4.1", Name: "GPT-4.1", Provider: name, MaxContextTokens: 128000, MaxOutputTokens: 32768},
		{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: name, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	}
}
