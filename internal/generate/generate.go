// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package generate turns instructions into file content, PR titles and
// structured translations using the provider registry.
package generate

import (
	"context"
	"log/slog"
	"slices"

	"github.com/modelsmith-dev/modelsmith/internal/provider"
	"github.com/modelsmith-dev/modelsmith/internal/retry"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// Generator produces the full replacement content for one file.
type Generator interface {
	Generate(ctx context.Context, original, instruction string, kind types.Kind) (string, error)
}

// Titler summarizes a request into a pull request title.
type Titler interface {
	Title(ctx context.Context, prompt string) (string, error)
}

// Translator maps a high-level business ask onto target files and a
// technical instruction.
type Translator interface {
	Translate(ctx context.Context, prompt string) (*Translation, error)
}

// Translation is the structured result of Translate.
type Translation struct {
	Files  []string `json:"files"`
	Prompt string   `json:"prompt"`
}

// Config tunes model calls.
type Config struct {
	// Model is a provider/model ref; empty uses the registry default.
	Model       string
	Temperature float32
	MaxTokens   int
	Retry       retry.Policy
}

// LLM implements Generator, Titler and Translator on a provider.Router.
type LLM struct {
	router provider.Router
	cfg    Config
}

var (
	_ Generator  = (*LLM)(nil)
	_ Titler     = (*LLM)(nil)
	_ Translator = (*LLM)(nil)
)

// New creates an LLM backed by router.
func New(router provider.Router, cfg Config) *LLM {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &LLM{router: router, cfg: cfg}
}

// complete sends one system+user exchange and returns the collected text.
// Rate limits are retried against the same provider with backoff; once a
// provider keeps failing upstream the next one in the failover chain is
// tried. Request errors are returned immediately.
func (l *LLM) complete(ctx context.Context, op, system, user string, maxTokens int) (string, error) {
	temp := l.cfg.Temperature
	if maxTokens <= 0 {
		maxTokens = l.cfg.MaxTokens
	}
	req := provider.ChatRequest{
		SystemPrompt: system,
		Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: user}},
		Options:      provider.ChatOptions{Temperature: &temp, MaxTokens: maxTokens},
	}

	var (
		exclude []string
		lastErr error
	)
	for attempt := 0; attempt < l.router.MaxAttempts(); attempt++ {
		p, model, err := l.router.Route(ctx, l.cfg.Model, exclude)
		if err != nil {
			if lastErr != nil {
				return "", lastErr
			}
			return "", err
		}
		req.Model = model

		var text string
		err = retry.Do(ctx, l.cfg.Retry, op, func(ctx context.Context) error {
			events, err := p.Chat(ctx, req)
			if err != nil {
				return err
			}
			res, err := provider.Collect(ctx, events)
			if err != nil {
				return err
			}
			text = res.Text
			return nil
		})
		if err == nil {
			return text, nil
		}
		if !mserr.IsUpstreamFailure(err) || ctx.Err() != nil {
			return "", err
		}

		slog.Warn("provider failed, trying next", "op", op, "provider", p.Name(), "model", model, "error", err)
		lastErr = err
		if !slices.Contains(exclude, p.Name()) {
			exclude = append(exclude, p.Name())
		}
	}
	return "", lastErr
}
