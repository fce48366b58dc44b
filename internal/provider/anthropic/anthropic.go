// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package anthropic implements provider.Provider on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

const name = "anthropic"

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, mserr.New(mserr.CodeProviderRequestInvalid, "anthropic: missing api_key in config", mserr.FieldProvider(name))
	}

	// Backoff on 429 is handled by internal/retry, so the SDK does not retry.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{ID: "claude-opus-4-6", Name: "Claude Opus 4.6", Provider: name, MaxContextTokens: 200000, MaxOutputTokens: 32000},
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: name, MaxContextTokens: 200000, MaxOutputTokens: 16000},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: name, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		p.streamChat(ctx, params, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  name,
		Message:   "ok",
	}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	if req.Model == "" {
		return anthropicsdk.MessageNewParams{}, mserr.New(mserr.CodeProviderRequestInvalid, "anthropic: model is required", mserr.FieldProvider(name))
	}

	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.MessageRoleUser:
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.MessageRoleAssistant:
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content)))
		default:
			return anthropicsdk.MessageNewParams{}, mserr.Errorf(mserr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.StopSequences = req.Options.StopSequences
	}
	return params, nil
}

// streamChat converts SDK stream events into provider.ChatEvent values.
func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var usage provider.Usage
	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.Message.Usage.InputTokens)
			usage.OutputTokens = int(event.Message.Usage.OutputTokens)

		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: event.Delta.Text}) {
					return
				}
			}

		case "message_delta":
			// message_delta carries the cumulative output count.
			usage.OutputTokens = int(event.Usage.OutputTokens)
			u := usage
			if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &u}) {
				return
			}

		case "message_stop":
			p.health.RecordSuccess()
			provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
			return
		}
	}

	if err := stream.Err(); err != nil {
		p.health.RecordFailure()
		provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeError, Err: classify(err)})
		return
	}

	p.health.RecordSuccess()
	provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
}

func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return provider.UpstreamError(name, err, apiErr.StatusCode)
	}
	return provider.UpstreamError(name, err, 0)
}
