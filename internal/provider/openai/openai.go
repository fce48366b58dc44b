// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package openai implements provider.Provider on the OpenAI Chat Completions
// API. OpenAI-compatible gateways reuse it with a different name and base URL.
package openai

import (
	"context"
	"errors"

	"github.com/modelsmith-dev/modelsmith/internal/provider"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const defaultName = "openai"

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	// Name overrides the provider name for compatible gateways.
	Name    string
	Headers map[string]string
	// Models overrides the advertised model list.
	Models []provider.ModelInfo
}

// Provider implements provider.Provider using the Chat Completions API.
type Provider struct {
	client openaisdk.Client
	name   string
	models []provider.ModelInfo
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new OpenAI provider.
func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = defaultName
	}
	if cfg.APIKey == "" {
		return nil, mserr.New(mserr.CodeProviderRequestInvalid, name+": missing api_key in config", mserr.FieldProvider(name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	models := cfg.Models
	if models == nil {
		models = knownModels()
	}
	return &Provider{
		client: openaisdk.NewClient(opts...),
		name:   name,
		models: models,
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "gpt-4.1", Name: "GPT-4.1", Provider: defaultName, MaxContextTokens: 128000, MaxOutputTokens: 32768},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: defaultName, MaxContextTokens: 128000, MaxOutputTokens: 16384},
		{ID: "o4-mini", Name: "o4-mini", Provider: defaultName, MaxContextTokens: 200000, MaxOutputTokens: 100000},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return p.models, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := p.buildParams(req)
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
		Provider:  p.name,
		Message:   "ok",
	}, nil
}

func (p *Provider) Close() error { return nil }

func (p *Provider) buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openaisdk.ChatCompletionNewParams{}, mserr.New(mserr.CodeProviderRequestInvalid, p.name+": model is required", mserr.FieldProvider(p.name))
	}

	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.MessageRoleUser:
			msgs = append(msgs, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(msg.Content))
		default:
			return openaisdk.ChatCompletionNewParams{}, mserr.Errorf(mserr.CodeProviderRequestInvalid, "%s: unsupported message role %q", p.name, msg.Role)
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{OfStringArray: req.Options.StopSequences}
	}
	return params, nil
}

func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: choice.Delta.Content}) {
				return
			}
		}

		// With include_usage the final chunk carries usage and no choices.
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage := &provider.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
			if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeUsage, Usage: usage}) {
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		p.health.RecordFailure()
		provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeError, Err: p.classify(err)})
		return
	}

	p.health.RecordSuccess()
	provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
}

func (p *Provider) classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return provider.UpstreamError(p.name, err, apiErr.StatusCode)
	}
	return provider.UpstreamError(p.name, err, 0)
}
