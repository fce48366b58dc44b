// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package google implements provider.Provider on the Gemini API.
package google

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/modelsmith-dev/modelsmith/internal/provider"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

const name = "google"

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

// New creates a new Google provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, mserr.New(mserr.CodeProviderRequestInvalid, "google: missing api_key in config", mserr.FieldProvider(name))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, mserr.Wrapf(err, mserr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
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
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: name, MaxContextTokens: 1000000, MaxOutputTokens: 65536},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: name, MaxContextTokens: 1000000, MaxOutputTokens: 65536},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	if req.Model == "" {
		return nil, mserr.New(mserr.CodeProviderRequestInvalid, "google: model is required", mserr.FieldProvider(name))
	}
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	config := buildConfig(req)

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		p.streamChat(ctx, req.Model, contents, config, ch)
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

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	return cfg
}

// convertMessages maps roles onto Gemini's user/model pair.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	result := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case provider.MessageRoleUser:
			role = "user"
		case provider.MessageRoleAssistant:
			role = "model"
		default:
			return nil, mserr.Errorf(mserr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
		result = append(result, &genai.Content{Role: role, Parts: []*genai.Part{{Text: msg.Content}}})
	}
	return result, nil
}

func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			p.health.RecordFailure()
			provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeError, Err: classify(err)})
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text == "" || part.Thought {
					continue
				}
				if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}) {
					return
				}
			}
		}

		if result.UsageMetadata != nil {
			usage := &provider.Usage{
				InputTokens:  int(result.UsageMetadata.PromptTokenCount),
				OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			}
			if !provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeUsage, Usage: usage}) {
				return
			}
		}
	}

	p.health.RecordSuccess()
	provider.Emit(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.UpstreamError(name, err, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return provider.UpstreamError(name, err, apiErrPtr.Code)
	}
	return provider.UpstreamError(name, err, 0)
}
