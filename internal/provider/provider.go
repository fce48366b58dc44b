// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package provider adapts LLM vendor SDKs to one streaming chat interface.
package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

// Provider is the core interface for LLM providers.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// HealthReporter is implemented by providers that track their own health.
type HealthReporter interface {
	HealthMetrics() health.Metrics
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	// Temperature is nil to use the provider default.
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	// Err is set on EventTypeError and carries a pkg/errors code.
	Err error
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ModelInfo describes a model.
type ModelInfo struct {
	ID               string
	Name             string
	Provider         string
	MaxContextTokens int
	MaxOutputTokens  int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}

// statusCoder matches SDK error types that expose the HTTP status.
type statusCoder interface {
	error
	StatusCode() int
}

// UpstreamError codes an SDK failure. HTTP 429 becomes
// provider.upstream.rate_limited so callers can back off; anything else is
// provider.upstream.failure. status may be 0 when the SDK error carries none.
func UpstreamError(name string, err error, status int) error {
	if err == nil {
		return nil
	}
	if status == 0 {
		var sc statusCoder
		if errors.As(err, &sc) {
			status = sc.StatusCode()
		}
	}
	if status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return mserr.Wrap(err, mserr.CodeProviderRateLimited, name+": rate limited", mserr.FieldProvider(name))
	}
	return mserr.Wrap(err, mserr.CodeProviderUpstreamFailure, name+": request failed", mserr.FieldProvider(name))
}

// Emit sends ev unless ctx is done first. It reports whether the event was
// delivered so stream goroutines can stop when the reader goes away.
func Emit(ctx context.Context, ch chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Result is a fully collected chat response.
type Result struct {
	Text  string
	Usage Usage
}

// Collect drains a chat stream into one string. An error event or a
// cancelled context ends collection with that error.
func Collect(ctx context.Context, events <-chan ChatEvent) (*Result, error) {
	var b strings.Builder
	var res Result
	for {
		select {
		case <-ctx.Done():
			return nil, mserr.Wrap(ctx.Err(), mserr.CodeProviderUpstreamFailure, "chat cancelled")
		case ev, ok := <-events:
			if !ok {
				res.Text = b.String()
				return &res, nil
			}
			switch ev.Type {
			case EventTypeTextDelta:
				b.WriteString(ev.Text)
			case EventTypeUsage:
				if ev.Usage != nil {
					res.Usage.InputTokens = max(res.Usage.InputTokens, ev.Usage.InputTokens)
					res.Usage.OutputTokens = max(res.Usage.OutputTokens, ev.Usage.OutputTokens)
				}
			case EventTypeError:
				if ev.Err == nil {
					return nil, mserr.New(mserr.CodeProviderUpstreamFailure, "chat stream failed")
				}
				return nil, ev.Err
			case EventTypeDone:
				res.Text = b.String()
				return &res, nil
			}
		}
	}
}
