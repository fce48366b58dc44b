// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// ProviderName identifies a supported LLM provider.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderGoogle     ProviderName = "google"
	ProviderOpenRouter ProviderName = "openrouter"
)

// modelsEndpoints are the listing endpoints used to check a key.
var modelsEndpoints = map[ProviderName]string{
	ProviderAnthropic:  "https://api.anthropic.com/v1/models",
	ProviderOpenAI:     "https://api.openai.com/v1/models",
	ProviderGoogle:     "https://generativelanguage.googleapis.com/v1/models",
	ProviderOpenRouter: "https://openrouter.ai/api/v1/models",
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the key is accepted.
func ValidateKey(ctx context.Context, client *http.Client, provider ProviderName, key string) error {
	return ValidateKeyAt(ctx, client, provider, key, "")
}

// ValidateKeyAt is ValidateKey against an explicit endpoint. An empty
// endpoint selects the provider default.
func ValidateKeyAt(ctx context.Context, client *http.Client, provider ProviderName, key, endpoint string) error {
	if endpoint == "" {
		var ok bool
		if endpoint, ok = modelsEndpoints[provider]; !ok {
			return mserr.Errorf(mserr.CodeProviderKeyInvalid, "unknown provider: %s", provider)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mserr.Errorf(mserr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	switch provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderGoogle:
		req.Header.Set("x-goog-api-key", key)
	case ProviderOpenAI, ProviderOpenRouter:
		req.Header.Set("Authorization", "Bearer "+key)
	default:
		return mserr.Errorf(mserr.CodeProviderKeyInvalid, "unknown provider: %s", provider)
	}

	resp, err := client.Do(req)
	if err != nil {
		return mserr.Errorf(mserr.CodeProviderKeyCheckFailed, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return mserr.Errorf(mserr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	case resp.StatusCode >= 400:
		return mserr.Errorf(mserr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}
	return nil
}
