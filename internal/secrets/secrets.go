// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package secrets keeps provider API keys and hosting tokens out of config
// files. Values live in the OS keyring and config refers to them with
// keyring://service/key URIs.
package secrets

// DefaultService is the keyring service modelsmith writes to.
const DefaultService = "modelsmith"

// Store holds secrets for one keyring service.
type Store interface {
	Set(key, value string) error
	// Get returns a secret.keyring.not_found error for an unknown key.
	Get(key string) (string, error)
	// Delete returns a secret.keyring.not_found error for an unknown key.
	Delete(key string) error
	// Keys lists stored key names in insertion order.
	Keys() ([]string, error)
}

// Lookup reads one secret from any service. It backs URI resolution, where
// the service comes from the URI.
type Lookup func(service, key string) (string, error)

// ProviderKey is the conventional key name for a provider's API key.
func ProviderKey(provider string) string {
	return provider + "-api-key"
}

// HostingTokenKey is the key name for the repository hosting token.
const HostingTokenKey = "github-token"
