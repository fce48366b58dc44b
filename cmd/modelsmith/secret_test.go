// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/secrets"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store.
type mockSecretStore struct {
	data map[string]string
	keys []string
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: map[string]string{}}
	for _, k := range keys {
		_ = m.Set(k, "redacted")
	}
	return m
}

func (m *mockSecretStore) Set(key, value string) error {
	if _, ok := m.data[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Get(key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", mserr.New(mserr.CodeSecretNotFound, "secret "+key+" not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(key string) error {
	if _, ok := m.data[key]; !ok {
		return mserr.New(mserr.CodeSecretNotFound, "secret "+key+" not found")
	}
	delete(m.data, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
	return nil
}

func (m *mockSecretStore) Keys() ([]string, error) {
	return slices.Clone(m.keys), nil
}

// useSecretStore installs store for the duration of the test.
func useSecretStore(t *testing.T, store secrets.Store) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = orig })
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"empty", nil, "No secrets stored.\n"},
		{"insertion order", []string{"github-token", "anthropic-api-key"}, "github-token\nanthropic-api-key\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSecretStore(t, newMockSecretStore(tt.keys...))

			out, _, err := runCLI(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretSet_FromArgument(t *testing.T) {
	store := newMockSecretStore()
	useSecretStore(t, store)

	out, _, err := runCLI(t, "secret", "set", "github-token", "ghp_abc")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", store.data["github-token"])
	assert.Contains(t, out, "keyring://modelsmith/github-token")
}

func TestSecretSet_FromStdin(t *testing.T) {
	store := newMockSecretStore()
	useSecretStore(t, store)

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader("sk-ant-123\r\nignored\n"))
	root.SetArgs([]string{"--config", writeConfig(t, "{}\n"), "secret", "set", "anthropic-api-key"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "sk-ant-123", store.data["anthropic-api-key"])
}

func TestSecretSet_EmptyValue(t *testing.T) {
	useSecretStore(t, newMockSecretStore())

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"--config", writeConfig(t, "{}\n"), "secret", "set", "github-token"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeSecretInputInvalid))
}

func TestSecretGet(t *testing.T) {
	store := newMockSecretStore()
	require.NoError(t, store.Set("github-token", "ghp_abc"))
	useSecretStore(t, store)

	out, _, err := runCLI(t, "secret", "get", "github-token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc\n", out)

	_, _, err = runCLI(t, "secret", "get", "missing")
	assert.True(t, mserr.HasCode(err, mserr.CodeSecretNotFound))
}

func TestSecretDelete(t *testing.T) {
	store := newMockSecretStore("github-token", "openai-api-key")
	useSecretStore(t, store)

	out, _, err := runCLI(t, "secret", "delete", "github-token")
	require.NoError(t, err)
	assert.Equal(t, "Deleted secret: github-token\n", out)
	assert.Equal(t, []string{"openai-api-key"}, store.keys)

	_, _, err = runCLI(t, "secret", "delete", "github-token")
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeSecretNotFound))
}

func TestReadSecretValue(t *testing.T) {
	v, err := readSecretValue(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", v)
}
