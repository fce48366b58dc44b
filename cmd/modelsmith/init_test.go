// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/modelsmith-dev/modelsmith/internal/config"
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// stubHTTP answers every request with status.
func stubHTTP(status int) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("{}")), Request: r}, nil
	})}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msgs to m and returns the model and the last command.
func press(t *testing.T, m initModel, msgs ...tea.Msg) (initModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		next, c := m.Update(msg)
		var ok bool
		m, ok = next.(initModel)
		require.True(t, ok)
		cmd = c
	}
	return m, cmd
}

func TestInitModel_ProviderNavigation(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")

	m, _ = press(t, m, key("down"), key("down"), key("up"))
	assert.Equal(t, 1, m.providerIdx)

	// Cannot move above the first entry.
	m, _ = press(t, m, key("up"), key("up"))
	assert.Equal(t, 0, m.providerIdx)

	m, _ = press(t, m, key("j"), key("enter"))
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, provider.ProviderOpenAI, m.result.Provider)
	assert.Contains(t, m.View(), "openai API key")
}

func TestInitModel_EmptyAPIKey(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	m, _ = press(t, m, key("enter"), key("enter"))

	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "API key must not be empty", m.inputErr)
}

func TestInitModel_KeyValidation(t *testing.T) {
	orig := initHTTPClient
	t.Cleanup(func() { initHTTPClient = orig })

	t.Run("accepted", func(t *testing.T) {
		initHTTPClient = stubHTTP(http.StatusOK)
		m := newInitModel(newMockSecretStore(), "")
		m, _ = press(t, m, key("enter"), key("sk-test"), key("enter"))
		assert.Equal(t, stepValidateKey, m.step)
		assert.Equal(t, "sk-test", m.result.APIKey)

		msg := validateProviderKeyCmd(m.result.Provider, m.result.APIKey)()
		m, _ = press(t, m, msg)
		assert.Equal(t, stepHost, m.step)
	})

	t.Run("rejected", func(t *testing.T) {
		initHTTPClient = stubHTTP(http.StatusUnauthorized)
		m := newInitModel(newMockSecretStore(), "")
		m, _ = press(t, m, key("enter"), key("sk-bad"), key("enter"))

		msg := validateProviderKeyCmd(m.result.Provider, m.result.APIKey)()
		m, _ = press(t, m, msg)
		assert.Equal(t, stepAPIKey, m.step)
		assert.Contains(t, m.inputErr, "invalid anthropic API key")
	})
}

func TestInitModel_GitHubFlow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelsmith.yaml")
	store := newMockSecretStore()
	m := newInitModel(store, path)
	m.skipVerify = true

	m, _ = press(t, m, key("enter"), key("sk-ant"), key("enter"))
	require.Equal(t, stepHost, m.step)

	m, _ = press(t, m, key("enter"))
	require.Equal(t, stepRepo, m.step)

	m, _ = press(t, m, key("not-a-repo"), key("enter"))
	assert.Equal(t, "enter the repository as owner/name", m.inputErr)

	m.repoInput.SetValue("acme/analytics")
	m, _ = press(t, m, key("enter"))
	require.Equal(t, stepToken, m.step)
	assert.Equal(t, "acme", m.result.Owner)
	assert.Equal(t, "analytics", m.result.Name)

	m, cmd := press(t, m, key("ghp_123"), key("enter"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	require.Equal(t, stepDone, m.step, m.errFinal)
	assert.Equal(t, path, m.configPath)

	assert.Equal(t, "sk-ant", store.data["anthropic-api-key"])
	assert.Equal(t, "ghp_123", store.data["github-token"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-ant")
	assert.NotContains(t, string(raw), "ghp_123")
}

func TestInitModel_LocalFlow(t *testing.T) {
	repoDir := t.TempDir()
	_, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "modelsmith.yaml")
	m := newInitModel(newMockSecretStore(), path)
	m.skipVerify = true

	m, _ = press(t, m, key("enter"), key("sk-ant"), key("enter"), key("down"), key("enter"))
	require.Equal(t, stepRepo, m.step)
	assert.Equal(t, hostLocal, m.result.Host)

	m.repoInput.SetValue(t.TempDir())
	m, _ = press(t, m, key("enter"))
	assert.Contains(t, m.inputErr, "is not a git repository")

	m.repoInput.SetValue(repoDir)
	m, cmd := press(t, m, key("enter"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	require.Equal(t, stepDone, m.step, m.errFinal)
	assert.Contains(t, m.View(), "Setup complete")
}

func TestInitModel_WriteErrorIsTerminal(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	m, cmd := press(t, m, mserr.New(mserr.CodeConfigAlreadyExists, "exists"))
	assert.Equal(t, stepError, m.step)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Setup failed: exists")
}

func TestInitModel_Quit(t *testing.T) {
	m := newInitModel(newMockSecretStore(), "")
	_, cmd := press(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestGenerateConfigYAML_LoadsAsValidConfig(t *testing.T) {
	tests := []struct {
		name   string
		result initResult
		check  func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "github",
			result: initResult{
				Provider: provider.ProviderOpenAI, Host: hostGitHub,
				Owner: "acme", Name: "analytics", SessionsDB: "/var/lib/modelsmith/sessions.db",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "openai/gpt-4.1", cfg.Models.Default)
				assert.Equal(t, "acme", cfg.Repository.Owner)
				assert.Equal(t, "resolved:modelsmith/github-token", cfg.Repository.Token)
				assert.Equal(t, "resolved:modelsmith/openai-api-key", cfg.Providers["openai"].APIKey)
				assert.Equal(t, "sqlite", cfg.Storage.Backend)
			},
		},
		{
			name:   "local in memory",
			result: initResult{Provider: provider.ProviderGoogle, Host: hostLocal, LocalPath: "/srv/analytics"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "/srv/analytics", cfg.Repository.LocalPath)
				assert.Empty(t, cfg.Repository.Token)
				assert.Equal(t, "memory", cfg.Storage.Backend)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GenerateConfigYAML(tt.result)
			require.NoError(t, err)

			var generic map[string]any
			require.NoError(t, yaml.Unmarshal([]byte(out), &generic))

			path := writeConfig(t, out)
			v := newConfigViper(t, path)
			cfg, err := config.FromViper(v, func(service, key string) (string, error) {
				return "resolved:" + service + "/" + key, nil
			})
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestStoreSecretsAndWriteConfig_RefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "existing: true\n")
	result := initResult{Provider: provider.ProviderAnthropic, APIKey: "k", Host: hostLocal, LocalPath: "/srv/a"}

	_, err := storeSecretsAndWriteConfig(result, newMockSecretStore(), path, false)
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeConfigAlreadyExists))

	written, err := storeSecretsAndWriteConfig(result, newMockSecretStore(), path, true)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStoreSecretsAndWriteConfig_DefaultPath(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "modelsmith.yaml")
	orig := configPathForWrite
	configPathForWrite = func() (string, error) { return target, nil }
	t.Cleanup(func() { configPathForWrite = orig })

	written, err := storeSecretsAndWriteConfig(initResult{
		Provider: provider.ProviderAnthropic, APIKey: "k", Host: hostLocal, LocalPath: "/srv/a",
	}, newMockSecretStore(), "", false)
	require.NoError(t, err)
	assert.Equal(t, target, written)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), filepath.Join(filepath.Dir(target), "sessions.db"))
}

func TestInitCommand_RequiresTerminal(t *testing.T) {
	root := NewRootCmd()
	var stderr bytes.Buffer
	root.SetOut(new(bytes.Buffer))
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "new.yaml"), "init"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeCLISetupFailure))
	assert.Contains(t, stderr.String(), "interactive terminal")
}
