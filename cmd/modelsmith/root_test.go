// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// writeConfig writes content to a private modelsmith.yaml under a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelsmith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCLI executes the root command against a throwaway config so results do
// not depend on files in the working or home directory.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWithConfig(t, writeConfig(t, "logging:\n  level: warn\n"), args...)
}

func runCLIWithConfig(t *testing.T, cfg string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := runCLI(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "request", "translate", "sessions", "init", "secret", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "modelsmith dev (commit: unknown, built: unknown)\n", out)
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"--config", "/nonexistent/modelsmith.yaml", "version"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeConfigLoadReadFailure))
}

func TestRootCommand_EnvFile(t *testing.T) {
	const key = "MODELSMITH_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=from-file\n"), 0o600))

	_, _, err := runCLI(t, "--env-file", envFile, "version")
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv(key))
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	cfg := writeConfig(t, "logging:\n  level: loud\n")
	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"--config", cfg, "version"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeConfigValidateInvalidValue))
}

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	tests := []struct {
		name     string
		level    string
		format   string
		verbose  bool
		wantErr  bool
		wantJSON bool
		debug    bool
	}{
		{name: "text info", level: "info", format: "text"},
		{name: "json", level: "info", format: "json", wantJSON: true},
		{name: "default format", level: "warn", format: ""},
		{name: "verbose forces debug", level: "error", format: "text", verbose: true, debug: true},
		{name: "debug level", level: "debug", format: "text", debug: true},
		{name: "unknown format", level: "info", format: "xml", wantErr: true},
		{name: "unknown level", level: "chatty", format: "text", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := setupLogging(&buf, tt.level, tt.format, tt.verbose)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, mserr.HasCode(err, mserr.CodeConfigValidateInvalidValue))
				return
			}
			require.NoError(t, err)

			slog.Debug("debug line")
			slog.Error("error line")
			if tt.debug {
				assert.Contains(t, buf.String(), "debug line")
			} else {
				assert.NotContains(t, buf.String(), "debug line")
			}
			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"error line"`)
			} else {
				assert.Contains(t, buf.String(), "msg=\"error line\"")
			}
		})
	}
}
