// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

//go:embed modelsmith.yaml.default
var DefaultConfigYAML []byte

// SearchPaths are the directories searched for modelsmith.yaml, in order.
var SearchPaths = []string{".", "$HOME/.config/modelsmith", "/etc/modelsmith"}

// DefaultConfigPath returns ~/.config/modelsmith/modelsmith.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", mserr.Errorf(mserr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "modelsmith", "modelsmith.yaml"), nil
}

// Bootstrap writes content, the commented default when nil, to path unless
// a file is already there. It reports whether it wrote.
func Bootstrap(path string, content []byte) (bool, error) {
	if content == nil {
		content = DefaultConfigYAML
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, mserr.Errorf(mserr.CodeConfigLoadReadFailure, "checking %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, mserr.Errorf(mserr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	// The file may hold tokens.
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return false, mserr.Errorf(mserr.CodeConfigLoadReadFailure, "writing %s: %w", path, err)
	}
	slog.Info("wrote config", "path", path)
	return true, nil
}

// LoadDotEnv loads KEY=value files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// It returns the files that were loaded.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, mserr.Errorf(mserr.CodeConfigParseInvalidFormat, "loading %s: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
		loaded = append(loaded, p)
	}
	return loaded, nil
}
