// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package lint auto-fixes generated SQL before it is committed.
package lint

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Fixer returns fixed SQL. Violations it cannot repair are reported with
// errors.CodeLintFixUnfixable; callers treat every Fixer error as a warning.
type Fixer interface {
	Fix(ctx context.Context, sql, filenameHint string) (string, error)
}

// Noop returns its input unchanged.
type Noop struct{}

func (Noop) Fix(_ context.Context, sql, _ string) (string, error) { return sql, nil }

// SQLFluffConfig configures the sqlfluff subprocess.
type SQLFluffConfig struct {
	// Command is the sqlfluff executable. Defaults to "sqlfluff" on PATH.
	Command string
	// Dialect is passed as --dialect. Defaults to "ansi".
	Dialect string
	// Timeout bounds one invocation. Zero means 30s.
	Timeout time.Duration
	// ExtraArgs are appended after the built-in flags.
	ExtraArgs []string
}

// SQLFluff runs `sqlfluff fix` on a temporary copy of the SQL. The file keeps
// the hint's base name so path-based sqlfluff rules still apply.
type SQLFluff struct {
	cfg SQLFluffConfig
}

func NewSQLFluff(cfg SQLFluffConfig) *SQLFluff {
	if cfg.Command == "" {
		cfg.Command = "sqlfluff"
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "ansi"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SQLFluff{cfg: cfg}
}

// sqlfluff fix exits 1 when violations remain after fixing.
const exitUnfixable = 1

func (s *SQLFluff) Fix(ctx context.Context, sql, filenameHint string) (string, error) {
	dir, err := os.MkdirTemp("", "modelsmith-lint-*")
	if err != nil {
		return "", mserr.Wrap(err, mserr.CodeLintToolFailure, "creating lint workspace")
	}
	defer os.RemoveAll(dir)

	name := filepath.Base(filenameHint)
	if name == "." || name == string(filepath.Separator) || !strings.HasSuffix(strings.ToLower(name), ".sql") {
		name = "model.sql"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sql), 0o600); err != nil {
		return "", mserr.Wrap(err, mserr.CodeLintToolFailure, "writing lint input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := append([]string{"fix", "--dialect", s.cfg.Dialect, "--force", "--quiet", path}, s.cfg.ExtraArgs...)
	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	fixed, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", mserr.Wrap(readErr, mserr.CodeLintToolFailure, "reading lint output")
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return string(fixed), nil
	case errors.As(runErr, &exitErr) && exitErr.ExitCode() == exitUnfixable:
		return string(fixed), mserr.New(mserr.CodeLintFixUnfixable,
			"sqlfluff left unfixable violations: "+strings.TrimSpace(stderr.String()),
			mserr.FieldPath(filenameHint))
	default:
		return "", mserr.Wrap(runErr, mserr.CodeLintToolFailure,
			"running sqlfluff: "+strings.TrimSpace(stderr.String()), mserr.FieldPath(filenameHint))
	}
}
