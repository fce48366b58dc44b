// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package lint_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/lint"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// fakeSQLFluff writes a shell script standing in for sqlfluff. The script
// receives the target file as its last built-in argument.
func fakeSQLFluff(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	path := filepath.Join(t.TempDir(), "sqlfluff")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestNoop(t *testing.T) {
	out, err := lint.Noop{}.Fix(context.Background(), "select 1", "a.sql")
	require.NoError(t, err)
	assert.Equal(t, "select 1", out)
}

func TestSQLFluff_Fixes(t *testing.T) {
	// $6 is the file: fix --dialect ansi --force --quiet <file>
	cmd := fakeSQLFluff(t, `printf 'SELECT 1\n' > "$6"`)
	out, err := lint.NewSQLFluff(lint.SQLFluffConfig{Command: cmd}).Fix(context.Background(), "select 1", "models/orders.sql")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1\n", out)
}

func TestSQLFluff_KeepsHintBaseName(t *testing.T) {
	cmd := fakeSQLFluff(t, `basename "$6" > "$6"`)
	out, err := lint.NewSQLFluff(lint.SQLFluffConfig{Command: cmd}).Fix(context.Background(), "x", "models/marts/orders.sql")
	require.NoError(t, err)
	assert.Equal(t, "orders.sql\n", out)
}

func TestSQLFluff_Unfixable(t *testing.T) {
	cmd := fakeSQLFluff(t, `echo "L003 unfixable" >&2; exit 1`)
	out, err := lint.NewSQLFluff(lint.SQLFluffConfig{Command: cmd}).Fix(context.Background(), "select  1", "a.sql")
	require.Error(t, err)
	assert.True(t, mserr.IsUnfixable(err))
	assert.Contains(t, err.Error(), "L003")
	assert.Equal(t, "select  1", out, "the partially fixed file is still returned")
}

func TestSQLFluff_ToolFailure(t *testing.T) {
	cmd := fakeSQLFluff(t, `exit 2`)
	_, err := lint.NewSQLFluff(lint.SQLFluffConfig{Command: cmd}).Fix(context.Background(), "select 1", "a.sql")
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeLintToolFailure))
}

func TestSQLFluff_MissingBinary(t *testing.T) {
	_, err := lint.NewSQLFluff(lint.SQLFluffConfig{Command: filepath.Join(t.TempDir(), "absent")}).Fix(context.Background(), "select 1", "a.sql")
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeLintToolFailure))
}
