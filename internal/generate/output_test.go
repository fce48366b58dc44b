// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package generate_test

import (
	"strings"
	"testing"

	"github.com/modelsmith-dev/modelsmith/internal/generate"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text unchanged", "select 1\n", "select 1\n"},
		{"leading blank lines dropped", "\n\nselect 1\n", "select 1\n"},
		{"fenced with info string", "```sql\nselect 1\n```", "select 1\n"},
		{"fenced without info string", "```\nversion: 2\n```\n", "version: 2\n"},
		{"surrounding whitespace", "  \n```yaml\na: 1\n\n```  \n", "a: 1\n"},
		{"unterminated fence", "```sql\nselect 1\n", "select 1\n"},
		{"fence only", "```", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generate.StripFences(tt.in))
		})
	}
}

func TestCheckWellFormed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    types.Kind
		wantErr bool
	}{
		{"valid yaml", "version: 2\nmodels:\n  - name: d_customers\n", types.KindYAML, false},
		{"broken yaml", "models:\n  - name: [unclosed\n", types.KindYAML, true},
		{"valid json", `{"a": 1}`, types.KindJSON, false},
		{"broken json", `{"a": }`, types.KindJSON, true},
		{"sql is not parsed", "select from where", types.KindSQL, false},
		{"empty sql", " \n", types.KindSQL, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := generate.CheckWellFormed(tt.content, tt.kind)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, mserr.HasCode(err, mserr.CodeGenerateOutputMalformed))
			assert.True(t, mserr.IsUpstreamFailure(err))
		})
	}
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Add column", generate.CleanTitle("`Add column.`"))
	assert.Equal(t, "First", generate.CleanTitle("\n\nFirst\nSecond"))

	long := strings.Repeat("é", 100)
	assert.Equal(t, 72, len([]rune(generate.CleanTitle(long))))
}

func TestParseTranslation_Invalid(t *testing.T) {
	tests := []string{"not json", `{"files": ["a.sql"]}`, `{"files": [], "prompt": " "}`}
	for _, in := range tests {
		_, err := generate.ParseTranslation(in)
		assert.True(t, mserr.HasCode(err, mserr.CodeGenerateTranslateInvalid), in)
	}
}
