// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package generate

import (
	"context"
	"encoding/json"
	"strings"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// titleMaxRunes bounds generated and fallback PR titles.
const titleMaxRunes = 72

// Generate returns the rewritten file with code fences removed. The caller
// validates well-formedness so that every Generator is held to it.
func (l *LLM) Generate(ctx context.Context, original, instruction string, kind types.Kind) (string, error) {
	text, err := l.complete(ctx, "generate", editSystemPrompt(kind), editUserPrompt(original, instruction), 0)
	if err != nil {
		return "", err
	}
	return StripFences(text), nil
}

// Title returns a single-line title of at most 72 runes.
func (l *LLM) Title(ctx context.Context, prompt string) (string, error) {
	text, err := l.complete(ctx, "title", titleSystemPrompt, prompt, 100)
	if err != nil {
		return "", err
	}
	title := CleanTitle(text)
	if title == "" {
		return "", mserr.New(mserr.CodeGenerateOutputMalformed, "model returned an empty title")
	}
	return title, nil
}

// CleanTitle keeps the first non-blank line, drops wrapping quotes and a
// trailing period, and truncates to 72 runes.
func CleanTitle(s string) string {
	var line string
	for _, l := range strings.Split(StripFences(s), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.Trim(line, "\"'`")
	line = strings.TrimSuffix(strings.TrimSpace(line), ".")
	if r := []rune(line); len(r) > titleMaxRunes {
		line = strings.TrimSpace(string(r[:titleMaxRunes]))
	}
	return line
}

// Translate asks for a {files, prompt} object. Fenced output is accepted.
func (l *LLM) Translate(ctx context.Context, prompt string) (*Translation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, mserr.New(mserr.CodeAgentTurnInvalidInput, "prompt is required")
	}

	text, err := l.complete(ctx, "translate", translateSystemPrompt, prompt, 0)
	if err != nil {
		return nil, err
	}
	return ParseTranslation(text)
}

// ParseTranslation decodes translator output.
func ParseTranslation(text string) (*Translation, error) {
	raw := strings.TrimSpace(StripFences(text))
	var t Translation
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, mserr.Wrap(err, mserr.CodeGenerateTranslateInvalid, "translator output is not a JSON object", mserr.Field("output", truncate(raw, 200)))
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return nil, mserr.New(mserr.CodeGenerateTranslateInvalid, "translator output has no prompt", mserr.Field("output", truncate(raw, 200)))
	}

	files := t.Files[:0]
	for _, f := range t.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	t.Files = files
	return &t, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
