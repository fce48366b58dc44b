// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package agent

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// confirmations are the normalized utterances that finalize a session.
var confirmations = map[string]struct{}{
	"confirm":    {},
	"ready":      {},
	"approve":    {},
	"looks good": {},
}

// NormalizeUtterance case-folds s, drops everything but letters, digits and
// spaces, collapses runs of whitespace and trims.
func NormalizeUtterance(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsConfirmation reports whether s, normalized, is exactly a confirmation.
// "looks good, ship it" is not.
func IsConfirmation(s string) bool {
	_, ok := confirmations[NormalizeUtterance(s)]
	return ok
}

var referencePattern = regexp.MustCompile(`[\w./-]+\.(?:` + strings.Join(types.Extensions, "|") + `)\b`)

// References returns the file fragments a turn targets: the basenames of
// explicit file names when any are given, otherwise every allow-listed
// file-looking token in prompt. Duplicates are dropped, first seen wins.
func References(fileNames []string, prompt string) []string {
	var raw []string
	for _, f := range fileNames {
		if f = strings.TrimSpace(f); f != "" {
			raw = append(raw, path.Base(strings.ReplaceAll(f, "\\", "/")))
		}
	}
	if len(raw) == 0 {
		raw = referencePattern.FindAllString(prompt, -1)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

const initialTitleRunes = 50

// InitialTitle is the draft PR title: the first 50 runes of the prompt,
// with an ellipsis only when something was cut.
func InitialTitle(prompt string) string {
	return "Automated PR: " + truncateRunes(singleLine(prompt), initialTitleRunes)
}

// PRBody quotes the prompt that opened the session.
func PRBody(prompt, sessionID string) string {
	var b strings.Builder
	b.WriteString("Opened by modelsmith for the request:\n\n")
	for _, line := range strings.Split(strings.TrimSpace(prompt), "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nFurther instructions in session `")
	b.WriteString(sessionID)
	b.WriteString("` update this branch. Reply \"confirm\" to mark it ready for review.\n")
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
