// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package guard keeps generated model files from committing credentials
// that were not already in the file.
package guard

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Mode selects what Check does with a finding.
type Mode string

const (
	ModeBlock Mode = "block"
	ModeFlag  Mode = "flag"
	ModeOff   Mode = "off"
)

// ParseMode parses a mode string (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeBlock, ModeFlag, ModeOff:
		return m, nil
	default:
		return "", mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "invalid guard mode: %q", s)
	}
}

// Rule is one credential pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Finding is a credential present in the generated content but absent
// from the original.
type Finding struct {
	Rule string
	// Line is 1-based, counted in the normalized content.
	Line int
}

// Guard compares generated content against the content it replaces.
type Guard struct {
	mode  Mode
	rules []Rule
}

// New creates a Guard. With no rules the built-in set is used.
func New(mode Mode, rules ...Rule) (*Guard, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	for i, r := range rules {
		if r.Name == "" || r.Pattern == nil {
			return nil, mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "guard rule %d is incomplete", i)
		}
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Guard{mode: mode, rules: rules}, nil
}

// Mode reports the configured mode.
func (g *Guard) Mode() Mode { return g.mode }

// Scan returns the credentials in generated that do not also occur in
// original. Placeholders the file already carried, such as a
// documented sample connection string, are not reported.
func (g *Guard) Scan(original, generated string) []Finding {
	if g.mode == ModeOff {
		return nil
	}
	before := normalize(original)
	after := normalize(generated)

	var findings []Finding
	for _, r := range g.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(after, -1) {
			if strings.Contains(before, after[loc[0]:loc[1]]) {
				continue
			}
			findings = append(findings, Finding{Rule: r.Name, Line: 1 + strings.Count(after[:loc[0]], "\n")})
		}
	}
	slices.SortStableFunc(findings, func(a, b Finding) int { return a.Line - b.Line })
	return findings
}

// Check returns guard.secret.invalid_input when the mode is block and Scan
// reports anything. In flag mode findings are returned without an error.
func (g *Guard) Check(original, generated string) ([]Finding, error) {
	findings := g.Scan(original, generated)
	if len(findings) == 0 || g.mode != ModeBlock {
		return findings, nil
	}
	return findings, mserr.New(mserr.CodeGuardSecretIntroduced,
		"generated content introduces a credential ("+findings[0].Rule+")",
		mserr.Field("findings", len(findings)),
		mserr.Field("first_rule", findings[0].Rule),
		mserr.Field("first_line", findings[0].Line),
	)
}

var invisibles = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // BOM
	"\u00ad", "", // soft hyphen
	"\u2060", "", // word joiner
)

// normalize folds compatibility forms so a key split by invisible
// characters still matches.
func normalize(s string) string {
	return norm.NFKC.String(invisibles.Replace(s))
}

var defaultRules = []Rule{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"anthropic_api_key", regexp.MustCompile(`sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}`)},
	{"openai_api_key", regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`)},
	{"openai_legacy_key", regexp.MustCompile(`sk-[A-Za-z0-9]{40,}`)},
	{"google_api_key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{"github_pat", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
	{"github_fine_grained_pat", regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`)},
	{"slack_token", regexp.MustCompile(`xox[bpas]-[A-Za-z0-9-]{10,}`)},
	{"pem_private_key", regexp.MustCompile(`-----BEGIN\s+(?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	// user:password@host; a bare host URL is fine in a source definition.
	{"database_connection_string", regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb|redis|snowflake|jdbc:[a-z]+)://[^\s:@/]+:(?:[^@\s%]|%[0-9A-Fa-f]{2})+@[^\s/:]+`)},
	{"mssql_connection_string", regexp.MustCompile(`(?i)(?:Server|Data Source)\s*=\s*[^;]+;\s*(?:Password|Pwd)\s*=\s*[^;]+`)},
	{"azure_account_key", regexp.MustCompile(`(?i)AccountKey\s*=\s*[A-Za-z0-9+/=]{20,}`)},
	{"sql_password_literal", regexp.MustCompile(`(?i)\bpassword\s*=\s*'[^'\s]{6,}'`)},
}

// DefaultRules returns the built-in credential patterns.
func DefaultRules() []Rule {
	return slices.Clone(defaultRules)
}
