// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package generate

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// StripFences removes one surrounding markdown code fence, with or without
// an info string, and trims the surrounding blank lines. Text that is not
// fenced is returned trimmed of leading blank lines only.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return strings.TrimLeft(s, "\r\n")
	}

	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return ""
	}
	body := trimmed[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 && strings.TrimSpace(body[end+3:]) == "" {
		body = body[:end]
	}
	return strings.TrimRight(body, " \t\r\n") + "\n"
}

// CheckWellFormed rejects empty output and YAML or JSON that does not parse.
// Other kinds are passed through; their linter, if any, owns the syntax.
func CheckWellFormed(content string, kind types.Kind) error {
	if strings.TrimSpace(content) == "" {
		return mserr.New(mserr.CodeGenerateOutputMalformed, "generated content is empty", mserr.Field("kind", string(kind)))
	}

	switch kind {
	case types.KindYAML:
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			return mserr.Wrap(err, mserr.CodeGenerateOutputMalformed, "generated YAML does not parse", mserr.Field("kind", string(kind)))
		}
	case types.KindJSON:
		if !json.Valid([]byte(content)) {
			return mserr.New(mserr.CodeGenerateOutputMalformed, "generated JSON does not parse", mserr.Field("kind", string(kind)))
		}
	}
	return nil
}
