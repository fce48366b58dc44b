// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package types

import (
	"path"
	"strings"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Kind is the category of a model-repository file. It selects the generation
// instructions and whether the SQL linter runs after generation.
type Kind string

const (
	KindSQL      Kind = "sql"
	KindYAML     Kind = "yaml"
	KindMarkdown Kind = "markdown"
	KindPython   Kind = "python"
	KindJSON     Kind = "json"
	KindCSV      Kind = "csv"
)

// Extensions is the allow-list of file extensions, without the dot, that an
// instruction may reference.
var Extensions = []string{"sql", "yml", "yaml", "md", "py", "json", "csv"}

var extensionKinds = map[string]Kind{
	"sql":  KindSQL,
	"yml":  KindYAML,
	"yaml": KindYAML,
	"md":   KindMarkdown,
	"py":   KindPython,
	"json": KindJSON,
	"csv":  KindCSV,
}

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSQL, KindYAML, KindMarkdown, KindPython, KindJSON, KindCSV:
		return true
	default:
		return false
	}
}

// Lintable reports whether generated content of this kind goes through the
// lint-fix step.
func (k Kind) Lintable() bool {
	return k == KindSQL
}

// KindFromPath returns the kind for a file name or path by its extension.
// Extensions outside the allow-list are an invalid-input error.
func KindFromPath(p string) (Kind, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if k, ok := extensionKinds[ext]; ok {
		return k, nil
	}
	return "", mserr.New(mserr.CodeResolverKindUnsupported,
		"unsupported file kind: "+p, mserr.Field("fragment", p))
}

// SameKind reports whether two paths share a kind. Unsupported extensions
// never match.
func SameKind(a, b string) bool {
	ka, errA := KindFromPath(a)
	kb, errB := KindFromPath(b)
	return errA == nil && errB == nil && ka == kb
}
