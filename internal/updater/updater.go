// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package updater applies one instruction to one file: fetch, generate,
// lint-fix and a revision-guarded commit.
package updater

import (
	"context"
	"log/slog"
	"path"

	"github.com/modelsmith-dev/modelsmith/internal/generate"
	"github.com/modelsmith-dev/modelsmith/internal/guard"
	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	"github.com/modelsmith-dev/modelsmith/internal/lint"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// Edit is a pending change to one file.
type Edit struct {
	Path   string
	Branch string
	// Ref is where the current content is read from; empty means Branch.
	Ref         string
	Instruction string
	Kind        types.Kind
}

// Result describes the outcome of a successful Update.
type Result struct {
	Path     string
	Revision string
	// Unchanged is set when generation reproduced the file; nothing was committed.
	Unchanged bool
	// LintWarning holds the linter failure when unfixed SQL was committed.
	LintWarning string
}

// Updater performs edits against a hosting store.
type Updater struct {
	host  hosting.Host
	gen   generate.Generator
	fixer lint.Fixer
	guard *guard.Guard
}

// Option configures an Updater.
type Option func(*Updater)

// WithGuard checks each generated file for introduced credentials before
// it is committed.
func WithGuard(g *guard.Guard) Option {
	return func(u *Updater) { u.guard = g }
}

// New creates an Updater. A nil fixer disables lint-fixing.
func New(host hosting.Host, gen generate.Generator, fixer lint.Fixer, opts ...Option) *Updater {
	if fixer == nil {
		fixer = lint.Noop{}
	}
	u := &Updater{host: host, gen: gen, fixer: fixer}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update makes at most one commit. A stale revision surfaces as
// hosting.file.conflict and is not retried.
func (u *Updater) Update(ctx context.Context, e Edit) (*Result, error) {
	ref := e.Ref
	if ref == "" {
		ref = e.Branch
	}
	fields := []mserr.Attr{mserr.FieldPath(e.Path), mserr.FieldBranch(e.Branch)}

	current, err := u.host.GetFile(ctx, e.Path, ref)
	if err != nil {
		return nil, mserr.With(err, fields...)
	}

	content, err := u.gen.Generate(ctx, current.Content, e.Instruction, e.Kind)
	if err != nil {
		return nil, mserr.With(err, fields...)
	}
	content = generate.StripFences(content)
	if err := generate.CheckWellFormed(content, e.Kind); err != nil {
		return nil, mserr.With(err, fields...)
	}

	res := &Result{Path: e.Path}
	if e.Kind.Lintable() {
		fixed, err := u.fixer.Fix(ctx, content, path.Base(e.Path))
		if err != nil {
			slog.Warn("lint-fix failed, committing unfixed content",
				"path", e.Path, "branch", e.Branch, "unfixable", mserr.IsUnfixable(err), "error", err)
			res.LintWarning = err.Error()
		} else {
			content = fixed
		}
	}

	if u.guard != nil {
		findings, err := u.guard.Check(current.Content, content)
		if err != nil {
			return nil, mserr.With(err, fields...)
		}
		for _, f := range findings {
			slog.Warn("generated content introduces a credential",
				"path", e.Path, "branch", e.Branch, "rule", f.Rule, "line", f.Line)
		}
	}

	if content == current.Content {
		slog.Info("generated content unchanged, skipping commit", "path", e.Path, "branch", e.Branch)
		res.Unchanged = true
		res.Revision = current.Revision
		return res, nil
	}

	rev, err := u.host.PutFile(ctx, hosting.PutFileRequest{
		Path:             e.Path,
		Branch:           e.Branch,
		Content:          content,
		ExpectedRevision: current.Revision,
		Message:          CommitMessage(e.Path, e.Instruction),
	})
	if err != nil {
		return nil, mserr.With(err, fields...)
	}

	slog.Info("file updated", "path", e.Path, "branch", e.Branch, "revision", rev)
	res.Revision = rev
	return res, nil
}

// CommitMessage is "modelsmith: update <path>", a blank line, then the
// instruction.
func CommitMessage(p, instruction string) string {
	return "modelsmith: update " + p + "\n\n" + instruction
}
