// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package hosting is the contract with the source-control host: a remote
// file store keyed by (path, branch, revision) plus pull-request lifecycle.
package hosting

import (
	"context"
)

// File is one file's content at a ref. Revision is an opaque token that a
// later PutFile must present to prove the file has not changed since.
type File struct {
	Path     string
	Content  string
	Revision string
}

// PutFileRequest writes Content to Path on Branch as one commit. An empty
// ExpectedRevision requires that the file does not exist yet.
type PutFileRequest struct {
	Path             string
	Branch           string
	Content          string
	ExpectedRevision string
	Message          string
}

// NewPullRequest describes a draft pull request from Head into Base.
type NewPullRequest struct {
	Head  string
	Base  string
	Title string
	Body  string
}

// PullRequest is the host's view of a pull request.
type PullRequest struct {
	Number int
	URL    string
	Title  string
	Head   string
	Base   string
	Draft  bool
}

// EditPullRequest carries optional field updates. Nil fields are unchanged.
type EditPullRequest struct {
	Title *string
	Body  *string
}

// Host is implemented by every hosting backend.
//
// Errors carry codes from pkg/errors: *.not_found for missing refs, files and
// pull requests, hosting.file.conflict for a stale revision,
// hosting.upstream.rate_limited for throttling and
// hosting.pr.ready.upstream.failure when MarkReady fails.
type Host interface {
	DefaultBranch(ctx context.Context) (string, error)
	// CreateBranch forks name from the tip of from.
	CreateBranch(ctx context.Context, from, name string) error
	// ListFiles returns every file path at ref.
	ListFiles(ctx context.Context, ref string) ([]string, error)
	GetFile(ctx context.Context, path, ref string) (*File, error)
	// PutFile commits the new content and returns the new revision token.
	PutFile(ctx context.Context, req PutFileRequest) (string, error)
	CreateDraftPR(ctx context.Context, pr NewPullRequest) (*PullRequest, error)
	EditPR(ctx context.Context, number int, edit EditPullRequest) error
	// MarkReady moves a draft pull request to ready for review. A pull
	// request that is already ready is left alone.
	MarkReady(ctx context.Context, number int) error
	GetPR(ctx context.Context, number int) (*PullRequest, error)
}
