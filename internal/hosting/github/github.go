// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package github hosts sessions on a GitHub repository: REST for refs,
// contents and pull requests, GraphQL for the draft to ready transition.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

var _ hosting.Host = (*Host)(nil)

// Config identifies the repository and credentials.
type Config struct {
	Owner string
	Repo  string
	Token string
	// BaseURL is the REST root for GitHub Enterprise, e.g.
	// https://ghe.example.com/api/v3/. Empty means github.com.
	BaseURL string
	// DefaultBranch skips the repository lookup when set.
	DefaultBranch string
	HTTPClient    *http.Client
}

// Host implements hosting.Host for one GitHub repository.
type Host struct {
	client        *gh.Client
	owner         string
	repo          string
	defaultBranch string
	graphqlURL    string
}

// New builds a Host from cfg.
func New(cfg Config) (*Host, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, mserr.New(mserr.CodeHostingConfigInvalid, "github owner and repo are required")
	}

	client := gh.NewClient(cfg.HTTPClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, mserr.Wrap(err, mserr.CodeHostingConfigInvalid, "parsing github base url")
		}
		client.BaseURL = u
	}

	return &Host{
		client:        client,
		owner:         cfg.Owner,
		repo:          cfg.Repo,
		defaultBranch: cfg.DefaultBranch,
		graphqlURL:    graphqlEndpoint(client.BaseURL),
	}, nil
}

// graphqlEndpoint maps the REST root to the GraphQL endpoint. Enterprise
// serves REST from /api/v3/ and GraphQL from /api/graphql.
func graphqlEndpoint(rest *url.URL) string {
	u := *rest
	if strings.HasSuffix(u.Path, "/api/v3/") {
		u.Path = strings.TrimSuffix(u.Path, "v3/") + "graphql"
		return u.String()
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/graphql"
	return u.String()
}

func (h *Host) DefaultBranch(ctx context.Context) (string, error) {
	if h.defaultBranch != "" {
		return h.defaultBranch, nil
	}
	r, resp, err := h.client.Repositories.Get(ctx, h.owner, h.repo)
	if err != nil {
		return "", classify(err, resp, mserr.CodeHostingUpstreamFailure, "getting repository")
	}
	return r.GetDefaultBranch(), nil
}

func (h *Host) CreateBranch(ctx context.Context, from, name string) error {
	base, resp, err := h.client.Git.GetRef(ctx, h.owner, h.repo, "refs/heads/"+from)
	if err != nil {
		return classify(err, resp, mserr.CodeHostingBranchNotFound, "resolving base branch", mserr.FieldBranch(from))
	}

	ref := &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + name),
		Object: &gh.GitObject{SHA: base.Object.SHA},
	}
	_, resp, err = h.client.Git.CreateRef(ctx, h.owner, h.repo, ref)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return mserr.Wrap(err, mserr.CodeHostingBranchConflict, "branch already exists", mserr.FieldBranch(name))
		}
		return classify(err, resp, mserr.CodeHostingUpstreamFailure, "creating branch", mserr.FieldBranch(name))
	}
	return nil
}

func (h *Host) ListFiles(ctx context.Context, ref string) ([]string, error) {
	tree, resp, err := h.client.Git.GetTree(ctx, h.owner, h.repo, ref, true)
	if err != nil {
		return nil, classify(err, resp, mserr.CodeHostingBranchNotFound, "listing tree", mserr.FieldBranch(ref))
	}
	if tree.GetTruncated() {
		slog.Warn("github tree listing truncated; some files cannot be resolved", "ref", ref, "entries", len(tree.Entries))
	}
	out := make([]string, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() == "blob" {
			out = append(out, e.GetPath())
		}
	}
	return out, nil
}

func (h *Host) GetFile(ctx context.Context, path, ref string) (*hosting.File, error) {
	fc, _, resp, err := h.client.Repositories.GetContents(ctx, h.owner, h.repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classify(err, resp, mserr.CodeHostingFileNotFound, "getting file", mserr.FieldPath(path), mserr.FieldBranch(ref))
	}
	if fc == nil {
		return nil, mserr.New(mserr.CodeHostingFileNotFound, "path is a directory: "+path, mserr.FieldPath(path))
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "decoding file", mserr.FieldPath(path))
	}
	return &hosting.File{Path: path, Content: content, Revision: fc.GetSHA()}, nil
}

// PutFile uses the contents API, which rejects a stale blob sha with 409.
func (h *Host) PutFile(ctx context.Context, req hosting.PutFileRequest) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(req.Message),
		Content: []byte(req.Content),
		Branch:  gh.Ptr(req.Branch),
	}
	if req.ExpectedRevision != "" {
		opts.SHA = gh.Ptr(req.ExpectedRevision)
	}

	res, resp, err := h.client.Repositories.UpdateFile(ctx, h.owner, h.repo, req.Path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return "", mserr.Wrap(err, mserr.CodeHostingFileConflict,
				fmt.Sprintf("%s changed on %s since it was read", req.Path, req.Branch),
				mserr.FieldPath(req.Path), mserr.FieldBranch(req.Branch))
		}
		return "", classify(err, resp, mserr.CodeHostingUpstreamFailure, "writing file", mserr.FieldPath(req.Path), mserr.FieldBranch(req.Branch))
	}
	if res == nil || res.Content == nil {
		return "", nil
	}
	return res.Content.GetSHA(), nil
}

func (h *Host) CreateDraftPR(ctx context.Context, pr hosting.NewPullRequest) (*hosting.PullRequest, error) {
	created, resp, err := h.client.PullRequests.Create(ctx, h.owner, h.repo, &gh.NewPullRequest{
		Title: gh.Ptr(pr.Title),
		Head:  gh.Ptr(pr.Head),
		Base:  gh.Ptr(pr.Base),
		Body:  gh.Ptr(pr.Body),
		Draft: gh.Ptr(true),
	})
	if err != nil {
		return nil, classify(err, resp, mserr.CodeHostingUpstreamFailure, "creating pull request", mserr.FieldBranch(pr.Head))
	}
	return convert(created), nil
}

func (h *Host) EditPR(ctx context.Context, number int, edit hosting.EditPullRequest) error {
	_, resp, err := h.client.PullRequests.Edit(ctx, h.owner, h.repo, number, &gh.PullRequest{
		Title: edit.Title,
		Body:  edit.Body,
	})
	if err != nil {
		return classify(err, resp, mserr.CodeHostingPRNotFound, "editing pull request", mserr.FieldPR(number))
	}
	return nil
}

func (h *Host) GetPR(ctx context.Context, number int) (*hosting.PullRequest, error) {
	pr, resp, err := h.client.PullRequests.Get(ctx, h.owner, h.repo, number)
	if err != nil {
		return nil, classify(err, resp, mserr.CodeHostingPRNotFound, "getting pull request", mserr.FieldPR(number))
	}
	return convert(pr), nil
}

const markReadyMutation = `mutation($id: ID!) {
  markPullRequestReadyForReview(input: {pullRequestId: $id}) {
    pullRequest { isDraft }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// MarkReady has no REST equivalent, so it posts the GraphQL mutation with
// the pull request's node id.
func (h *Host) MarkReady(ctx context.Context, number int) error {
	pr, resp, err := h.client.PullRequests.Get(ctx, h.owner, h.repo, number)
	if err != nil {
		if isRateLimit(err) {
			return classify(err, resp, mserr.CodeHostingPRReadyFailure, "getting pull request", mserr.FieldPR(number))
		}
		return mserr.Wrap(err, mserr.CodeHostingPRReadyFailure, "getting pull request", mserr.FieldPR(number))
	}
	if !pr.GetDraft() {
		slog.Info("pull request already ready for review", "pr_number", number)
		return nil
	}

	req, err := h.client.NewRequest(http.MethodPost, h.graphqlURL, graphqlRequest{
		Query:     markReadyMutation,
		Variables: map[string]any{"id": pr.GetNodeID()},
	})
	if err != nil {
		return mserr.Wrap(err, mserr.CodeHostingPRReadyFailure, "building graphql request")
	}

	var out graphqlResponse
	resp, err = h.client.Do(ctx, req, &out)
	if err != nil {
		if isRateLimit(err) {
			return classify(err, resp, mserr.CodeHostingPRReadyFailure, "marking pull request ready", mserr.FieldPR(number))
		}
		return mserr.Wrap(err, mserr.CodeHostingPRReadyFailure, "marking pull request ready", mserr.FieldPR(number))
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return mserr.New(mserr.CodeHostingPRReadyFailure,
			"marking pull request ready: "+strings.Join(msgs, "; "), mserr.FieldPR(number))
	}
	return nil
}

func convert(pr *gh.PullRequest) *hosting.PullRequest {
	return &hosting.PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Title:  pr.GetTitle(),
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
		Draft:  pr.GetDraft(),
	}
}

func isRateLimit(err error) bool {
	var rl *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	return errors.As(err, &rl) || errors.As(err, &abuse)
}

// classify maps a go-github error to a coded error. notFound is used for 404
// responses; throttling always becomes hosting.upstream.rate_limited.
func classify(err error, resp *gh.Response, notFound mserr.Code, msg string, fields ...mserr.Attr) error {
	switch {
	case isRateLimit(err):
		return mserr.Wrap(err, mserr.CodeHostingRateLimited, msg, fields...)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		return mserr.Wrap(err, notFound, msg, fields...)
	default:
		return mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, msg, fields...)
	}
}
