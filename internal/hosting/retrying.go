// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package hosting

import (
	"context"

	"github.com/modelsmith-dev/modelsmith/internal/retry"
)

// Retrying wraps a Host so rate-limited calls back off and retry under a
// bounded policy. A throttled request was rejected before it took effect, so
// every call is safe to repeat. Conflicts and other failures pass through.
type Retrying struct {
	next   Host
	policy retry.Policy
}

var _ Host = (*Retrying)(nil)

func WithRetry(h Host, p retry.Policy) *Retrying {
	return &Retrying{next: h, policy: p}
}

func (r *Retrying) DefaultBranch(ctx context.Context) (out string, err error) {
	err = retry.Do(ctx, r.policy, "hosting.default_branch", func(ctx context.Context) error {
		out, err = r.next.DefaultBranch(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) CreateBranch(ctx context.Context, from, name string) error {
	return retry.Do(ctx, r.policy, "hosting.create_branch", func(ctx context.Context) error {
		return r.next.CreateBranch(ctx, from, name)
	})
}

func (r *Retrying) ListFiles(ctx context.Context, ref string) (out []string, err error) {
	err = retry.Do(ctx, r.policy, "hosting.list_files", func(ctx context.Context) error {
		out, err = r.next.ListFiles(ctx, ref)
		return err
	})
	return out, err
}

func (r *Retrying) GetFile(ctx context.Context, path, ref string) (out *File, err error) {
	err = retry.Do(ctx, r.policy, "hosting.get_file", func(ctx context.Context) error {
		out, err = r.next.GetFile(ctx, path, ref)
		return err
	})
	return out, err
}

func (r *Retrying) PutFile(ctx context.Context, req PutFileRequest) (out string, err error) {
	err = retry.Do(ctx, r.policy, "hosting.put_file", func(ctx context.Context) error {
		out, err = r.next.PutFile(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) CreateDraftPR(ctx context.Context, pr NewPullRequest) (out *PullRequest, err error) {
	err = retry.Do(ctx, r.policy, "hosting.create_pr", func(ctx context.Context) error {
		out, err = r.next.CreateDraftPR(ctx, pr)
		return err
	})
	return out, err
}

func (r *Retrying) EditPR(ctx context.Context, number int, edit EditPullRequest) error {
	return retry.Do(ctx, r.policy, "hosting.edit_pr", func(ctx context.Context) error {
		return r.next.EditPR(ctx, number, edit)
	})
}

func (r *Retrying) MarkReady(ctx context.Context, number int) error {
	return retry.Do(ctx, r.policy, "hosting.mark_ready", func(ctx context.Context) error {
		return r.next.MarkReady(ctx, number)
	})
}

func (r *Retrying) GetPR(ctx context.Context, number int) (out *PullRequest, err error) {
	err = retry.Do(ctx, r.policy, "hosting.get_pr", func(ctx context.Context) error {
		out, err = r.next.GetPR(ctx, number)
		return err
	})
	return out, err
}
