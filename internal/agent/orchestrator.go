// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package agent runs the draft pull request session state machine: one
// call per analyst turn, one branch and one draft PR per session, and the
// ready-for-review transition on confirmation.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modelsmith-dev/modelsmith/internal/generate"
	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	"github.com/modelsmith-dev/modelsmith/internal/resolver"
	"github.com/modelsmith-dev/modelsmith/internal/store"
	"github.com/modelsmith-dev/modelsmith/internal/updater"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

// DefaultBranchPrefix prefixes session branch names.
const DefaultBranchPrefix = "modelsmith/"

// Applier performs one file edit. *updater.Updater implements it.
type Applier interface {
	Update(ctx context.Context, e updater.Edit) (*updater.Result, error)
}

// Turn is one analyst message.
type Turn struct {
	// SessionID is generated when empty.
	SessionID string
	FileNames []string
	Prompt    string
}

// Reply is the outcome of a turn.
type Reply struct {
	Message   string
	SessionID string
	Branch    string
	PRNumber  int
	PRURL     string
	// Updated lists the paths committed by this turn.
	Updated []string
	// Unchanged lists resolved paths whose content came back identical.
	Unchanged []string
	// LintWarnings maps paths committed without a successful lint-fix to
	// the linter's message.
	LintWarnings map[string]string
	// Finalized is set when the turn marked the PR ready and ended the session.
	Finalized bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Host     hosting.Host
	Store    store.SessionStore
	Resolver *resolver.Resolver
	Applier  Applier
	Titler   generate.Titler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithBranchPrefix(prefix string) Option {
	return func(o *Orchestrator) { o.branchPrefix = prefix }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator handles turns. It does not serialize turns for one session;
// callers queue them, for example through a LanePool.
type Orchestrator struct {
	host     hosting.Host
	store    store.SessionStore
	resolver *resolver.Resolver
	applier  Applier
	titler   generate.Titler

	branchPrefix string
	newID        func() string
	now          func() time.Time
}

// New validates deps and builds an Orchestrator. A nil Resolver uses the
// resolver defaults; a nil Titler falls back to the truncated prompt.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Host == nil || deps.Store == nil || deps.Applier == nil {
		return nil, mserr.New(mserr.CodeServerConfigInvalid, "orchestrator requires a host, a session store and an applier")
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New()
	}

	o := &Orchestrator{
		host:         deps.Host,
		store:        deps.Store,
		resolver:     deps.Resolver,
		applier:      deps.Applier,
		titler:       deps.Titler,
		branchPrefix: DefaultBranchPrefix,
		newID:        uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// HandleTurn advances the session named by t.SessionID by one turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, t Turn) (*Reply, error) {
	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		return nil, mserr.New(mserr.CodeAgentTurnInvalidInput, "analyst_prompt is required")
	}

	id := strings.TrimSpace(t.SessionID)
	if id == "" {
		id = o.newID()
	}

	sess, err := o.store.Get(ctx, id)
	switch {
	case err == nil:
	case mserr.IsNotFound(err):
		sess = nil
	default:
		return nil, mserr.With(err, mserr.FieldSessionID(id))
	}

	if IsConfirmation(prompt) {
		if sess == nil {
			return nil, mserr.New(mserr.CodeAgentSessionNotFound,
				"no active session "+id+" to confirm", mserr.FieldSessionID(id))
		}
		return o.finalize(ctx, sess)
	}
	return o.edit(ctx, id, sess, prompt, t.FileNames)
}

// target is a resolved reference.
type target struct {
	path string
	kind types.Kind
}

func (o *Orchestrator) edit(ctx context.Context, id string, sess *store.Session, prompt string, fileNames []string) (*Reply, error) {
	log := slog.With("session_id", id)

	refs := References(fileNames, prompt)
	if len(refs) == 0 {
		return nil, mserr.New(mserr.CodeAgentTurnNoTargetFiles,
			"no file references found; name the files to change or pass file_names", mserr.FieldSessionID(id))
	}
	for _, ref := range refs {
		if _, err := types.KindFromPath(ref); err != nil {
			return nil, mserr.With(err, mserr.FieldSessionID(id))
		}
	}

	// A new branch is identical to the default branch, so resolution can
	// run before anything is created.
	base, readRef := "", ""
	if sess != nil {
		base, readRef = sess.BaseBranch, sess.Branch
	} else {
		var err error
		if base, err = o.host.DefaultBranch(ctx); err != nil {
			return nil, mserr.With(err, mserr.FieldSessionID(id))
		}
		readRef = base
	}

	targets, err := o.resolveAll(ctx, readRef, refs)
	if err != nil {
		return nil, mserr.With(err, mserr.FieldSessionID(id))
	}

	if sess == nil {
		if sess, err = o.startSession(ctx, id, base, prompt); err != nil {
			return nil, err
		}
		log.Info("session started", "branch", sess.Branch, "base", base)
	}

	reply := &Reply{SessionID: id, Branch: sess.Branch}
	var applyErr error
	for _, tgt := range targets {
		res, err := o.applier.Update(ctx, updater.Edit{
			Path:        tgt.path,
			Branch:      sess.Branch,
			Instruction: prompt,
			Kind:        tgt.kind,
		})
		if err != nil {
			applyErr = mserr.With(err, mserr.FieldSessionID(id), mserr.Field("committed", slices.Clone(reply.Updated)))
			break
		}
		if res.Unchanged {
			reply.Unchanged = append(reply.Unchanged, tgt.path)
			continue
		}
		reply.Updated = append(reply.Updated, tgt.path)
		if res.LintWarning != "" {
			if reply.LintWarnings == nil {
				reply.LintWarnings = make(map[string]string)
			}
			reply.LintWarnings[tgt.path] = res.LintWarning
		}
	}

	if len(reply.Updated) > 0 && !sess.Committed {
		sess.Committed = true
		sess.UpdatedAt = o.now().UTC()
		if err := o.store.Put(ctx, sess); err != nil {
			err = mserr.With(err, mserr.FieldSessionID(id))
			if applyErr != nil {
				log.Error("recording commit after partial turn", "error", err)
				return nil, applyErr
			}
			return nil, err
		}
	}

	// A PR that failed to open on an earlier turn is retried here, even when
	// this turn changed nothing.
	opened := false
	if !sess.HasPR() && sess.Committed {
		if err := o.openPR(ctx, sess); err != nil {
			if applyErr != nil {
				log.Error("opening draft PR after partial turn", "error", err)
				return nil, applyErr
			}
			return nil, err
		}
		opened = true
		log.Info("draft PR opened", "pr_number", sess.PRNumber, "url", sess.PRURL)
	}

	if applyErr != nil {
		log.Warn("turn stopped after apply failure", "committed", reply.Updated, "error", applyErr)
		return nil, applyErr
	}

	reply.PRNumber, reply.PRURL = sess.PRNumber, sess.PRURL
	reply.Message = replyMessage(reply, opened, sess.HasPR())
	return reply, nil
}

func (o *Orchestrator) resolveAll(ctx context.Context, ref string, refs []string) ([]target, error) {
	listing, err := o.host.ListFiles(ctx, ref)
	if err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		p, err := o.resolver.Resolve(r, listing)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		kind, _ := types.KindFromPath(p)
		targets = append(targets, target{path: p, kind: kind})
	}
	return targets, nil
}

// startSession creates the branch and records the session before any edit,
// so a failed turn is retried on the same branch.
func (o *Orchestrator) startSession(ctx context.Context, id, base, prompt string) (*store.Session, error) {
	branch := o.branchPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if err := o.host.CreateBranch(ctx, base, branch); err != nil {
		return nil, mserr.With(err, mserr.FieldSessionID(id), mserr.FieldBranch(branch))
	}

	now := o.now().UTC()
	sess := &store.Session{
		ID:             id,
		Branch:         branch,
		BaseBranch:     base,
		OriginalPrompt: prompt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.Put(ctx, sess); err != nil {
		return nil, mserr.With(err, mserr.FieldSessionID(id))
	}
	return sess, nil
}

func (o *Orchestrator) openPR(ctx context.Context, sess *store.Session) error {
	base := sess.BaseBranch
	if base == "" {
		var err error
		if base, err = o.host.DefaultBranch(ctx); err != nil {
			return mserr.With(err, mserr.FieldSessionID(sess.ID))
		}
	}

	pr, err := o.host.CreateDraftPR(ctx, hosting.NewPullRequest{
		Head:  sess.Branch,
		Base:  base,
		Title: InitialTitle(sess.OriginalPrompt),
		Body:  PRBody(sess.OriginalPrompt, sess.ID),
	})
	if err != nil {
		return mserr.With(err, mserr.FieldSessionID(sess.ID), mserr.FieldBranch(sess.Branch))
	}

	sess.PRNumber, sess.PRURL = pr.Number, pr.URL
	sess.UpdatedAt = o.now().UTC()
	if err := o.store.Put(ctx, sess); err != nil {
		return mserr.With(err, mserr.FieldSessionID(sess.ID), mserr.FieldPR(pr.Number))
	}
	return nil
}

// finalize titles the PR, marks it ready and ends the session. The session
// is kept when the host rejects either step so the analyst can confirm again.
func (o *Orchestrator) finalize(ctx context.Context, sess *store.Session) (*Reply, error) {
	if !sess.HasPR() {
		if !sess.Committed {
			return nil, mserr.New(mserr.CodeAgentSessionNoPR,
				"session "+sess.ID+" has no pull request yet; nothing to confirm", mserr.FieldSessionID(sess.ID))
		}
		if err := o.openPR(ctx, sess); err != nil {
			return nil, err
		}
		slog.Info("draft PR opened before finalizing", "session_id", sess.ID, "pr_number", sess.PRNumber)
	}
	fields := []mserr.Attr{mserr.FieldSessionID(sess.ID), mserr.FieldPR(sess.PRNumber)}

	title := o.finalTitle(ctx, sess)
	if err := o.host.EditPR(ctx, sess.PRNumber, hosting.EditPullRequest{Title: &title}); err != nil {
		return nil, mserr.With(err, fields...)
	}
	if err := o.host.MarkReady(ctx, sess.PRNumber); err != nil {
		return nil, mserr.With(err, fields...)
	}
	if err := o.store.Remove(ctx, sess.ID); err != nil {
		return nil, mserr.With(err, fields...)
	}

	slog.Info("session finalized", "session_id", sess.ID, "pr_number", sess.PRNumber, "title", title)
	return &Reply{
		Message:   fmt.Sprintf("PR #%d is ready for review: %s", sess.PRNumber, sess.PRURL),
		SessionID: sess.ID,
		Branch:    sess.Branch,
		PRNumber:  sess.PRNumber,
		PRURL:     sess.PRURL,
		Finalized: true,
	}, nil
}

func (o *Orchestrator) finalTitle(ctx context.Context, sess *store.Session) string {
	fallback := truncateRunes(singleLine(sess.OriginalPrompt), initialTitleRunes)
	if o.titler == nil {
		return fallback
	}
	title, err := o.titler.Title(ctx, sess.OriginalPrompt)
	if err != nil || strings.TrimSpace(title) == "" {
		slog.Warn("title generation failed, using prompt", "session_id", sess.ID, "error", err)
		return fallback
	}
	return title
}

func replyMessage(r *Reply, opened, hasPR bool) string {
	var b strings.Builder
	switch {
	case opened:
		fmt.Fprintf(&b, "Draft PR opened: %s (session_id=%s)", r.PRURL, r.SessionID)
	case hasPR:
		fmt.Fprintf(&b, "Draft PR updated: %s (session_id=%s)", r.PRURL, r.SessionID)
	default:
		fmt.Fprintf(&b, "No changes committed on %s (session_id=%s)", r.Branch, r.SessionID)
	}
	if len(r.Updated) > 0 {
		b.WriteString("\nUpdated: " + strings.Join(r.Updated, ", "))
	}
	if len(r.Unchanged) > 0 {
		b.WriteString("\nUnchanged: " + strings.Join(r.Unchanged, ", "))
	}
	if len(r.LintWarnings) > 0 {
		paths := make([]string, 0, len(r.LintWarnings))
		for p := range r.LintWarnings {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		b.WriteString("\nCommitted without lint-fix: " + strings.Join(paths, ", "))
	}
	if opened || hasPR {
		b.WriteString("\n" + continueHint)
	}
	return b.String()
}

const continueHint = `Reply with more changes, or "confirm" to mark the PR ready for review.`
