// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package local hosts sessions on a git repository on disk or in memory.
//
// Commits are written straight into the object store, so the repository may
// be bare and its worktree is never touched. Pull requests live in an
// in-process ledger; the backend is meant for development and tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

var _ hosting.Host = (*Host)(nil)

// Host implements hosting.Host over a go-git repository.
type Host struct {
	repo          *git.Repository
	defaultBranch string
	baseURL       string
	author        object.Signature
	now           func() time.Time

	// mu serializes ref updates so the revision check and the branch move
	// happen together.
	mu  sync.Mutex
	prs []*hosting.PullRequest
}

// Option configures a Host.
type Option func(*Host)

// WithDefaultBranch overrides the branch otherwise taken from HEAD.
func WithDefaultBranch(name string) Option {
	return func(h *Host) { h.defaultBranch = name }
}

// WithBaseURL sets the prefix of pull-request URLs.
func WithBaseURL(u string) Option {
	return func(h *Host) { h.baseURL = strings.TrimSuffix(u, "/") }
}

// WithAuthor sets the commit author and committer identity.
func WithAuthor(name, email string) Option {
	return func(h *Host) { h.author = object.Signature{Name: name, Email: email} }
}

// WithClock replaces time.Now for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// Open opens the repository at dir, bare or not.
func Open(dir string, opts ...Option) (*Host, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingConfigInvalid, "opening local repository", mserr.Field("dir", dir))
	}
	return New(repo, append([]Option{WithBaseURL("file://" + dir)}, opts...)...), nil
}

func New(repo *git.Repository, opts ...Option) *Host {
	h := &Host{
		repo:    repo,
		baseURL: "local://repository",
		author:  object.Signature{Name: "modelsmith", Email: "modelsmith@localhost"},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) DefaultBranch(_ context.Context) (string, error) {
	if h.defaultBranch != "" {
		return h.defaultBranch, nil
	}
	head, err := h.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", mserr.Wrap(err, mserr.CodeHostingBranchNotFound, "reading HEAD")
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short(), nil
	}
	return "", mserr.New(mserr.CodeHostingBranchNotFound, "HEAD is detached; configure a default branch")
}

func (h *Host) CreateBranch(_ context.Context, from, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	base, err := h.branch(from)
	if err != nil {
		return err
	}
	ref := plumbing.NewBranchReferenceName(name)
	if _, err := h.repo.Reference(ref, false); err == nil {
		return mserr.New(mserr.CodeHostingBranchConflict, "branch already exists: "+name, mserr.FieldBranch(name))
	}
	if err := h.repo.Storer.SetReference(plumbing.NewHashReference(ref, base.Hash())); err != nil {
		return mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "creating branch", mserr.FieldBranch(name))
	}
	return nil
}

func (h *Host) ListFiles(_ context.Context, ref string) ([]string, error) {
	tree, err := h.tree(ref)
	if err != nil {
		return nil, err
	}
	var out []string
	err = tree.Files().ForEach(func(f *object.File) error {
		out = append(out, f.Name)
		return nil
	})
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "walking tree", mserr.FieldBranch(ref))
	}
	slices.Sort(out)
	return out, nil
}

func (h *Host) GetFile(_ context.Context, p, ref string) (*hosting.File, error) {
	tree, err := h.tree(ref)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, mserr.New(mserr.CodeHostingFileNotFound, "file not found: "+p, mserr.FieldPath(p), mserr.FieldBranch(ref))
	}
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading file", mserr.FieldPath(p))
	}
	content, err := f.Contents()
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading blob", mserr.FieldPath(p))
	}
	return &hosting.File{Path: p, Content: content, Revision: f.Hash.String()}, nil
}

// PutFile writes a blob, rebuilds the trees along its path and moves the
// branch to a new commit. The blob hash doubles as the revision token.
func (h *Host) PutFile(_ context.Context, req hosting.PutFileRequest) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref, err := h.branch(req.Branch)
	if err != nil {
		return "", err
	}
	parent, err := h.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading branch tip", mserr.FieldBranch(req.Branch))
	}
	tree, err := parent.Tree()
	if err != nil {
		return "", mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading tree", mserr.FieldBranch(req.Branch))
	}

	current := ""
	if f, err := tree.File(req.Path); err == nil {
		current = f.Hash.String()
	}
	if current != req.ExpectedRevision {
		return "", mserr.New(mserr.CodeHostingFileConflict,
			fmt.Sprintf("%s changed on %s since it was read", req.Path, req.Branch),
			mserr.FieldPath(req.Path), mserr.FieldBranch(req.Branch),
			mserr.Field("expected_revision", req.ExpectedRevision),
			mserr.Field("actual_revision", current),
		)
	}

	blob, err := h.writeBlob(req.Content)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(path.Clean("/"+req.Path), "/"), "/")
	rootHash, err := h.writeTree(parent.TreeHash, parts, blob)
	if err != nil {
		return "", err
	}

	sig := h.author
	sig.When = h.now()
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      req.Message,
		TreeHash:     rootHash,
		ParentHashes: []plumbing.Hash{parent.Hash},
	}
	commitHash, err := h.store(commit)
	if err != nil {
		return "", err
	}

	next := plumbing.NewHashReference(ref.Name(), commitHash)
	if err := h.repo.Storer.CheckAndSetReference(next, ref); err != nil {
		return "", mserr.Wrap(err, mserr.CodeHostingFileConflict, "branch moved during write", mserr.FieldBranch(req.Branch))
	}
	return blob.String(), nil
}

func (h *Host) CreateDraftPR(_ context.Context, pr hosting.NewPullRequest) (*hosting.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range []string{pr.Head, pr.Base} {
		if _, err := h.branch(b); err != nil {
			return nil, err
		}
	}
	for _, existing := range h.prs {
		if existing.Head == pr.Head && existing.Base == pr.Base {
			return nil, mserr.New(mserr.CodeHostingBranchConflict, "a pull request already exists for "+pr.Head, mserr.FieldBranch(pr.Head))
		}
	}

	n := len(h.prs) + 1
	created := &hosting.PullRequest{
		Number: n,
		URL:    fmt.Sprintf("%s/pull/%d", h.baseURL, n),
		Title:  pr.Title,
		Head:   pr.Head,
		Base:   pr.Base,
		Draft:  true,
	}
	h.prs = append(h.prs, created)
	c := *created
	return &c, nil
}

func (h *Host) EditPR(_ context.Context, number int, edit hosting.EditPullRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pr, err := h.pr(number)
	if err != nil {
		return err
	}
	if edit.Title != nil {
		pr.Title = *edit.Title
	}
	return nil
}

func (h *Host) MarkReady(_ context.Context, number int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pr, err := h.pr(number)
	if err != nil {
		// A new error: wrapping would keep the inner not-found code.
		return mserr.New(mserr.CodeHostingPRReadyFailure, "marking pull request ready: "+err.Error(), mserr.FieldPR(number))
	}
	pr.Draft = false
	return nil
}

func (h *Host) GetPR(_ context.Context, number int) (*hosting.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pr, err := h.pr(number)
	if err != nil {
		return nil, err
	}
	c := *pr
	return &c, nil
}

func (h *Host) pr(number int) (*hosting.PullRequest, error) {
	if number < 1 || number > len(h.prs) {
		return nil, mserr.New(mserr.CodeHostingPRNotFound, fmt.Sprintf("pull request #%d not found", number), mserr.FieldPR(number))
	}
	return h.prs[number-1], nil
}

func (h *Host) branch(name string) (*plumbing.Reference, error) {
	ref, err := h.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, mserr.New(mserr.CodeHostingBranchNotFound, "branch not found: "+name, mserr.FieldBranch(name))
	}
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "resolving branch", mserr.FieldBranch(name))
	}
	return ref, nil
}

func (h *Host) tree(branch string) (*object.Tree, error) {
	ref, err := h.branch(branch)
	if err != nil {
		return nil, err
	}
	commit, err := h.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading commit", mserr.FieldBranch(branch))
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading tree", mserr.FieldBranch(branch))
	}
	return tree, nil
}

func (h *Host) writeBlob(content string) (plumbing.Hash, error) {
	obj := h.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "writing blob")
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "writing blob")
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "writing blob")
	}
	hash, err := h.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "storing blob")
	}
	return hash, nil
}

// writeTree returns the hash of the tree at treeHash with parts replaced by
// blob, creating intermediate directories as needed. A zero treeHash is an
// empty tree.
func (h *Host) writeTree(treeHash plumbing.Hash, parts []string, blob plumbing.Hash) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	if !treeHash.IsZero() {
		t, err := object.GetTree(h.repo.Storer, treeHash)
		if err != nil {
			return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "reading tree")
		}
		entries = slices.Clone(t.Entries)
	}

	name := parts[0]
	entry := object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blob}
	if len(parts) > 1 {
		sub := plumbing.ZeroHash
		for _, e := range entries {
			if e.Name == name && e.Mode == filemode.Dir {
				sub = e.Hash
			}
		}
		hash, err := h.writeTree(sub, parts[1:], blob)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entry = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash}
	}

	entries = slices.DeleteFunc(entries, func(e object.TreeEntry) bool { return e.Name == name })
	entries = append(entries, entry)
	slices.SortFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(sortKey(a), sortKey(b))
	})

	return h.store(&object.Tree{Entries: entries})
}

// sortKey orders tree entries the way git does: directories compare as if
// their name ended in a slash.
func sortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (h *Host) store(v encoder) (plumbing.Hash, error) {
	obj := h.repo.Storer.NewEncodedObject()
	if err := v.Encode(obj); err != nil {
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "encoding object")
	}
	hash, err := h.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, mserr.Wrap(err, mserr.CodeHostingUpstreamFailure, "storing object")
	}
	return hash, nil
}
