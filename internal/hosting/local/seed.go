// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package local

import (
	"slices"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// SeedBranch is the branch InitMemory commits to.
const SeedBranch = "main"

// InitMemory builds an in-memory repository whose main branch holds files
// in a single commit. It backs dry runs and tests.
func InitMemory(files map[string]string) (*git.Repository, error) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		return nil, err
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(SeedBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		if err := util.WriteFile(fs, p, []byte(files[p]), 0o644); err != nil {
			return nil, err
		}
		if _, err := wt.Add(p); err != nil {
			return nil, err
		}
	}

	sig := &object.Signature{Name: "seed", Email: "seed@localhost", When: time.Unix(0, 0).UTC()}
	if _, err := wt.Commit("initial commit", &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true}); err != nil {
		return nil, err
	}
	return repo, nil
}
