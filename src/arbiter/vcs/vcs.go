// Package vcs drives the local clones: branching, staging, committing,
// merging the mainline back in and publishing the result.
package vcs

import (
	"context"
	"fmt"
)

// Repository is one local clone.
type Repository interface {
	Dir() string
	Checkout(ctx context.Context, branch string) error
	// CreateBranch creates name at the tip of from and checks it out.
	CreateBranch(ctx context.Context, name, from string) error
	// Untracked lists untracked, non-ignored paths relative to Dir.
	Untracked(ctx context.Context) ([]string, error)
	Add(ctx context.Context, paths ...string) error
	// CommitAll commits every tracked modification plus what was added.
	CommitAll(ctx context.Context, msg string) error
	// Merge merges ref into the current branch. A merge that cannot be
	// completed leaves the tree as before and returns apperr.ErrMergeConflict.
	Merge(ctx context.Context, ref string) error
	Push(ctx context.Context, remote, branch string) error
	// Discard throws away uncommitted and untracked changes and checks out
	// branch.
	Discard(ctx context.Context, branch string) error
}

// Backend clones and opens repositories.
type Backend interface {
	Clone(ctx context.Context, url, dir string) error
	Open(dir string) (Repository, error)
}

// Identity is the author recorded on commits.
type Identity struct {
	Name  string
	Email string
}

var DefaultIdentity = Identity{Name: "recipe-arbiter", Email: "recipe-arbiter@localhost"}

// New returns the backend registered under kind: "cli" (default) or "gogit".
func New(kind string, opts Options) (Backend, error) {
	switch kind {
	case "", "cli":
		return NewCLI(opts), nil
	case "gogit":
		return NewGoGit(opts), nil
	default:
		return nil, fmt.Errorf("unknown vcs backend %q", kind)
	}
}
