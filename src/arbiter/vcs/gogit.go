package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
)

// GoGit drives repositories in-process with go-git. go-git has no
// three-way merge: Merge succeeds only when the branch is up to date with,
// or can fast-forward to, the merged ref.
type GoGit struct {
	opts Options
}

func NewGoGit(opts Options) *GoGit {
	return &GoGit{opts: opts.withDefaults()}
}

func (g *GoGit) Clone(ctx context.Context, url, dir string) error {
	creds, err := g.opts.Credentials.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}
	g.opts.Logger.Debug("Cloning with go-git", "url", url, "dir", dir)
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Auth: creds.GitAuth(),
	}); err != nil {
		return fmt.Errorf("cloning %s: %w", url, err)
	}
	return nil
}

func (g *GoGit) Open(dir string) (Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	return &goGitRepo{g: g, dir: dir, repo: repo, wt: wt}, nil
}

type goGitRepo struct {
	g    *GoGit
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func (r *goGitRepo) Dir() string { return r.dir }

func (r *goGitRepo) Checkout(_ context.Context, branch string) error {
	if err := r.wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return nil
}

func (r *goGitRepo) CreateBranch(_ context.Context, name, from string) error {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(from), true)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", from, err)
	}
	if err := r.wt.Checkout(&git.CheckoutOptions{
		Hash:   ref.Hash(),
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

func (r *goGitRepo) Untracked(context.Context) ([]string, error) {
	st, err := r.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var paths []string
	for p, fs := range st {
		if fs.Worktree == git.Untracked {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *goGitRepo) Add(_ context.Context, paths ...string) error {
	for _, p := range paths {
		if _, err := r.wt.Add(p); err != nil {
			return fmt.Errorf("staging %s: %w", p, err)
		}
	}
	return nil
}

func (r *goGitRepo) CommitAll(_ context.Context, msg string) error {
	id := r.g.opts.Identity
	if _, err := r.wt.Commit(msg, &git.CommitOptions{
		All:    true,
		Author: &object.Signature{Name: id.Name, Email: id.Email, When: time.Now()},
	}); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (r *goGitRepo) Merge(_ context.Context, ref string) error {
	op := "merge " + ref
	target, err := r.repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	head, err := r.repo.Head()
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}

	targetCommit, err := r.repo.CommitObject(target.Hash())
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	upToDate, err := targetCommit.IsAncestor(headCommit)
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	if upToDate {
		return nil
	}

	err = r.repo.Merge(*target, git.MergeOptions{Strategy: git.FastForwardMerge})
	if errors.Is(err, git.ErrFastForwardMergeNotPossible) {
		return apperr.New(apperr.Sync, op, fmt.Errorf("%w: histories have diverged", apperr.ErrMergeConflict))
	}
	if err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	// Merge only moves the branch; bring the worktree along.
	if err := r.wt.Reset(&git.ResetOptions{Commit: target.Hash(), Mode: git.HardReset}); err != nil {
		return apperr.New(apperr.Sync, op, err)
	}
	return nil
}

func (r *goGitRepo) Push(ctx context.Context, remote, branch string) error {
	creds, err := r.g.opts.Credentials.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}
	spec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       creds.GitAuth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing branch %s: %w", branch, err)
	}
	return nil
}

func (r *goGitRepo) Discard(_ context.Context, branch string) error {
	if err := r.wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting: %w", err)
	}
	if err := r.wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	if err := r.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	}); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return nil
}
