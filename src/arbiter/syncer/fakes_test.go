package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

type fakeForge struct {
	mu  sync.Mutex
	prs []string // "owner/repo <title> <head>-><base>"
	err error
}

func (f *fakeForge) ListRepositories(context.Context, string) ([]hosting.Repository, error) {
	return nil, nil
}

func (f *fakeForge) Tree(context.Context, string, string, string) ([]hosting.TreeEntry, error) {
	return nil, nil
}

func (f *fakeForge) Commits(context.Context, string, string, string, string) ([]hosting.Commit, error) {
	return nil, nil
}

func (f *fakeForge) CreatePullRequest(_ context.Context, owner, repo string, pr hosting.PullRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prs = append(f.prs, fmt.Sprintf("%s/%s %s %s->%s", owner, repo, pr.Title, pr.Head, pr.Base))
	return fmt.Sprintf("https://forge.test/%s/%s/pull/%d", owner, repo, len(f.prs)), nil
}

func (f *fakeForge) CloneURL(owner, repo string) string {
	return "fake://" + owner + "/" + repo
}

// fakeBackend clones fixture file maps and records every repository
// operation as "<clone dir base> <op> <args>".
type fakeBackend struct {
	repos     map[string]map[string]string
	conflicts map[string]bool // clone base names whose merges fail
	ops       []string
	clones    []string // URLs in clone order
}

func (b *fakeBackend) Clone(_ context.Context, url, dir string) error {
	b.clones = append(b.clones, url)
	files, ok := b.repos[strings.TrimPrefix(url, "fake://")]
	if !ok {
		return fmt.Errorf("repository not found: %s", url)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	for p, c := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(c), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBackend) Open(dir string) (vcs.Repository, error) {
	return &fakeRepo{dir: dir, b: b}, nil
}

func (b *fakeBackend) opsOf(clone string) []string {
	var out []string
	for _, op := range b.ops {
		if name, rest, _ := strings.Cut(op, " "); name == clone {
			out = append(out, rest)
		}
	}
	return out
}

type fakeRepo struct {
	dir string
	b   *fakeBackend
}

func (r *fakeRepo) record(op string, args ...string) {
	r.b.ops = append(r.b.ops, strings.TrimSpace(filepath.Base(r.dir)+" "+op+" "+strings.Join(args, " ")))
}

func (r *fakeRepo) Dir() string { return r.dir }

func (r *fakeRepo) Checkout(_ context.Context, branch string) error {
	r.record("checkout", branch)
	return nil
}

func (r *fakeRepo) CreateBranch(_ context.Context, name, from string) error {
	r.record("branch", name, from)
	return nil
}

func (r *fakeRepo) Untracked(context.Context) ([]string, error) {
	return []string{"new-file"}, nil
}

func (r *fakeRepo) Add(_ context.Context, paths ...string) error {
	r.record("add", paths...)
	return nil
}

func (r *fakeRepo) CommitAll(_ context.Context, msg string) error {
	r.record("commit", msg)
	return nil
}

func (r *fakeRepo) Merge(_ context.Context, ref string) error {
	r.record("merge", ref)
	if r.b.conflicts[filepath.Base(r.dir)] {
		return apperr.New(apperr.Sync, "merge "+ref, apperr.ErrMergeConflict)
	}
	return nil
}

func (r *fakeRepo) Push(_ context.Context, remote, branch string) error {
	r.record("push", remote, branch)
	return nil
}

func (r *fakeRepo) Discard(_ context.Context, branch string) error {
	r.record("discard", branch)
	return nil
}
