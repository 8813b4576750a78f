package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

// fakeForge serves repositories described as file maps. Commit history is
// keyed by "owner/repo:path".
type fakeForge struct {
	repos   map[string]map[string]string // "owner/repo" -> path -> content
	commits map[string][]time.Time
	calls   int
	treeErr error
}

func (f *fakeForge) ListRepositories(_ context.Context, owner string) ([]hosting.Repository, error) {
	f.calls++
	var out []hosting.Repository
	for full := range f.repos {
		o, name, _ := strings.Cut(full, "/")
		if o == owner {
			out = append(out, hosting.Repository{Name: name, FullName: full})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeForge) Tree(_ context.Context, owner, repo, _ string) ([]hosting.TreeEntry, error) {
	f.calls++
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	files, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, fmt.Errorf("no repo %s/%s", owner, repo)
	}
	dirs := map[string]bool{}
	var out []hosting.TreeEntry
	for p := range files {
		out = append(out, hosting.TreeEntry{Path: p, Type: hosting.Blob})
		for d := filepath.Dir(p); d != "."; d = filepath.Dir(d) {
			dirs[filepath.ToSlash(d)] = true
		}
	}
	for d := range dirs {
		out = append(out, hosting.TreeEntry{Path: d, Type: hosting.SubTree})
	}
	return out, nil
}

func (f *fakeForge) Commits(_ context.Context, owner, repo, _, p string) ([]hosting.Commit, error) {
	f.calls++
	var out []hosting.Commit
	for i, t := range f.commits[owner+"/"+repo+":"+p] {
		out = append(out, hosting.Commit{SHA: fmt.Sprint(i), Date: t})
	}
	return out, nil
}

func (f *fakeForge) CreatePullRequest(context.Context, string, string, hosting.PullRequest) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (f *fakeForge) CloneURL(owner, repo string) string {
	return "fake://" + owner + "/" + repo
}

// fakeBackend "clones" fake:// URLs by writing the forge's file map.
type fakeBackend struct {
	forge  *fakeForge
	clones int
}

func (b *fakeBackend) Clone(_ context.Context, url, dir string) error {
	b.clones++
	files, ok := b.forge.repos[strings.TrimPrefix(url, "fake://")]
	if !ok {
		return fmt.Errorf("no repo at %s", url)
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
	return nopRepo(dir), nil
}

type nopRepo string

func (r nopRepo) Dir() string                                      { return string(r) }
func (nopRepo) Checkout(context.Context, string) error             { return nil }
func (nopRepo) CreateBranch(context.Context, string, string) error { return nil }
func (nopRepo) Untracked(context.Context) ([]string, error)        { return nil, nil }
func (nopRepo) Add(context.Context, ...string) error               { return nil }
func (nopRepo) CommitAll(context.Context, string) error            { return nil }
func (nopRepo) Merge(context.Context, string) error                { return nil }
func (nopRepo) Push(context.Context, string, string) error         { return nil }
func (nopRepo) Discard(context.Context, string) error              { return nil }
