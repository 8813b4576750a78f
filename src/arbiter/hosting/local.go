package hosting

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalForge implements Forge over a directory of bare repositories laid
// out as <root>/<owner>/<repo>.git, for local development and tests.
// Instead of opening pull requests it merges the head branch directly into
// the base branch.
type LocalForge struct {
	root string
	log  *slog.Logger
}

func NewLocalForge(root string, log *slog.Logger) (*LocalForge, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving forge root: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocalForge{root: abs, log: log}, nil
}

func (f *LocalForge) repoDir(owner, repo string) string {
	return filepath.Join(f.root, owner, repo+".git")
}

func (f *LocalForge) ListRepositories(_ context.Context, owner string) ([]Repository, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, owner))
	if err != nil {
		return nil, fmt.Errorf("listing repositories of %s: %w", owner, err)
	}
	var repos []Repository
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".git") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".git")
		repos = append(repos, Repository{Name: name, FullName: owner + "/" + name})
	}
	return repos, nil
}

func (f *LocalForge) Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	out, err := f.git(ctx, f.repoDir(owner, repo), "ls-tree", "-r", "-t", ref)
	if err != nil {
		return nil, fmt.Errorf("fetching tree of %s/%s: %w", owner, repo, err)
	}
	var entries []TreeEntry
	for _, line := range strings.Split(out, "\n") {
		// "<mode> <type> <object>\t<path>"
		meta, p, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			continue
		}
		entries = append(entries, TreeEntry{Path: p, Type: EntryType(fields[1])})
	}
	return entries, nil
}

func (f *LocalForge) Commits(ctx context.Context, owner, repo, ref, p string) ([]Commit, error) {
	out, err := f.git(ctx, f.repoDir(owner, repo), "log", "--format=%H %cI", ref, "--", p)
	if err != nil {
		return nil, fmt.Errorf("fetching commits of %s/%s for %s: %w", owner, repo, p, err)
	}
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		sha, date, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339, date)
		if err != nil {
			return nil, fmt.Errorf("parsing commit date %q: %w", date, err)
		}
		commits = append(commits, Commit{SHA: sha, Date: t})
	}
	sort.SliceStable(commits, func(i, j int) bool { return commits[i].Date.After(commits[j].Date) })
	return commits, nil
}

func (f *LocalForge) CreatePullRequest(ctx context.Context, owner, repo string, pr PullRequest) (string, error) {
	f.log.Info("Merging branch into base", "repo", owner+"/"+repo, "branch", pr.Head, "base", pr.Base, "title", pr.Title)

	tmp, err := os.MkdirTemp("", "arbiter-merge-")
	if err != nil {
		return "", fmt.Errorf("creating merge dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if _, err := f.git(ctx, "", "clone", "--quiet", f.repoDir(owner, repo), tmp); err != nil {
		return "", fmt.Errorf("cloning %s/%s: %w", owner, repo, err)
	}
	if _, err := f.git(ctx, tmp, "checkout", pr.Base); err != nil {
		return "", fmt.Errorf("checking out %s: %w", pr.Base, err)
	}
	// Merge the branch with a merge commit
	if _, err := f.git(ctx, tmp, "merge", "--no-ff", "-m", pr.Title, "origin/"+pr.Head); err != nil {
		return "", fmt.Errorf("merging %s into %s: %w", pr.Head, pr.Base, err)
	}
	if _, err := f.git(ctx, tmp, "push", "origin", pr.Base); err != nil {
		return "", fmt.Errorf("pushing %s: %w", pr.Base, err)
	}
	return fmt.Sprintf("local://%s/%s/merged/%s", owner, repo, pr.Head), nil
}

func (f *LocalForge) CloneURL(owner, repo string) string {
	return f.repoDir(owner, repo)
}

func (f *LocalForge) git(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=recipe-arbiter", "GIT_AUTHOR_EMAIL=arbiter@localhost",
		"GIT_COMMITTER_NAME=recipe-arbiter", "GIT_COMMITTER_EMAIL=arbiter@localhost")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	f.log.Debug("git", "args", strings.Join(args, " "))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}
