package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
)

// Options configures both backends.
type Options struct {
	Credentials credentials.Provider
	Identity    Identity
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Credentials == nil {
		o.Credentials = credentials.Static{}
	}
	if o.Identity.Name == "" {
		o.Identity = DefaultIdentity
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// CLI runs the git executable, one process per step.
type CLI struct {
	opts Options
}

func NewCLI(opts Options) *CLI {
	return &CLI{opts: opts.withDefaults()}
}

func (c *CLI) Clone(ctx context.Context, url, dir string) error {
	args, err := c.authArgs(ctx)
	if err != nil {
		return err
	}
	args = append(args, "clone", "--quiet", url, dir)
	if _, err := c.run(ctx, "", args...); err != nil {
		return fmt.Errorf("cloning %s: %w", url, err)
	}
	return nil
}

func (c *CLI) Open(dir string) (Repository, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &cliRepo{cli: c, dir: dir}, nil
}

// authArgs passes credentials through http.extraHeader so they never end up
// in the remote URL or .git/config.
func (c *CLI) authArgs(ctx context.Context) ([]string, error) {
	creds, err := c.opts.Credentials.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}
	if h := creds.GitHeader(); h != "" {
		return []string{"-c", "http.extraHeader=" + h}, nil
	}
	return nil, nil
}

func (c *CLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_AUTHOR_NAME="+c.opts.Identity.Name,
		"GIT_AUTHOR_EMAIL="+c.opts.Identity.Email,
		"GIT_COMMITTER_NAME="+c.opts.Identity.Name,
		"GIT_COMMITTER_EMAIL="+c.opts.Identity.Email,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	c.opts.Logger.Debug("git", "dir", dir, "args", redact(args))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", redact(args), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

func redact(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "http.extraHeader=") {
			a = "http.extraHeader=<redacted>"
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

type cliRepo struct {
	cli *CLI
	dir string
}

func (r *cliRepo) Dir() string { return r.dir }

func (r *cliRepo) git(ctx context.Context, args ...string) error {
	_, err := r.cli.run(ctx, r.dir, args...)
	return err
}

func (r *cliRepo) Checkout(ctx context.Context, branch string) error {
	if err := r.git(ctx, "checkout", "--quiet", branch); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return nil
}

func (r *cliRepo) CreateBranch(ctx context.Context, name, from string) error {
	if err := r.git(ctx, "checkout", "--quiet", "-b", name, from); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

func (r *cliRepo) Untracked(ctx context.Context) ([]string, error) {
	out, err := r.cli.run(ctx, r.dir, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (r *cliRepo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := r.git(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return fmt.Errorf("staging files: %w", err)
	}
	return nil
}

func (r *cliRepo) CommitAll(ctx context.Context, msg string) error {
	if err := r.git(ctx, "commit", "--quiet", "-a", "-m", msg); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (r *cliRepo) Merge(ctx context.Context, ref string) error {
	err := r.git(ctx, "merge", "--quiet", "--no-edit", ref)
	if err == nil {
		return nil
	}
	if abortErr := r.git(ctx, "merge", "--abort"); abortErr != nil {
		r.cli.opts.Logger.Warn("Could not abort merge", "dir", r.dir, "error", abortErr)
	}
	return apperr.New(apperr.Sync, "merge "+ref, fmt.Errorf("%w: %v", apperr.ErrMergeConflict, err))
}

func (r *cliRepo) Push(ctx context.Context, remote, branch string) error {
	args, err := r.cli.authArgs(ctx)
	if err != nil {
		return err
	}
	args = append(args, "push", "--quiet", remote, branch)
	if err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("pushing branch %s: %w", branch, err)
	}
	return nil
}

func (r *cliRepo) Discard(ctx context.Context, branch string) error {
	if err := r.git(ctx, "reset", "--quiet", "--hard"); err != nil {
		return fmt.Errorf("resetting: %w", err)
	}
	if err := r.git(ctx, "clean", "--quiet", "-fd"); err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	return r.Checkout(ctx, branch)
}
