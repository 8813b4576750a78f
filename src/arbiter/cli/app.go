package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/recipe-arbiter/arbiter/src/arbiter/cache"
	"github.com/recipe-arbiter/arbiter/src/arbiter/config"
	"github.com/recipe-arbiter/arbiter/src/arbiter/corpus"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
	"github.com/recipe-arbiter/arbiter/src/arbiter/storage"
	"github.com/recipe-arbiter/arbiter/src/arbiter/syncer"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

// app is the set of collaborators a command works with, built once per run
// from the resolved configuration.
type app struct {
	opts      *RootOptions
	layout    corpus.Layout
	creds     credentials.Provider
	forge     hosting.Forge
	workspace *vcs.Workspace
	store     storage.ObjectStorage
	cache     *cache.Cache
	closers   []io.Closer
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg := opts.Config
	a := &app{opts: opts, layout: layoutOf(cfg)}

	creds, err := a.credentials(cfg)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "configuring credentials", err)
	}
	a.creds = creds

	if a.forge, err = a.newForge(cfg); err != nil {
		return nil, WrapExitError(ExitUsage, "configuring forge", err)
	}

	backend, err := vcs.New(cfg.VCS, vcs.Options{Credentials: a.creds, Logger: opts.Logger})
	if err != nil {
		return nil, WrapExitError(ExitUsage, "configuring vcs", err)
	}
	if a.workspace, err = vcs.NewWorkspace(cfg.WorkDir, backend, opts.Logger); err != nil {
		return nil, err
	}

	if err := a.openStorage(ctx, cfg); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	if a.store != nil {
		a.cache = cache.New(a.store, opts.UseCache, opts.Logger)
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// closeApp closes a and reports a failure to close through errp unless the
// command already failed.
func closeApp(a *app, errp *error) {
	if err := a.Close(); err != nil && *errp == nil {
		*errp = WrapExitError(ExitFailure, "closing cache", err)
	}
}

func layoutOf(cfg *config.Config) corpus.Layout {
	return corpus.Layout{
		PublicOrg:        cfg.PublicOrg,
		InternalOwner:    cfg.InternalOwner,
		DistributionRepo: cfg.DistributionRepo,
		MirrorRepo:       cfg.MirrorRepo,
		PackagesDir:      cfg.PackagesDir,
		Mainline:         cfg.Mainline,
		Suffix:           cfg.RecipeSuffix,
		Descriptor:       cfg.Descriptor,
		HarnessDirs:      cfg.HarnessDirs,
	}
}

func (a *app) credentials(cfg *config.Config) (credentials.Provider, error) {
	switch cfg.Credentials {
	case "env":
		return credentials.Env{}, nil
	case "prompt":
		// Asked once; every later clone and API call reuses the answer.
		return credentials.NewCached(credentials.Prompt{In: a.opts.Stdin, Out: a.opts.Stderr}), nil
	case "github-app":
		return credentials.NewGitHubApp(strconv.FormatInt(cfg.GitHubAppID, 10),
			cfg.GitHubInstallID, cfg.GitHubAppKeyPath, cfg.APIURL, a.opts.Logger)
	case "none":
		return credentials.Static{}, nil
	default:
		return nil, fmt.Errorf("unknown credentials source %q", cfg.Credentials)
	}
}

func (a *app) newForge(cfg *config.Config) (hosting.Forge, error) {
	log := a.opts.Logger
	switch cfg.Forge {
	case "github":
		return hosting.NewGitHubForge(a.creds, hosting.GitHubOptions{
			APIBaseURL: cfg.APIURL,
			WebBaseURL: cfg.WebURL,
			Logger:     log,
		}), nil
	case "gitlab":
		api := cfg.APIURL
		if api == config.Default().APIURL {
			api = ""
		}
		return hosting.NewGitLabForge(a.creds, hosting.GitLabOptions{
			APIBaseURL: api,
			WebBaseURL: cfg.WebURL,
			Logger:     log,
		}), nil
	case "local":
		return hosting.NewLocalForge(cfg.ForgeRoot, log)
	default:
		return nil, fmt.Errorf("unknown forge %q", cfg.Forge)
	}
}

// openStorage prepares the cache backend. "none" leaves the run uncached.
func (a *app) openStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.CacheBackend {
	case "none":
		return nil
	case "memory":
		a.store = storage.NewMemory()
	case "local":
		dir := cfg.CacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.WorkDir, dir)
		}
		s, err := storage.NewLocal(dir)
		if err != nil {
			return fmt.Errorf("opening cache dir: %w", err)
		}
		a.store = s
	case "s3":
		s, err := storage.NewS3(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return fmt.Errorf("connecting to s3: %w", err)
		}
		a.store = s
	case "sqlite", "postgres":
		var (
			s   *storage.SQLStorage
			err error
		)
		if cfg.CacheBackend == "sqlite" {
			path := cfg.DatabasePath
			if !filepath.IsAbs(path) {
				path = filepath.Join(cfg.WorkDir, path)
			}
			s, err = storage.NewSQLite(path)
		} else {
			s, err = storage.NewPostgres(cfg.DatabaseURL)
		}
		if err != nil {
			return fmt.Errorf("opening cache database: %w", err)
		}
		a.closers = append(a.closers, s)
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating cache database: %w", err)
		}
		a.store = s
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return nil
}

func (a *app) policies() (recipe.LinkPolicy, recipe.PermissionPolicy) {
	links, unreadable := recipe.SkipLinks, recipe.FailOnUnreadable
	if a.opts.Config.Symlinks == "fail" {
		links = recipe.FailOnLinks
	}
	if a.opts.Config.Unreadable == "skip" {
		unreadable = recipe.SkipUnreadable
	}
	return links, unreadable
}

// computeDiff loads the corpora and compares the public repositories with
// the internal copy of the public recipes.
func (a *app) computeDiff(ctx context.Context) (*diff.Table, error) {
	links, unreadable := a.policies()
	loader, err := corpus.NewLoader(a.opts.mode, corpus.Deps{
		Forge:      a.forge,
		Workspace:  a.workspace,
		Layout:     a.layout,
		Cache:      a.cache,
		Reuse:      a.opts.UseCache,
		Links:      links,
		Unreadable: unreadable,
		Logger:     a.opts.Logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitUsage, "configuring loader", err)
	}
	corpora, err := loader.Load(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "loading corpora", err)
	}
	table := diff.Compute(corpora.Public, corpora.InternalPublic, corpora.Mode)
	a.opts.Logger.Info("Computed diff", "recipes", len(table.Rows), "mode", corpora.Mode.String())
	return table, nil
}

// synchronize runs one sync batch over table. Clones are reused only when
// the run was asked to reuse cached state.
func (a *app) synchronize(ctx context.Context, table *diff.Table, direction syncer.Direction, dryRun bool) ([]syncer.Outcome, error) {
	orch := syncer.New(a.forge, a.workspace, a.layout, syncer.Options{
		ReuseClones: a.opts.UseCache,
		Now:         a.opts.Now,
		Logger:      a.opts.Logger,
	})
	outcomes, err := orch.Synchronize(ctx, table, direction, dryRun)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "synchronizing", err)
	}
	return outcomes, nil
}
