// Package corpus loads the three recipe corpora: the public mirror
// organization, the internal distribution and its public subset.
package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/cache"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

// Corpora holds one fingerprint set per origin, all computed in Mode.
type Corpora struct {
	Mode           recipe.Mode
	Public         recipe.Fingerprints
	Internal       recipe.Fingerprints
	InternalPublic recipe.Fingerprints
}

// Of returns the fingerprints loaded for origin.
func (c *Corpora) Of(o recipe.Origin) recipe.Fingerprints {
	switch o {
	case recipe.PublicMirror:
		return c.Public
	case recipe.InternalDistribution:
		return c.Internal
	case recipe.PublicDistributionSubset:
		return c.InternalPublic
	default:
		return nil
	}
}

type Loader interface {
	Load(ctx context.Context) (*Corpora, error)
}

// Deps are the collaborators shared by both strategies.
type Deps struct {
	Forge     hosting.Forge
	Workspace *vcs.Workspace
	Layout    Layout
	Cache     *cache.Cache
	// Reuse keeps existing clones and lets the cache answer.
	Reuse bool
	// Links and Unreadable are handed to the content extractor.
	Links      recipe.LinkPolicy
	Unreadable recipe.PermissionPolicy
	Logger     *slog.Logger
}

// NewLoader returns the strategy for mode.
func NewLoader(mode recipe.Mode, deps Deps) (Loader, error) {
	if deps.Forge == nil {
		return nil, fmt.Errorf("corpus: forge is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Cache = deps.Cache.Namespace(mode.String())
	switch mode {
	case recipe.ContentMode:
		if deps.Workspace == nil {
			return nil, fmt.Errorf("corpus: content mode needs a workspace")
		}
		return newContentLoader(deps)
	case recipe.MetadataMode:
		return &MetadataLoader{deps: deps}, nil
	default:
		return nil, fmt.Errorf("corpus: unsupported mode %v", mode)
	}
}

// merge adds src into dst, failing when a name is already present.
func merge(dst, src recipe.Fingerprints, origin recipe.Origin) error {
	for name, sig := range src {
		if _, ok := dst[name]; ok {
			return apperr.Invariantf("load "+origin.String(), apperr.ErrNameCollision, "%q", name)
		}
		dst[name] = sig
	}
	return nil
}

// cached returns the entry for typ, or computes, stores and returns it.
// Either way the corpus size is logged.
func cached(ctx context.Context, d Deps, typ cache.ResponseType, origin recipe.Origin, load func() (recipe.Fingerprints, error)) (recipe.Fingerprints, error) {
	var fps recipe.Fingerprints
	if !d.Cache.Get(ctx, typ, &fps) {
		var err error
		if fps, err = load(); err != nil {
			return nil, err
		}
		d.Cache.Put(ctx, typ, fps)
	}
	d.Logger.Info("Loaded corpus", "origin", origin.String(), "recipes", len(fps))
	return fps, nil
}

// recipeRepos lists the public organization and maps each repository to
// its recipe name. A repository breaking the naming convention is fatal.
func recipeRepos(ctx context.Context, d Deps) ([]string, error) {
	var repos []string
	if d.Cache.Get(ctx, cache.PublicRepos, &repos) {
		return repos, nil
	}

	d.Logger.Info("Fetching repositories", "owner", d.Layout.PublicOrg)
	listed, err := d.Forge.ListRepositories(ctx, d.Layout.PublicOrg)
	if err != nil {
		return nil, err
	}
	for _, r := range listed {
		if _, ok := recipe.NameFromRepo(r.Name, d.Layout.Suffix); !ok {
			return nil, apperr.Invariantf("list "+d.Layout.PublicOrg, apperr.ErrNamingConvention,
				"repository %q lacks the %q suffix", r.Name, d.Layout.Suffix)
		}
		repos = append(repos, r.Name)
	}
	d.Cache.Put(ctx, cache.PublicRepos, repos)
	return repos, nil
}
