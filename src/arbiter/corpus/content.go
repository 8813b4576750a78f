package corpus

import (
	"context"
	"fmt"

	"github.com/recipe-arbiter/arbiter/src/arbiter/cache"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
)

// ContentLoader clones every repository and digests recipe contents.
type ContentLoader struct {
	deps      Deps
	extractor *recipe.Extractor
}

func newContentLoader(deps Deps) (*ContentLoader, error) {
	opts := deps.Layout.extractorOptions()
	opts.Links = deps.Links
	opts.Unreadable = deps.Unreadable
	opts.Logger = deps.Logger
	ex, err := recipe.NewExtractor(deps.Workspace.FS(), opts)
	if err != nil {
		return nil, err
	}
	return &ContentLoader{deps: deps, extractor: ex}, nil
}

func (l *ContentLoader) Load(ctx context.Context) (*Corpora, error) {
	public, err := l.loadPublic(ctx)
	if err != nil {
		return nil, err
	}
	internal, err := l.loadDistribution(ctx)
	if err != nil {
		return nil, err
	}
	mirror, err := l.loadMirror(ctx)
	if err != nil {
		return nil, err
	}
	return &Corpora{Mode: recipe.ContentMode, Public: public, Internal: internal, InternalPublic: mirror}, nil
}

func (l *ContentLoader) checkout(ctx context.Context, name, owner, repo string) error {
	r, err := l.deps.Workspace.Ensure(ctx, name, l.deps.Forge.CloneURL(owner, repo), l.deps.Reuse)
	if err != nil {
		return err
	}
	return r.Checkout(ctx, l.deps.Layout.Mainline)
}

func (l *ContentLoader) loadPublic(ctx context.Context) (recipe.Fingerprints, error) {
	lay := l.deps.Layout
	return cached(ctx, l.deps, cache.PublicRecipes, recipe.PublicMirror, func() (recipe.Fingerprints, error) {
		repos, err := recipeRepos(ctx, l.deps)
		if err != nil {
			return nil, err
		}

		out := make(recipe.Fingerprints, len(repos))
		for _, repo := range repos {
			name, _ := recipe.NameFromRepo(repo, lay.Suffix)
			if err := l.checkout(ctx, lay.PublicClone(name), lay.PublicOrg, repo); err != nil {
				return nil, fmt.Errorf("preparing %s: %w", repo, err)
			}
			dir := lay.PublicRecipeDir(name)
			if !l.deps.Workspace.Exists(dir) {
				l.deps.Logger.Warn("Repository has no recipe directory", "repo", repo)
				continue
			}
			fps, err := l.extractor.Extract(dir)
			if err != nil {
				return nil, fmt.Errorf("extracting %s: %w", repo, err)
			}
			if err := merge(out, fps, recipe.PublicMirror); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

func (l *ContentLoader) loadDistribution(ctx context.Context) (recipe.Fingerprints, error) {
	lay := l.deps.Layout
	return cached(ctx, l.deps, cache.DistRecipes, recipe.InternalDistribution, func() (recipe.Fingerprints, error) {
		if err := l.checkout(ctx, lay.DistributionClone(), lay.InternalOwner, lay.DistributionRepo); err != nil {
			return nil, fmt.Errorf("preparing %s: %w", lay.DistributionRepo, err)
		}
		return l.extractor.ExtractDirs(lay.PackagesPath())
	})
}

func (l *ContentLoader) loadMirror(ctx context.Context) (recipe.Fingerprints, error) {
	lay := l.deps.Layout
	return cached(ctx, l.deps, cache.DistPublicRecipes, recipe.PublicDistributionSubset, func() (recipe.Fingerprints, error) {
		if err := l.checkout(ctx, lay.MirrorClone(), lay.InternalOwner, lay.MirrorRepo); err != nil {
			return nil, fmt.Errorf("preparing %s: %w", lay.MirrorRepo, err)
		}
		return l.extractor.ExtractDirs(lay.MirrorClone())
	})
}
