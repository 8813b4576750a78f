package corpus

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/cache"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
)

// MetadataLoader answers from the hosting API alone: recipe roots come
// from repository trees and signatures are the latest commit touching each
// root. Nothing is cloned.
type MetadataLoader struct {
	deps Deps
}

func (l *MetadataLoader) Load(ctx context.Context) (*Corpora, error) {
	lay := l.deps.Layout

	public, err := cached(ctx, l.deps, cache.PublicRecipes, recipe.PublicMirror, func() (recipe.Fingerprints, error) {
		repos, err := recipeRepos(ctx, l.deps)
		if err != nil {
			return nil, err
		}
		out := make(recipe.Fingerprints)
		for _, repo := range repos {
			fps, err := l.repoFingerprints(ctx, lay.PublicOrg, repo, "", nil)
			if err != nil {
				return nil, err
			}
			if err := merge(out, fps, recipe.PublicMirror); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	internal, err := cached(ctx, l.deps, cache.DistRecipes, recipe.InternalDistribution, func() (recipe.Fingerprints, error) {
		return l.repoFingerprints(ctx, lay.InternalOwner, lay.DistributionRepo, lay.PackagesDir, nil)
	})
	if err != nil {
		return nil, err
	}

	mirror, err := cached(ctx, l.deps, cache.DistPublicRecipes, recipe.PublicDistributionSubset, func() (recipe.Fingerprints, error) {
		return l.repoFingerprints(ctx, lay.InternalOwner, lay.MirrorRepo, "", lay.HarnessDirs)
	})
	if err != nil {
		return nil, err
	}

	return &Corpora{Mode: recipe.MetadataMode, Public: public, Internal: internal, InternalPublic: mirror}, nil
}

// repoFingerprints finds the recipe roots of one repository below prefix
// and stamps each with its last commit time. Top-level directories named in
// harness are skipped.
func (l *MetadataLoader) repoFingerprints(ctx context.Context, owner, repo, prefix string, harness []string) (recipe.Fingerprints, error) {
	lay := l.deps.Layout
	tree, err := l.deps.Forge.Tree(ctx, owner, repo, lay.Mainline)
	if err != nil {
		return nil, err
	}

	roots := RecipeRoots(tree, lay.Descriptor, prefix, harness)
	out := make(recipe.Fingerprints, len(roots))
	owners := make(map[string]string, len(roots))
	for _, root := range roots {
		name := recipe.CanonicalName(repo+"/"+root, lay.Suffix)
		if prev, ok := owners[name]; ok {
			return nil, apperr.Invariantf("tree "+owner+"/"+repo, apperr.ErrNameCollision,
				"%q resolves from both %s and %s", name, prev, root)
		}
		owners[name] = root

		modified, err := l.modified(ctx, owner, repo, root)
		if err != nil {
			return nil, err
		}
		out[name] = recipe.Signature{Modified: modified}
	}
	return out, nil
}

// modified returns the newest commit date touching p. Some hosts return no
// history for certain subpaths; the earliest commit of the parent directory
// stands in for those.
func (l *MetadataLoader) modified(ctx context.Context, owner, repo, p string) (time.Time, error) {
	mainline := l.deps.Layout.Mainline
	commits, err := l.deps.Forge.Commits(ctx, owner, repo, mainline, p)
	if err != nil {
		return time.Time{}, err
	}
	if len(commits) > 0 {
		return latest(commits), nil
	}

	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	commits, err = l.deps.Forge.Commits(ctx, owner, repo, mainline, parent)
	if err != nil {
		return time.Time{}, err
	}
	if len(commits) == 0 {
		l.deps.Logger.Warn("No commit history for recipe path", "repo", owner+"/"+repo, "path", p)
		return time.Time{}, nil
	}
	l.deps.Logger.Debug("Using parent directory history", "repo", owner+"/"+repo, "path", p, "parent", parent)
	return earliest(commits), nil
}

// latest and earliest do not trust the order commits come back in.
func latest(commits []hosting.Commit) time.Time {
	t := commits[0].Date
	for _, c := range commits[1:] {
		if c.Date.After(t) {
			t = c.Date
		}
	}
	return t.UTC()
}

func earliest(commits []hosting.Commit) time.Time {
	t := commits[0].Date
	for _, c := range commits[1:] {
		if c.Date.Before(t) {
			t = c.Date
		}
	}
	return t.UTC()
}

// RecipeRoots returns the sorted directories of tree holding a descriptor
// blob, restricted to prefix when set. Paths under a ".git*" component or a
// top-level harness directory never count.
func RecipeRoots(tree []hosting.TreeEntry, descriptor, prefix string, harness []string) []string {
	if descriptor == "" {
		descriptor = recipe.DefaultDescriptor
	}
	var roots []string
	for _, e := range tree {
		if e.Type != hosting.Blob || path.Base(e.Path) != descriptor {
			continue
		}
		if prefix != "" && !strings.HasPrefix(e.Path, prefix+"/") {
			continue
		}
		if excluded(e.Path, harness) {
			continue
		}
		root := path.Dir(e.Path)
		if root == "." || root == prefix {
			continue
		}
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

func excluded(p string, harness []string) bool {
	parts := strings.Split(p, "/")
	for _, part := range parts {
		if strings.HasPrefix(part, ".git") {
			return true
		}
	}
	for _, h := range harness {
		if parts[0] == h {
			return true
		}
	}
	return false
}
