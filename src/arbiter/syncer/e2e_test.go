package syncer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipe-arbiter/arbiter/src/arbiter/corpus"
	"github.com/recipe-arbiter/arbiter/src/arbiter/diff"
	"github.com/recipe-arbiter/arbiter/src/arbiter/hosting"
	"github.com/recipe-arbiter/arbiter/src/arbiter/recipe"
	"github.com/recipe-arbiter/arbiter/src/arbiter/vcs"
)

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	return gitEnv(t, dir, nil, args...)
}

func gitEnv(t *testing.T, dir string, env []string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@localhost",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@localhost")
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

func seedBareRepo(t *testing.T, root, owner, repo string, files map[string]string) string {
	t.Helper()
	bare := filepath.Join(root, owner, repo+".git")
	require.NoError(t, os.MkdirAll(bare, 0o755))
	git(t, bare, "init", "--quiet", "--bare", "--initial-branch=master")

	work := t.TempDir()
	git(t, work, "init", "--quiet", "--initial-branch=master")
	for p, content := range files {
		full := filepath.Join(work, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	git(t, work, "add", "-A")
	git(t, work, "commit", "--quiet", "-m", "initial")
	git(t, work, "push", "--quiet", bare, "master")
	return bare
}

// TestExternalizeEndToEnd loads the corpora from local bare repositories,
// diffs them and externalizes through the git CLI.
func TestExternalizeEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()
	lay := corpus.DefaultLayout
	remotes := t.TempDir()
	for repo, files := range fixtureRepos() {
		owner, name, _ := strings.Cut(repo, "/")
		seedBareRepo(t, remotes, owner, name, files)
	}

	forge, err := hosting.NewLocalForge(remotes, nil)
	require.NoError(t, err)
	ws, err := vcs.NewWorkspace(t.TempDir(), vcs.NewCLI(vcs.Options{}), nil)
	require.NoError(t, err)

	loader, err := corpus.NewLoader(recipe.ContentMode, corpus.Deps{
		Forge:      forge,
		Workspace:  ws,
		Layout:     lay,
		Links:      recipe.SkipLinks,
		Unreadable: recipe.FailOnUnreadable,
	})
	require.NoError(t, err)
	corpora, err := loader.Load(ctx)
	require.NoError(t, err)

	table := diff.Compute(corpora.Public, corpora.InternalPublic, corpora.Mode)
	numpy, ok := table.Lookup("numpy")
	require.True(t, ok)
	assert.Equal(t, diff.Different, numpy.Comparison)

	orch := New(forge, ws, lay, Options{Now: fixedClock})
	outcomes, err := orch.Synchronize(ctx, table, Externalize, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]Status{"numpy": Succeeded, "pandas": Skipped, "zlib": Succeeded}, statuses(outcomes))
	assert.Equal(t, "local://AnacondaRecipes/numpy-recipe/merged/externalize_numpy_"+stamp, outcomes[0].PullRequestURL)

	bare := filepath.Join(remotes, "AnacondaRecipes", "numpy-recipe.git")
	assert.Equal(t, "numpy internal", git(t, bare, "show", "master:recipe/meta.yaml"))
	assert.Equal(t, "make", git(t, bare, "show", "master:recipe/build.sh"))
	files := git(t, bare, "ls-tree", "-r", "--name-only", "master")
	assert.NotContains(t, files, "recipe/stale.patch")
	assert.Contains(t, files, "README.md")
	assert.Contains(t, git(t, bare, "log", "--format=%s", "master"), "Update numpy recipe with internal changes")

	// The public side now matches the mirror.
	reload, err := corpus.NewLoader(recipe.ContentMode, corpus.Deps{
		Forge:      forge,
		Workspace:  ws,
		Layout:     lay,
		Links:      recipe.SkipLinks,
		Unreadable: recipe.FailOnUnreadable,
	})
	require.NoError(t, err)
	corpora, err = reload.Load(ctx)
	require.NoError(t, err)
	table = diff.Compute(corpora.Public, corpora.InternalPublic, corpora.Mode)
	numpy, _ = table.Lookup("numpy")
	assert.Equal(t, diff.Equal, numpy.Comparison)
	left := Candidates(table, Externalize)
	require.Len(t, left, 1)
	assert.Equal(t, "pandas", left[0].Recipe)
}

// TestExternalizeAfterMetadataDiff publishes the remote mainline even when an
// earlier content run left older clones in the workspace.
func TestExternalizeAfterMetadataDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()
	lay := corpus.DefaultLayout
	remotes := t.TempDir()
	for repo, files := range fixtureRepos() {
		owner, name, _ := strings.Cut(repo, "/")
		seedBareRepo(t, remotes, owner, name, files)
	}
	forge, err := hosting.NewLocalForge(remotes, nil)
	require.NoError(t, err)
	ws, err := vcs.NewWorkspace(t.TempDir(), vcs.NewCLI(vcs.Options{}), nil)
	require.NoError(t, err)

	deps := corpus.Deps{
		Forge:      forge,
		Workspace:  ws,
		Layout:     lay,
		Links:      recipe.SkipLinks,
		Unreadable: recipe.FailOnUnreadable,
	}
	content, err := corpus.NewLoader(recipe.ContentMode, deps)
	require.NoError(t, err)
	_, err = content.Load(ctx)
	require.NoError(t, err)
	require.True(t, ws.Exists(lay.MirrorClone()))

	// The mirror moves on after the clones were taken.
	mirror := filepath.Join(remotes, lay.InternalOwner, lay.MirrorRepo+".git")
	work := t.TempDir()
	git(t, work, "clone", "--quiet", mirror, ".")
	require.NoError(t, os.WriteFile(filepath.Join(work, "numpy", "meta.yaml"), []byte("numpy internal v2"), 0o644))
	later := []string{"GIT_AUTHOR_DATE=2030-01-01T00:00:00Z", "GIT_COMMITTER_DATE=2030-01-01T00:00:00Z"}
	gitEnv(t, work, later, "commit", "--quiet", "-am", "bump numpy")
	git(t, work, "push", "--quiet", "origin", "master")

	metadata, err := corpus.NewLoader(recipe.MetadataMode, deps)
	require.NoError(t, err)
	corpora, err := metadata.Load(ctx)
	require.NoError(t, err)
	table := diff.Compute(corpora.Public, corpora.InternalPublic, corpora.Mode)
	numpy, ok := table.Lookup("numpy")
	require.True(t, ok)
	require.Equal(t, diff.Timestamps, numpy.Comparison)
	require.True(t, numpy.InternalModified.After(numpy.PublicModified))

	outcomes, err := New(forge, ws, lay, Options{Now: fixedClock}).Synchronize(ctx, table, Externalize, false)
	require.NoError(t, err)
	require.Equal(t, Succeeded, statuses(outcomes)["numpy"])

	bare := filepath.Join(remotes, "AnacondaRecipes", "numpy-recipe.git")
	assert.Equal(t, "numpy internal v2", git(t, bare, "show", "master:recipe/meta.yaml"))
}
