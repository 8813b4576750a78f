package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipe-arbiter/arbiter/src/arbiter/apperr"
	"github.com/recipe-arbiter/arbiter/src/arbiter/credentials"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestCLISyncFlow(t *testing.T) {
	requireGit(t)
	origin := initOrigin(t, map[string]string{"packages/numpy/meta.yaml": "v1"})
	ws, err := NewWorkspace(t.TempDir(), NewCLI(Options{}), nil)
	require.NoError(t, err)
	ctx := context.Background()

	repo, err := ws.Ensure(ctx, "anaconda", origin, false)
	require.NoError(t, err)
	require.NoError(t, repo.CreateBranch(ctx, "internalize_numpy_1", "master"))

	writeFile(t, ws.Root(), "public/numpy-recipe/recipe/meta.yaml", "v2")
	writeFile(t, ws.Root(), "public/numpy-recipe/recipe/extra.patch", "p")
	require.NoError(t, ReplaceTree(ws.FS(), "public/numpy-recipe/recipe", "anaconda/packages/numpy"))

	untracked, err := repo.Untracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/numpy/extra.patch"}, untracked)
	require.NoError(t, repo.Add(ctx, untracked...))
	require.NoError(t, repo.CommitAll(ctx, "Update numpy recipe with external changes"))
	require.NoError(t, repo.Merge(ctx, "master"))
	require.NoError(t, repo.Push(ctx, "origin", "internalize_numpy_1"))

	out, err := exec.Command("git", "-C", origin, "log", "-1", "--format=%s", "internalize_numpy_1").Output()
	require.NoError(t, err)
	assert.Equal(t, "Update numpy recipe with external changes\n", string(out))
}

func TestCLIMergeConflictAborts(t *testing.T) {
	requireGit(t)
	origin := initOrigin(t, map[string]string{"recipe/meta.yaml": "v1"})
	dir := filepath.Join(t.TempDir(), "clone")
	c := NewCLI(Options{})
	ctx := context.Background()
	require.NoError(t, c.Clone(ctx, origin, dir))
	repo, err := c.Open(dir)
	require.NoError(t, err)

	require.NoError(t, repo.CreateBranch(ctx, "feature", "master"))
	writeFile(t, dir, "recipe/meta.yaml", "feature")
	require.NoError(t, repo.CommitAll(ctx, "feature change"))
	require.NoError(t, repo.Checkout(ctx, "master"))
	writeFile(t, dir, "recipe/meta.yaml", "mainline")
	require.NoError(t, repo.CommitAll(ctx, "mainline change"))
	require.NoError(t, repo.Checkout(ctx, "feature"))

	err = repo.Merge(ctx, "master")
	assert.ErrorIs(t, err, apperr.ErrMergeConflict)

	_, statErr := os.Stat(filepath.Join(dir, ".git", "MERGE_HEAD"))
	assert.True(t, os.IsNotExist(statErr), "merge was aborted")
	b, err := os.ReadFile(filepath.Join(dir, "recipe", "meta.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "feature", string(b))
}

func TestCLIMergeNonConflicting(t *testing.T) {
	requireGit(t)
	origin := initOrigin(t, map[string]string{"recipe/meta.yaml": "v1", "recipe/build.sh": "make"})
	dir := filepath.Join(t.TempDir(), "clone")
	c := NewCLI(Options{})
	ctx := context.Background()
	require.NoError(t, c.Clone(ctx, origin, dir))
	repo, err := c.Open(dir)
	require.NoError(t, err)

	require.NoError(t, repo.CreateBranch(ctx, "feature", "master"))
	writeFile(t, dir, "recipe/meta.yaml", "feature")
	require.NoError(t, repo.CommitAll(ctx, "feature change"))
	require.NoError(t, repo.Checkout(ctx, "master"))
	writeFile(t, dir, "recipe/build.sh", "make install")
	require.NoError(t, repo.CommitAll(ctx, "mainline change"))
	require.NoError(t, repo.Checkout(ctx, "feature"))

	require.NoError(t, repo.Merge(ctx, "master"), "three-way merge of disjoint edits")
	b, err := os.ReadFile(filepath.Join(dir, "recipe", "build.sh"))
	require.NoError(t, err)
	assert.Equal(t, "make install", string(b))
}

func TestRedact(t *testing.T) {
	header := credentials.Credentials{Token: "secret"}.GitHeader()
	got := redact([]string{"-c", "http.extraHeader=" + header, "push", "origin", "b"})
	assert.NotContains(t, got, "secret")
	assert.NotContains(t, got, header)
	assert.Contains(t, got, "push origin b")
}
