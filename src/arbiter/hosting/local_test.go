package hosting

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@localhost",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@localhost",
		"GIT_COMMITTER_DATE=2021-06-01T00:00:00Z", "GIT_AUTHOR_DATE=2021-06-01T00:00:00Z")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

// seedBareRepo creates <root>/<owner>/<repo>.git with one commit on master
// containing files.
func seedBareRepo(t *testing.T, root, owner, repo string, files map[string]string) string {
	t.Helper()
	bare := filepath.Join(root, owner, repo+".git")
	require.NoError(t, os.MkdirAll(bare, 0o755))
	run(t, bare, "git", "init", "--quiet", "--bare", "--initial-branch=master")

	work := t.TempDir()
	run(t, work, "git", "init", "--quiet", "--initial-branch=master")
	for p, content := range files {
		full := filepath.Join(work, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	run(t, work, "git", "add", "-A")
	run(t, work, "git", "commit", "--quiet", "-m", "initial")
	run(t, work, "git", "push", "--quiet", bare, "master")
	return bare
}

func TestLocalForge(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	seedBareRepo(t, root, "recipes", "numpy-recipe", map[string]string{"recipe/meta.yaml": "numpy"})
	seedBareRepo(t, root, "recipes", "scipy-recipe", map[string]string{"recipe/meta.yaml": "scipy"})
	require.NoError(t, os.WriteFile(filepath.Join(root, "recipes", "README"), nil, 0o644))

	f, err := NewLocalForge(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	repos, err := f.ListRepositories(ctx, "recipes")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "numpy-recipe", repos[0].Name)

	tree, err := f.Tree(ctx, "recipes", "numpy-recipe", "master")
	require.NoError(t, err)
	assert.Equal(t, []TreeEntry{{Path: "recipe", Type: SubTree}, {Path: "recipe/meta.yaml", Type: Blob}}, tree)

	commits, err := f.Commits(ctx, "recipes", "numpy-recipe", "master", "recipe")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, 2021, commits[0].Date.Year())

	assert.Equal(t, filepath.Join(root, "recipes", "numpy-recipe.git"), f.CloneURL("recipes", "numpy-recipe"))
}

func TestLocalForgeMergesPullRequest(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	bare := seedBareRepo(t, root, "recipes", "numpy-recipe", map[string]string{"recipe/meta.yaml": "numpy"})

	work := t.TempDir()
	run(t, work, "git", "clone", "--quiet", bare, ".")
	run(t, work, "git", "checkout", "--quiet", "-b", "externalize_numpy_1")
	require.NoError(t, os.WriteFile(filepath.Join(work, "recipe", "build.sh"), []byte("make"), 0o644))
	run(t, work, "git", "add", "-A")
	run(t, work, "git", "commit", "--quiet", "-m", "Update numpy recipe with internal changes")
	run(t, work, "git", "push", "--quiet", "origin", "externalize_numpy_1")

	f, err := NewLocalForge(root, nil)
	require.NoError(t, err)
	url, err := f.CreatePullRequest(context.Background(), "recipes", "numpy-recipe", PullRequest{
		Title: "Update numpy with internal changes",
		Head:  "externalize_numpy_1",
		Base:  "master",
	})
	require.NoError(t, err)
	assert.Equal(t, "local://recipes/numpy-recipe/merged/externalize_numpy_1", url)

	tree, err := f.Tree(context.Background(), "recipes", "numpy-recipe", "master")
	require.NoError(t, err)
	assert.Contains(t, tree, TreeEntry{Path: "recipe/build.sh", Type: Blob})
}
