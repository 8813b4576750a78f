package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s ObjectStorage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, err := s.Get(ctx, "public_recipes.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "public_recipes.json", strings.NewReader(`{"numpy":{}}`), "application/json"))
	require.NoError(t, s.Put(ctx, "public_recipes.json", strings.NewReader(`{"scipy":{}}`), "application/json"))

	rc, err := s.Get(ctx, "public_recipes.json")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"scipy":{}}`, string(b))
}

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	exerciseStorage(t, s)

	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "public_recipes.json", entries[0].Name())
}

func TestLocalStorageNestedKey(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "run/public_repos.json", strings.NewReader("[]"), "application/json"))
	rc, err := s.Get(ctx, "run/public_repos.json")
	require.NoError(t, err)
	rc.Close()
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache", "arbiter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	// Migrating twice is harmless.
	require.NoError(t, s.Migrate(context.Background()))
	exerciseStorage(t, s)
}
