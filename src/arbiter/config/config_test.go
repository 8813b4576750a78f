package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "arbiter.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, "AnacondaRecipes", c.PublicOrg)
	assert.Equal(t, []string{"BUILD"}, c.HarnessDirs)
}

func TestLoadFileThenEnv(t *testing.T) {
	p := writeConfig(t, `
work_dir: /srv/arbiter
forge: gitlab
api_url: https://gitlab.example.com/api/v4
public_org: recipes
harness_dirs: [BUILD, ci]
cache_backend: sqlite
`)
	t.Setenv("ARBITER_PUBLIC_ORG", "recipes-staging")
	t.Setenv("ARBITER_HARNESS_DIRS", "BUILD, tools ,")
	t.Setenv("ARBITER_S3_USE_SSL", "false")
	t.Setenv("ARBITER_GITHUB_APP_ID", "42")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/arbiter", c.WorkDir)
	assert.Equal(t, "gitlab", c.Forge)
	assert.Equal(t, "https://gitlab.example.com/api/v4", c.APIURL)
	assert.Equal(t, "recipes-staging", c.PublicOrg)
	assert.Equal(t, []string{"BUILD", "tools"}, c.HarnessDirs)
	assert.Equal(t, "sqlite", c.CacheBackend)
	assert.False(t, c.S3UseSSL)
	assert.Equal(t, int64(42), c.GitHubAppID)
	assert.Equal(t, "master", c.Mainline)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "public_organisation: x\n"))
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	c, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestLoadBadInteger(t *testing.T) {
	t.Setenv("ARBITER_GITHUB_INSTALLATION_ID", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "ARBITER_GITHUB_INSTALLATION_ID")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"quick mode", func(c *Config) { c.Mode = "Quick" }, ""},
		{"bad forge", func(c *Config) { c.Forge = "bitbucket" }, "forge"},
		{"local forge without root", func(c *Config) { c.Forge = "local" }, "forge_root"},
		{"s3 without bucket", func(c *Config) { c.CacheBackend = "s3" }, "s3_bucket"},
		{"postgres without url", func(c *Config) { c.CacheBackend = "postgres" }, "database_url"},
		{"incomplete app", func(c *Config) { c.Credentials = "github-app"; c.GitHubAppID = 1 }, "github-app"},
		{"bad symlinks", func(c *Config) { c.Symlinks = "follow" }, "symlinks"},
		{"bad vcs", func(c *Config) { c.VCS = "hg" }, "vcs"},
		{"no mainline", func(c *Config) { c.Mainline = "" }, "mainline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
