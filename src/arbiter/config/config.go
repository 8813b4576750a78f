// Package config resolves run configuration from built-in defaults, an
// optional YAML file and ARBITER_* environment variables, in that order of
// increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	WorkDir string `yaml:"work_dir"`

	// Mode: "content" or "metadata"
	Mode string `yaml:"mode"`

	// Forge: "github", "gitlab" or "local"
	Forge     string `yaml:"forge"`
	APIURL    string `yaml:"api_url"`
	WebURL    string `yaml:"web_url"`
	ForgeRoot string `yaml:"forge_root"` // bare repositories for the local forge

	PublicOrg        string   `yaml:"public_org"`
	InternalOwner    string   `yaml:"internal_owner"`
	DistributionRepo string   `yaml:"distribution_repo"`
	MirrorRepo       string   `yaml:"mirror_repo"`
	PackagesDir      string   `yaml:"packages_dir"`
	Mainline         string   `yaml:"mainline"`
	RecipeSuffix     string   `yaml:"recipe_suffix"`
	Descriptor       string   `yaml:"descriptor"`
	HarnessDirs      []string `yaml:"harness_dirs"`

	// Symlinks and Unreadable: "skip" or "fail"
	Symlinks   string `yaml:"symlinks"`
	Unreadable string `yaml:"unreadable"`

	// Cache backend: "local", "s3", "sqlite", "postgres", "memory" or "none"
	CacheBackend string `yaml:"cache_backend"`
	CacheDir     string `yaml:"cache_dir"`
	DatabaseURL  string `yaml:"database_url"`
	DatabasePath string `yaml:"database_path"`

	// S3-compatible object storage
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// Credentials: "env", "prompt", "github-app" or "none"
	Credentials      string `yaml:"credentials"`
	GitHubAppID      int64  `yaml:"github_app_id"`
	GitHubInstallID  int64  `yaml:"github_installation_id"`
	GitHubAppKeyPath string `yaml:"github_app_key"`

	// VCS backend: "cli" or "gogit"
	VCS string `yaml:"vcs"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the configuration for the AnacondaRecipes and
// ContinuumIO repositories on GitHub.
func Default() *Config {
	return &Config{
		WorkDir: "work",
		Mode:    "content",

		Forge:  "github",
		APIURL: "https://api.github.com",

		PublicOrg:        "AnacondaRecipes",
		InternalOwner:    "ContinuumIO",
		DistributionRepo: "anaconda",
		MirrorRepo:       "anaconda-recipes",
		PackagesDir:      "packages",
		Mainline:         "master",
		RecipeSuffix:     "-recipe",
		Descriptor:       "meta.yaml",
		HarnessDirs:      []string{"BUILD"},

		Symlinks:   "skip",
		Unreadable: "fail",

		CacheBackend: "local",
		CacheDir:     "cache",
		DatabasePath: "arbiter.db",
		S3Region:     "us-east-1",
		S3UseSSL:     true,

		Credentials: "env",
		VCS:         "cli",

		LogLevel:  "info",
		LogFormat: "text",

		ListenAddr:  ":8080",
		CORSOrigins: []string{"*"},
	}
}

// Load reads path when it is not empty, then applies the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.WorkDir = envOrDefault("ARBITER_WORK_DIR", c.WorkDir)
	c.Mode = envOrDefault("ARBITER_MODE", c.Mode)

	c.Forge = envOrDefault("ARBITER_FORGE", c.Forge)
	c.APIURL = envOrDefault("ARBITER_API_URL", c.APIURL)
	c.WebURL = envOrDefault("ARBITER_WEB_URL", c.WebURL)
	c.ForgeRoot = envOrDefault("ARBITER_FORGE_ROOT", c.ForgeRoot)

	c.PublicOrg = envOrDefault("ARBITER_PUBLIC_ORG", c.PublicOrg)
	c.InternalOwner = envOrDefault("ARBITER_INTERNAL_OWNER", c.InternalOwner)
	c.DistributionRepo = envOrDefault("ARBITER_DISTRIBUTION_REPO", c.DistributionRepo)
	c.MirrorRepo = envOrDefault("ARBITER_MIRROR_REPO", c.MirrorRepo)
	c.PackagesDir = envOrDefault("ARBITER_PACKAGES_DIR", c.PackagesDir)
	c.Mainline = envOrDefault("ARBITER_MAINLINE", c.Mainline)
	c.RecipeSuffix = envOrDefault("ARBITER_RECIPE_SUFFIX", c.RecipeSuffix)
	c.Descriptor = envOrDefault("ARBITER_DESCRIPTOR", c.Descriptor)
	if v, ok := os.LookupEnv("ARBITER_HARNESS_DIRS"); ok {
		c.HarnessDirs = parseList(v)
	}

	c.Symlinks = envOrDefault("ARBITER_SYMLINKS", c.Symlinks)
	c.Unreadable = envOrDefault("ARBITER_UNREADABLE", c.Unreadable)

	c.CacheBackend = envOrDefault("ARBITER_CACHE_BACKEND", c.CacheBackend)
	c.CacheDir = envOrDefault("ARBITER_CACHE_DIR", c.CacheDir)
	c.DatabaseURL = envOrDefault("ARBITER_DATABASE_URL", c.DatabaseURL)
	c.DatabasePath = envOrDefault("ARBITER_DATABASE_PATH", c.DatabasePath)

	c.S3Endpoint = envOrDefault("ARBITER_S3_ENDPOINT", c.S3Endpoint)
	c.S3Bucket = envOrDefault("ARBITER_S3_BUCKET", c.S3Bucket)
	c.S3Region = envOrDefault("ARBITER_S3_REGION", c.S3Region)
	c.S3Prefix = envOrDefault("ARBITER_S3_PREFIX", c.S3Prefix)
	c.S3AccessKey = envOrDefault("ARBITER_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envOrDefault("ARBITER_S3_SECRET_KEY", c.S3SecretKey)
	if v := os.Getenv("ARBITER_S3_USE_SSL"); v != "" {
		c.S3UseSSL = v != "false"
	}

	c.Credentials = envOrDefault("ARBITER_CREDENTIALS", c.Credentials)
	c.GitHubAppKeyPath = envOrDefault("ARBITER_GITHUB_APP_KEY", c.GitHubAppKeyPath)
	var err error
	if c.GitHubAppID, err = envInt("ARBITER_GITHUB_APP_ID", c.GitHubAppID); err != nil {
		return err
	}
	if c.GitHubInstallID, err = envInt("ARBITER_GITHUB_INSTALLATION_ID", c.GitHubInstallID); err != nil {
		return err
	}

	c.VCS = envOrDefault("ARBITER_VCS", c.VCS)
	c.LogLevel = envOrDefault("ARBITER_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("ARBITER_LOG_FORMAT", c.LogFormat)

	c.ListenAddr = envOrDefault("ARBITER_LISTEN_ADDR", c.ListenAddr)
	if v := os.Getenv("ARBITER_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = parseList(v)
	}
	return nil
}

// Validate checks the enumerated settings and the settings each backend
// depends on.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, v, strings.Join(allowed, ", ")))
	}
	check("mode", strings.ToLower(c.Mode), "content", "metadata", "quick")
	check("forge", c.Forge, "github", "gitlab", "local")
	check("symlinks", c.Symlinks, "skip", "fail")
	check("unreadable", c.Unreadable, "skip", "fail")
	check("cache_backend", c.CacheBackend, "local", "s3", "sqlite", "postgres", "memory", "none")
	check("credentials", c.Credentials, "env", "prompt", "github-app", "none")
	check("vcs", c.VCS, "cli", "gogit")
	check("log_format", c.LogFormat, "text", "json")

	if c.Forge == "local" && c.ForgeRoot == "" {
		errs = append(errs, errors.New("forge_root is required for the local forge"))
	}
	if c.CacheBackend == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("s3_bucket is required for the s3 cache"))
	}
	if c.CacheBackend == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required for the postgres cache"))
	}
	if c.Credentials == "github-app" && (c.GitHubAppID == 0 || c.GitHubInstallID == 0 || c.GitHubAppKeyPath == "") {
		errs = append(errs, errors.New("github-app credentials need an app id, an installation id and a key"))
	}
	if c.Mainline == "" || c.PublicOrg == "" || c.InternalOwner == "" {
		errs = append(errs, errors.New("mainline, public_org and internal_owner must be set"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
