package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/gitdigger/pkg/ref"
)

func writeConfig(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "gitdigger.yaml", `
providers:
  - kind: github
    token: ghp_test
  - kind: gitlab
    token: glpat_test
  - kind: generic
    host: git.example.org
    api_base: https://git.example.org
default_provider: github
concurrency: 8
clone: true
clone_dir: /srv/repos
state_path: /srv/state.db
backoff:
  base_delay: 250ms
  max_attempts: 3
`)

	cfg, err := Load(testContext(t), path)
	require.NoError(t, err)

	assert.Len(t, cfg.Providers, 3)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.True(t, cfg.Clone)
	assert.Equal(t, "/srv/repos", cfg.CloneDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff.Delay())
	assert.Equal(t, 3, cfg.Backoff.MaxAttempts)
	assert.Equal(t, ref.GitHubLike, cfg.DefaultKind())
	assert.Equal(t, []string{"git.example.org"}, cfg.GenericHosts())

	gh := cfg.Provider(ref.GitHubLike)
	require.NotNil(t, gh)
	assert.Equal(t, "ghp_test", gh.Token)
	assert.Nil(t, cfg.Provider(ref.Unknown))
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "gitdigger.json", `{
		"providers": [{"kind": "github", "token": "ghp_test"}],
		"concurrency": 2
	}`)

	cfg, err := Load(testContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency)

	t.Run("unknown_fields_rejected", func(t *testing.T) {
		bad := writeConfig(t, "bad.json", `{"wat": true}`)
		_, err := Load(testContext(t), bad)
		require.Error(t, err)
	})
}

func TestLoadHCL(t *testing.T) {
	path := writeConfig(t, "gitdigger.hcl", `
provider "github" {
  token = "ghp_test"
}

default_provider = "github"
clone            = true

backoff {
  base_delay   = "1s"
  max_attempts = 2
}
`)

	cfg, err := Load(testContext(t), path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "github", cfg.Providers[0].Kind)
	assert.Equal(t, time.Second, cfg.Backoff.Delay())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := Load(testContext(t), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("unsupported_extension", func(t *testing.T) {
		path := writeConfig(t, "config.toml", "")
		_, err := Load(testContext(t), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config extension")
	})
}

func TestValidate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg Config
		require.NoError(t, cfg.Validate())
		assert.Equal(t, 4, cfg.Concurrency)
		assert.Equal(t, "repos", cfg.CloneDir)
		assert.Equal(t, ".gitdigger.db", cfg.StatePath)
		assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Delay())
		assert.Equal(t, 4, cfg.Backoff.MaxAttempts)
		assert.Equal(t, ref.Unknown, cfg.DefaultKind())
	})

	t.Run("bad_backoff_delay", func(t *testing.T) {
		cfg := Config{Backoff: &BackoffConfig{BaseDelay: "soon"}}
		require.Error(t, cfg.Validate())
	})

	t.Run("attempt_cap", func(t *testing.T) {
		cfg := Config{Backoff: &BackoffConfig{MaxAttempts: 9}}
		require.Error(t, cfg.Validate())
	})

	t.Run("duplicate_provider", func(t *testing.T) {
		cfg := Config{Providers: []ProviderConfig{{Kind: "github"}, {Kind: "github-like"}}}
		require.Error(t, cfg.Validate())
	})

	t.Run("generic_requires_api_base", func(t *testing.T) {
		cfg := Config{Providers: []ProviderConfig{{Kind: "generic"}}}
		require.Error(t, cfg.Validate())
	})

	t.Run("bad_default_provider", func(t *testing.T) {
		cfg := Config{DefaultProvider: "sourceforge"}
		require.Error(t, cfg.Validate())
	})
}
