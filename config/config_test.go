package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		configPathEnv, apiKeyEnv, databaseURLEnv, qdrantHostEnv, qdrantPortEnv,
		qdrantAPIKeyEnv, neo4jURIEnv, neo4jUserEnv, neo4jPasswordEnv,
		embeddingHostEnv, embeddingModelEnv, embeddingKeyEnv,
	} {
		t.Setenv(env, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crunch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1980, cfg.Pipeline.StartYear)
	assert.Equal(t, 2010, cfg.Pipeline.EndYear)
	assert.Equal(t, "0.0.0.0:3000", cfg.API.Addr)
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Partitions(), 31*12)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
stores:
  vectors: qdrant
qdrant:
  host: vectors.internal
pipeline:
  startYear: 1986
  endYear: 1986
scrape:
  backoff: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendQdrant, cfg.Stores.Vectors)
	assert.Equal(t, BackendBadger, cfg.Stores.Articles)
	assert.Equal(t, "vectors.internal", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, 2*time.Second, cfg.Scrape.Backoff)
	assert.Equal(t, 100, cfg.Scrape.Budget)
	assert.Len(t, cfg.Partitions(), 12)
}

func TestLoad_PathFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, writeFile(t, "api:\n  addr: 127.0.0.1:8080\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.API.Addr)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "postgres:\n  url: postgres://file\n")
	t.Setenv(apiKeyEnv, "secret")
	t.Setenv(databaseURLEnv, "postgres://env")
	t.Setenv(qdrantPortEnv, "7000")
	t.Setenv(embeddingModelEnv, "nomic-embed-text")
	t.Setenv(embeddingKeyEnv, "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.NYT.APIKey)
	assert.Equal(t, "postgres://env", cfg.Postgres.URL)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, "nomic-embed-text", cfg.AI().EmbeddingModel)
	assert.Equal(t, "sk-test", cfg.AI().APIKey)
	assert.Equal(t, 256, cfg.AI().BatchSize)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "stores: [not, a, map]\n"))
	assert.Error(t, err)

	t.Setenv(qdrantPortEnv, "not-a-port")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown vector backend", func(c *Config) { c.Stores.Vectors = "postgres" }},
		{"unknown article backend", func(c *Config) { c.Stores.Articles = "neo4j" }},
		{"unknown combo backend", func(c *Config) { c.Stores.Combos = "qdrant" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "anthropic" }},
		{"unknown policy", func(c *Config) { c.Pipeline.FailurePolicy = "retry" }},
		{"postgres without url", func(c *Config) { c.Stores.Articles = BackendPostgres }},
		{"neo4j without uri", func(c *Config) { c.Stores.Combos = BackendNeo4j }},
		{"reversed years", func(c *Config) { c.Pipeline.StartYear, c.Pipeline.EndYear = 2000, 1990 }},
		{"zero workers", func(c *Config) { c.Pipeline.IndexWorkers = 0 }},
		{"zero budget", func(c *Config) { c.Scrape.Budget = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("bad embedding dimensions", func(t *testing.T) {
		cfg := Default()
		cfg.Embedding.Dimensions = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres with url", func(t *testing.T) {
		cfg := Default()
		cfg.Stores.Articles = BackendPostgres
		cfg.Stores.Combos = BackendPostgres
		cfg.Postgres.URL = "postgres://localhost/crunch"
		assert.NoError(t, cfg.Validate())
	})
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrAPIKeyMissing)
	cfg.NYT.APIKey = "k"
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoadEnv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("CRUNCH_TEST_VALUE=from-file\n"), 0o600))

	t.Chdir(nested)
	t.Setenv("CRUNCH_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("CRUNCH_TEST_VALUE"))

	require.NoError(t, LoadEnv())
	assert.Equal(t, "from-file", os.Getenv("CRUNCH_TEST_VALUE"))
}
