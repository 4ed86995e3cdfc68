// Package config loads application settings: defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cyclicism/crunch/ai"
	"github.com/cyclicism/crunch/core"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "CRUNCH_CONFIG"
	apiKeyEnv         = "NYT_API_KEY"
	databaseURLEnv    = "DATABASE_URL"
	qdrantHostEnv     = "QDRANT_HOST"
	qdrantPortEnv     = "QDRANT_PORT"
	qdrantAPIKeyEnv   = "QDRANT_API_KEY"
	neo4jURIEnv       = "NEO4J_URI"
	neo4jUserEnv      = "NEO4J_USER"
	neo4jPasswordEnv  = "NEO4J_PASSWORD"
	embeddingHostEnv  = "EMBEDDING_HOST"
	embeddingModelEnv = "EMBEDDING_MODEL"
	embeddingKeyEnv   = "OPENAI_API_KEY"
)

// Backend names.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
	BackendNeo4j    = "neo4j"
)

// Embedding providers.
const (
	ProviderOpenAI    = "openai"
	ProviderFastembed = "fastembed"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrAPIKeyMissing is returned by RequireAPIKey.
	ErrAPIKeyMissing = errors.New("NYT_API_KEY is not set")
)

// Config holds every setting of the crunch commands.
type Config struct {
	NYT       NYTConfig       `yaml:"nyt"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Stores    StoresConfig    `yaml:"stores"`
	Badger    BadgerConfig    `yaml:"badger"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	API       APIConfig       `yaml:"api"`
}

// NYTConfig locates the archive API and the local archive copy.
type NYTConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
	DataDir string `yaml:"dataDir"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheDir   string `yaml:"cacheDir"`
	Field      string `yaml:"field"`
	APIKey     string `yaml:"apiKey"`
	BatchSize  int    `yaml:"batchSize"`
}

// StoresConfig picks a backend per store.
type StoresConfig struct {
	Vectors  string `yaml:"vectors"`
	Articles string `yaml:"articles"`
	Combos   string `yaml:"combos"`
}

// BadgerConfig locates the embedded database.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig describes the relational store.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"maxConns"`
}

// QdrantConfig describes the vector database.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"apiKey"`
	UseTLS bool   `yaml:"useTls"`
}

// Neo4jConfig describes the graph database.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PipelineConfig tunes the bulk loader and indexer.
type PipelineConfig struct {
	StartYear     int    `yaml:"startYear"`
	EndYear       int    `yaml:"endYear"`
	LoadWorkers   int    `yaml:"loadWorkers"`
	IndexWorkers  int    `yaml:"indexWorkers"`
	ChunkSize     int    `yaml:"chunkSize"`
	FailurePolicy string `yaml:"failurePolicy"`
}

// ScrapeConfig tunes the archive downloader.
type ScrapeConfig struct {
	Budget  int           `yaml:"budget"`
	Backoff time.Duration `yaml:"backoff"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	aiDefaults := ai.DefaultConfig()
	return Config{
		NYT: NYTConfig{
			BaseURL: "https://api.nytimes.com",
			DataDir: "data",
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderOpenAI,
			Host:       aiDefaults.EmbeddingHost,
			Model:      aiDefaults.EmbeddingModel,
			Dimensions: aiDefaults.Dimensions,
			CacheDir:   aiDefaults.CacheDir,
			Field:      "HeadlineMain",
			BatchSize:  aiDefaults.BatchSize,
		},
		Stores: StoresConfig{
			Vectors:  BackendBadger,
			Articles: BackendBadger,
			Combos:   BackendBadger,
		},
		Badger:   BadgerConfig{Path: "crunch_db"},
		Postgres: PostgresConfig{MaxConns: 8},
		Qdrant:   QdrantConfig{Host: "localhost", Port: 6334},
		Pipeline: PipelineConfig{
			StartYear:     core.StartYear,
			EndYear:       core.EndYear,
			LoadWorkers:   6,
			IndexWorkers:  4,
			ChunkSize:     64,
			FailurePolicy: "skip-partition",
		},
		Scrape: ScrapeConfig{Budget: 100, Backoff: 15 * time.Second},
		API:    APIConfig{Addr: "0.0.0.0:3000"},
	}
}

// Load builds a Config from defaults, the YAML file at path (or at
// $CRUNCH_CONFIG when path is empty) and environment overrides. A missing
// file is an error only when a path was given.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		// Unmarshalling over the defaults keeps every key the file omits.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	set := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(&c.NYT.APIKey, apiKeyEnv)
	set(&c.Postgres.URL, databaseURLEnv)
	set(&c.Qdrant.Host, qdrantHostEnv)
	set(&c.Qdrant.APIKey, qdrantAPIKeyEnv)
	set(&c.Neo4j.URI, neo4jURIEnv)
	set(&c.Neo4j.User, neo4jUserEnv)
	set(&c.Neo4j.Password, neo4jPasswordEnv)
	set(&c.Embedding.Host, embeddingHostEnv)
	set(&c.Embedding.Model, embeddingModelEnv)
	set(&c.Embedding.APIKey, embeddingKeyEnv)

	if v := os.Getenv(qdrantPortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, qdrantPortEnv, v)
		}
		c.Qdrant.Port = port
	}
	return nil
}

// Validate rejects unknown backends and impossible values.
func (c *Config) Validate() error {
	check := func(name, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("%w: %s %q must be one of %v", ErrInvalidConfig, name, value, allowed)
	}

	if err := check("stores.vectors", c.Stores.Vectors, BackendBadger, BackendQdrant); err != nil {
		return err
	}
	if err := check("stores.articles", c.Stores.Articles, BackendBadger, BackendPostgres); err != nil {
		return err
	}
	if err := check("stores.combos", c.Stores.Combos, BackendBadger, BackendPostgres, BackendNeo4j); err != nil {
		return err
	}
	if err := check("embedding.provider", c.Embedding.Provider, ProviderOpenAI, ProviderFastembed); err != nil {
		return err
	}
	if err := check("pipeline.failurePolicy", c.Pipeline.FailurePolicy, "skip-partition", "stop-worker"); err != nil {
		return err
	}

	if c.usesBackend(BackendPostgres) && c.Postgres.URL == "" {
		return fmt.Errorf("%w: postgres selected but %s is not set", ErrInvalidConfig, databaseURLEnv)
	}
	if c.Stores.Combos == BackendNeo4j && c.Neo4j.URI == "" {
		return fmt.Errorf("%w: neo4j selected but %s is not set", ErrInvalidConfig, neo4jURIEnv)
	}
	if c.Pipeline.EndYear < c.Pipeline.StartYear {
		return fmt.Errorf("%w: pipeline years %d..%d are reversed", ErrInvalidConfig, c.Pipeline.StartYear, c.Pipeline.EndYear)
	}
	if c.Pipeline.LoadWorkers < 1 || c.Pipeline.IndexWorkers < 1 || c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("%w: workers and chunk size must be positive", ErrInvalidConfig)
	}
	if c.Scrape.Budget < 1 || c.Scrape.Backoff < 0 {
		return fmt.Errorf("%w: scrape budget must be positive and backoff non-negative", ErrInvalidConfig)
	}

	return c.AI().Validate()
}

func (c *Config) usesBackend(name string) bool {
	return c.Stores.Vectors == name || c.Stores.Articles == name || c.Stores.Combos == name
}

// RequireAPIKey fails when the archive credential is missing. Only the
// commands that call the API need it.
func (c *Config) RequireAPIKey() error {
	if c.NYT.APIKey == "" {
		return ErrAPIKeyMissing
	}
	return nil
}

// AI converts the embedding section into an ai.Config.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithCacheDir(c.Embedding.CacheDir),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithBatchSize(c.Embedding.BatchSize),
	)
}

// Partitions is every month of the configured year range.
func (c *Config) Partitions() []core.PartitionKey {
	return core.Partitions(c.Pipeline.StartYear, c.Pipeline.EndYear)
}

// LoadEnv loads environment variables from a .env file, searching up the
// directory tree from the working directory. Variables already set win.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return nil
}
