// Copyright 2025 The Crunch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package crunch wires the configured stores and embedding provider
// together and builds the pipelines, searcher, updater and HTTP handler on
// top of them.
package crunch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cyclicism/crunch/ai"
	"github.com/cyclicism/crunch/ai/fastembed"
	"github.com/cyclicism/crunch/ai/openai"
	"github.com/cyclicism/crunch/api"
	"github.com/cyclicism/crunch/config"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/ingestion"
	"github.com/cyclicism/crunch/migrations"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/search"
	"github.com/cyclicism/crunch/storage"
	"github.com/cyclicism/crunch/storage/badger"
	"github.com/cyclicism/crunch/storage/neo4j"
	"github.com/cyclicism/crunch/storage/postgres"
	"github.com/cyclicism/crunch/storage/qdrant"
	"github.com/cyclicism/crunch/updater"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Job names used for checkpoints.
const (
	JobLoad  = "load"
	JobIndex = "index"
)

// ErrPostgresNotConfigured is returned by Migrate when no store uses
// PostgreSQL.
var ErrPostgresNotConfigured = errors.New("postgres is not configured")

// Database owns every store of one configuration. The badger database is
// always opened because it holds checkpoints; the other backends are opened
// only when a store selects them.
type Database struct {
	cfg        config.Config
	field      nyt.Field
	collection string
	logger     *slog.Logger

	stores      *badger.Stores
	pool        *pgxpool.Pool
	vectors     storage.VectorStore
	articles    storage.ArticleRepository
	combos      storage.ComboRepository
	checkpoints storage.CheckpointRepository

	mu           sync.Mutex
	provider     ai.Provider
	vectorsReady bool
	closers      []func() error
}

// Option configures a Database.
type Option func(*options)

type options struct {
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithProvider uses p instead of building a provider from the config. Its
// model and dimensions also name the vector collection.
func WithProvider(p ai.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithInMemoryBadger keeps the badger database in memory.
func WithInMemoryBadger() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg and connects every configured store.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Database, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	field, err := nyt.FieldByName(cfg.Embedding.Field)
	if err != nil {
		return nil, err
	}

	model, dim := cfg.Embedding.Model, cfg.Embedding.Dimensions
	if o.provider != nil {
		model, dim = o.provider.Model(), o.provider.Dimensions()
	}

	db := &Database{
		cfg:        cfg,
		field:      field,
		collection: storage.CollectionName(field.Name(), model, storage.DistanceCosine),
		logger:     o.logger.With("component", "crunch"),
		provider:   o.provider,
	}
	if err := db.open(ctx, o.inMemory, dim); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) open(ctx context.Context, inMemory bool, dim int) error {
	var err error
	if inMemory {
		db.stores, err = badger.NewMemoryStores(dim)
	} else {
		db.stores, err = badger.Open(db.cfg.Badger.Path, db.collection, dim)
	}
	if err != nil {
		return fmt.Errorf("failed to open badger: %w", err)
	}
	db.closers = append(db.closers, db.stores.Close)
	db.vectors = db.stores.Vectors
	db.articles = db.stores.Articles
	db.combos = db.stores.Combos
	db.checkpoints = db.stores.Checkpoints

	stores := db.cfg.Stores
	if stores.Articles == config.BackendPostgres || stores.Combos == config.BackendPostgres {
		db.pool, err = postgres.Connect(ctx, db.cfg.Postgres.URL, db.cfg.Postgres.MaxConns)
		if err != nil {
			return err
		}
		db.closers = append(db.closers, func() error { db.pool.Close(); return nil })
		if stores.Articles == config.BackendPostgres {
			db.articles = postgres.NewArticleRepository(db.pool)
		}
		if stores.Combos == config.BackendPostgres {
			db.combos = postgres.NewComboRepository(db.pool)
		}
	}

	if stores.Vectors == config.BackendQdrant {
		q := db.cfg.Qdrant
		store, err := qdrant.New(qdrant.Config{Host: q.Host, Port: q.Port, APIKey: q.APIKey, UseTLS: q.UseTLS}, db.collection, dim)
		if err != nil {
			return err
		}
		db.closers = append(db.closers, store.Close)
		db.vectors = store
	}

	if stores.Combos == config.BackendNeo4j {
		n := db.cfg.Neo4j
		repo, err := neo4j.NewComboRepository(ctx, neo4j.Config{URI: n.URI, User: n.User, Password: n.Password, Database: n.Database})
		if err != nil {
			return err
		}
		db.closers = append(db.closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		db.combos = repo
	}

	db.logger.Debug("stores opened",
		"vectors", stores.Vectors, "articles", stores.Articles, "combos", stores.Combos,
		"collection", db.collection)
	return nil
}

// Close releases the provider and every store in reverse opening order.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var errs []error
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
		db.provider = nil
	}
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i](); err != nil {
			db.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	db.closers = nil
	return errors.Join(errs...)
}

func (db *Database) Config() config.Config { return db.cfg }

func (db *Database) Field() nyt.Field { return db.field }

func (db *Database) Collection() string { return db.collection }

func (db *Database) Articles() storage.ArticleRepository { return db.articles }

func (db *Database) Combos() storage.ComboRepository { return db.combos }

func (db *Database) Checkpoints() storage.CheckpointRepository { return db.checkpoints }

// Provider returns the embedding provider, building it on first use.
func (db *Database) Provider() (ai.Provider, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.provider != nil {
		return db.provider, nil
	}

	var (
		p   ai.Provider
		err error
	)
	switch db.cfg.Embedding.Provider {
	case config.ProviderFastembed:
		p, err = fastembed.NewProvider(db.cfg.AI())
	default:
		p, err = openai.NewProvider(db.cfg.AI())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", db.cfg.Embedding.Provider, err)
	}
	db.provider = p
	return p, nil
}

// Vectors returns the vector store after making sure its collection exists.
func (db *Database) Vectors(ctx context.Context) (storage.VectorStore, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.vectorsReady {
		if err := db.vectors.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure collection %s: %w", db.collection, err)
		}
		db.vectorsReady = true
	}
	return db.vectors, nil
}

// Migrate applies the .sql files in dir, or the embedded schema when dir is
// empty.
func (db *Database) Migrate(ctx context.Context, dir string) error {
	if db.pool == nil {
		return ErrPostgresNotConfigured
	}
	if dir == "" {
		return postgres.MigrateFS(ctx, db.pool, migrations.FS)
	}
	return postgres.Migrate(ctx, db.pool, dir)
}

// Client returns an archive API client for the configured key.
func (db *Database) Client() (*nyt.Client, error) {
	return nyt.NewClient(db.cfg.NYT.APIKey,
		nyt.WithBaseURL(db.cfg.NYT.BaseURL),
		nyt.WithClientLogger(db.logger))
}

// Loader reads archive months from the data directory, or from the API
// when fromAPI is set.
func (db *Database) Loader(fromAPI bool) (ingestion.Loader[nyt.ScrapedArticle], error) {
	if !fromAPI {
		return &nyt.FileLoader{Dir: db.cfg.NYT.DataDir}, nil
	}
	client, err := db.Client()
	if err != nil {
		return nil, err
	}
	return &nyt.APILoader{Client: client}, nil
}

func (db *Database) pipelineOptions(workers int, opts []ingestion.Option) ([]ingestion.Option, error) {
	policy, err := ingestion.ParseFailurePolicy(db.cfg.Pipeline.FailurePolicy)
	if err != nil {
		return nil, err
	}
	defaults := []ingestion.Option{
		ingestion.WithWorkers(workers),
		ingestion.WithChunkSize(db.cfg.Pipeline.ChunkSize),
		ingestion.WithFailurePolicy(policy),
		ingestion.WithLogger(db.logger),
	}
	return append(defaults, opts...), nil
}

// NewLoadPipeline builds the bulk relational loader.
func (db *Database) NewLoadPipeline(loader ingestion.Loader[nyt.ScrapedArticle], opts ...ingestion.Option) (*ingestion.Pipeline[nyt.ScrapedArticle, nyt.ScrapedArticle], error) {
	stage, err := ingestion.NewLoadStage(db.articles)
	if err != nil {
		return nil, err
	}
	all, err := db.pipelineOptions(db.cfg.Pipeline.LoadWorkers, opts)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline[nyt.ScrapedArticle, nyt.ScrapedArticle](loader, stage, all...)
}

// NewIndexPipeline builds the bulk indexer. Its embedding pool is released
// by Close.
func (db *Database) NewIndexPipeline(ctx context.Context, loader ingestion.Loader[nyt.ScrapedArticle], opts ...ingestion.Option) (*ingestion.Pipeline[nyt.ScrapedArticle, core.Point], error) {
	provider, err := db.Provider()
	if err != nil {
		return nil, err
	}
	vectors, err := db.Vectors(ctx)
	if err != nil {
		return nil, err
	}
	stage, err := ingestion.NewIndexStage(provider.Embedder(), vectors, db.field,
		ingestion.WithEmbedPoolSize(db.cfg.Pipeline.IndexWorkers),
		ingestion.WithIndexLogger(db.logger))
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.closers = append(db.closers, func() error { stage.Release(); return nil })
	db.mu.Unlock()

	all, err := db.pipelineOptions(db.cfg.Pipeline.IndexWorkers, opts)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline[nyt.ScrapedArticle, core.Point](loader, stage, all...)
}

// NewRepairPipeline builds a pipeline that rewrites vector payloads from
// the archive without embedding anything.
func (db *Database) NewRepairPipeline(ctx context.Context, loader ingestion.Loader[nyt.ScrapedArticle], opts ...ingestion.Option) (*ingestion.Pipeline[nyt.ScrapedArticle, core.Point], error) {
	vectors, err := db.Vectors(ctx)
	if err != nil {
		return nil, err
	}
	stage, err := ingestion.NewPayloadStage(vectors, db.field)
	if err != nil {
		return nil, err
	}
	all, err := db.pipelineOptions(db.cfg.Pipeline.IndexWorkers, opts)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline[nyt.ScrapedArticle, core.Point](loader, stage, all...)
}

// NewSearcher builds a headline searcher over the indexed archive.
func (db *Database) NewSearcher(ctx context.Context, opts ...search.Option) (*search.Searcher, error) {
	provider, err := db.Provider()
	if err != nil {
		return nil, err
	}
	vectors, err := db.Vectors(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]search.Option{search.WithLogger(db.logger)}, opts...)
	return search.NewSearcher(provider.Embedder(), vectors, db.articles, opts...)
}

// NewUpdater builds the incremental homepage updater.
func (db *Database) NewUpdater(ctx context.Context, fetcher updater.HomepageFetcher, opts ...updater.Option) (*updater.Updater, error) {
	provider, err := db.Provider()
	if err != nil {
		return nil, err
	}
	vectors, err := db.Vectors(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]updater.Option{updater.WithLogger(db.logger)}, opts...)
	return updater.New(fetcher, provider.Embedder(), vectors, db.articles, db.combos, opts...)
}

// NewHandler builds the HTTP API handler.
func (db *Database) NewHandler(opts ...api.Option) (*api.Handler, error) {
	opts = append([]api.Option{api.WithLogger(db.logger)}, opts...)
	return api.NewHandler(db.articles, db.combos, opts...)
}
