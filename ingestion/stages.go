package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cyclicism/crunch/ai"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/panjf2000/ants/v2"
)

// IndexStage embeds one field of each archive article and upserts the
// vectors. Embedding calls run on a dedicated pool so that CPU-bound local
// models do not starve workers waiting on I/O.
type IndexStage struct {
	embedder    ai.Embedder
	store       storage.VectorStore
	field       nyt.Field
	pool        *ants.Pool
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

var _ Stage[nyt.ScrapedArticle, core.Point] = (*IndexStage)(nil)

// IndexOption configures an IndexStage.
type IndexOption func(*IndexStage) error

// WithEmbedPoolSize sets how many embedding calls may run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithEmbedPoolSize(size int) IndexOption {
	return func(s *IndexStage) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
		return nil
	}
}

// WithRetry retries failed embedding calls with exponential backoff.
// Default is 3 attempts starting at 500ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) IndexOption {
	return func(s *IndexStage) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.maxAttempts = maxAttempts
		s.baseDelay = baseDelay
		return nil
	}
}

// WithIndexLogger sets a custom logger.
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(s *IndexStage) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewIndexStage creates a stage that embeds field into store.
// Call Release when done.
func NewIndexStage(embedder ai.Embedder, store storage.VectorStore, field nyt.Field, opts ...IndexOption) (*IndexStage, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if field == nil {
		return nil, ErrFieldRequired
	}

	s := &IndexStage{
		embedder:    embedder,
		store:       store,
		field:       field,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	if s.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	s.logger = s.logger.With("component", "index", "field", field.Name())
	return s, nil
}

// Transform extracts the configured field. Articles without a uri, a
// parseable date or text for the field are dropped.
func (s *IndexStage) Transform(a nyt.ScrapedArticle) (core.Point, bool) {
	return nyt.Transform(&a, s.field)
}

// Persist embeds the chunk and upserts it. Nothing is written unless
// every point received a vector.
func (s *IndexStage) Persist(ctx context.Context, key core.PartitionKey, points []core.Point) error {
	texts := make([]string, len(points))
	for i := range points {
		texts[i] = points[i].Text
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != len(points) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingCountMismatch, len(vectors), len(points))
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}

	if err := s.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.logger.Debug("indexed chunk", "partition", key.String(), "points", len(points))
	return nil
}

type embedResult struct {
	vectors [][]float32
	err     error
}

// embed runs the batched call on the embedding pool and waits for it.
func (s *IndexStage) embed(ctx context.Context, texts []string) ([][]float32, error) {
	done := make(chan embedResult, 1)
	err := s.pool.Submit(func() {
		var vectors [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedTexts(ctx, texts)
			return embedErr
		}, s.maxAttempts, s.baseDelay)
		done <- embedResult{vectors: vectors, err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit embedding task: %w", err)
	}

	select {
	case r := <-done:
		return r.vectors, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release stops the embedding pool.
func (s *IndexStage) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// LoadStage upserts archive articles into the relational store.
type LoadStage struct {
	repo storage.ArticleRepository
}

var _ Stage[nyt.ScrapedArticle, nyt.ScrapedArticle] = (*LoadStage)(nil)

// NewLoadStage creates a stage writing to repo.
func NewLoadStage(repo storage.ArticleRepository) (*LoadStage, error) {
	if repo == nil {
		return nil, ErrStoreRequired
	}
	return &LoadStage{repo: repo}, nil
}

// Transform drops articles without a uri, the natural key.
func (s *LoadStage) Transform(a nyt.ScrapedArticle) (nyt.ScrapedArticle, bool) {
	return a, a.URI != ""
}

// Persist upserts the chunk by uri in one store transaction.
func (s *LoadStage) Persist(ctx context.Context, key core.PartitionKey, batch []nyt.ScrapedArticle) error {
	if err := s.repo.UpsertArchiveArticles(ctx, batch); err != nil {
		return fmt.Errorf("%w: %d articles of %s: %w", ErrPersist, len(batch), key, err)
	}
	return nil
}

// PayloadStage rewrites the payload of points already in the vector store,
// leaving their vectors alone.
type PayloadStage struct {
	store storage.VectorStore
	field nyt.Field
}

var _ Stage[nyt.ScrapedArticle, core.Point] = (*PayloadStage)(nil)

// NewPayloadStage creates a stage repairing payloads of field's points.
func NewPayloadStage(store storage.VectorStore, field nyt.Field) (*PayloadStage, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if field == nil {
		return nil, ErrFieldRequired
	}
	return &PayloadStage{store: store, field: field}, nil
}

// Transform keeps the articles the index stage would have embedded.
func (s *PayloadStage) Transform(a nyt.ScrapedArticle) (core.Point, bool) {
	return nyt.Transform(&a, s.field)
}

// Persist overwrites the payloads of the chunk as one write. A point
// missing from the store fails the whole chunk.
func (s *PayloadStage) Persist(ctx context.Context, key core.PartitionKey, points []core.Point) error {
	if err := s.store.OverwritePayloads(ctx, points); err != nil {
		return fmt.Errorf("%w: %d payloads of %s: %w", ErrPersist, len(points), key, err)
	}
	return nil
}
