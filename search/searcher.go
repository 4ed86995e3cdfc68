package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cyclicism/crunch/ai"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
)

// Searcher finds past articles whose embedded field resembles a headline.
type Searcher struct {
	embedder ai.Embedder
	vectors  storage.VectorStore
	articles storage.ArticleRepository
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	embedder ai.Embedder,
	vectors storage.VectorStore,
	articles storage.ArticleRepository,
	opts ...Option,
) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if articles == nil {
		return nil, ErrArticleRepositoryRequired
	}

	s := &Searcher{
		embedder: embedder,
		vectors:  vectors,
		articles: articles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// FindSimilar returns up to k past articles most similar to headline, best
// first.
func (s *Searcher) FindSimilar(ctx context.Context, headline string, k int) ([]*core.FrontendArticle, error) {
	matches, err := s.FindSimilarWithMonitor(ctx, headline, k, nil)
	if err != nil {
		return nil, err
	}
	articles := make([]*core.FrontendArticle, len(matches))
	for i, m := range matches {
		articles[i] = m.Article
	}
	return articles, nil
}

// FindSimilarWithMonitor is FindSimilar with scores and a monitor that
// observes each step. Hits whose article is missing from the relational
// store are skipped.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, headline string, k int, monitor SearchMonitor) ([]core.PastMatch, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	monitor.Start(headline)

	embedding, err := s.embedder.EmbedText(ctx, headline)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", headline, "err", err)
		return nil, err
	}

	hits, err := s.vectors.QueryTopK(ctx, embedding, k)
	if err != nil {
		s.logger.Error("error querying for similar articles", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(hits)

	results := make([]core.PastMatch, 0, len(hits))
	for _, hit := range hits {
		article, err := s.articles.GetArticle(ctx, hit.Info.URI)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("indexed article missing from store", "uri", hit.Info.URI)
			monitor.MissingArticle(hit.Info.URI)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", hit.Info.URI, err)
		}
		results = append(results, core.PastMatch{Article: article, Score: hit.Score})
	}

	monitor.Finish(results)
	return results, nil
}
