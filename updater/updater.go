// Package updater refreshes the homepage snapshot: it finds past matches
// for every new contemporary article and replaces the current ranking.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cyclicism/crunch/ai"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
)

// DefaultTopK is the number of past matches stored per article.
const DefaultTopK = 10

var (
	// ErrFetcherRequired is returned when no homepage source is given.
	ErrFetcherRequired = errors.New("homepage fetcher required")
	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder required")
	// ErrStoreRequired is returned when a store is missing.
	ErrStoreRequired = errors.New("store required")
)

// HomepageFetcher returns the current homepage in rank order.
// *nyt.Client implements it.
type HomepageFetcher interface {
	FetchHomepage(ctx context.Context) ([]nyt.ContemporaryArticle, error)
}

// Result counts what one run did.
type Result struct {
	Fetched         int
	New             int
	Embedded        int
	CombosWritten   int
	PersistFailures int
}

// Updater runs one snapshot refresh per call to Run.
type Updater struct {
	fetcher  HomepageFetcher
	embedder ai.Embedder
	vectors  storage.VectorStore
	articles storage.ArticleRepository
	combos   storage.ComboRepository
	k        int
	logger   *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithTopK sets how many neighbours become combos. Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(u *Updater) {
		if k > 0 {
			u.k = k
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Updater) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// New creates an updater.
func New(
	fetcher HomepageFetcher,
	embedder ai.Embedder,
	vectors storage.VectorStore,
	articles storage.ArticleRepository,
	combos storage.ComboRepository,
	opts ...Option,
) (*Updater, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil || articles == nil || combos == nil {
		return nil, ErrStoreRequired
	}
	u := &Updater{
		fetcher:  fetcher,
		embedder: embedder,
		vectors:  vectors,
		articles: articles,
		combos:   combos,
		k:        DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "updater")
	return u, nil
}

// Run fetches the homepage, adds combos for articles that have none yet
// and replaces the current snapshot with the homepage order.
//
// Writing a combo or the contemporary article is best effort: failures are
// logged and counted, never returned. Fetch, embedding, lookup and the
// snapshot replacement are fatal.
func (u *Updater) Run(ctx context.Context) (Result, error) {
	var result Result

	homepage, err := u.fetcher.FetchHomepage(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch homepage: %w", err)
	}
	result.Fetched = len(homepage)

	unseen := u.filterNew(ctx, homepage)
	result.New = len(unseen)
	u.logger.Info("fetched homepage", "articles", result.Fetched, "new", result.New)

	for _, article := range unseen {
		vector, err := u.embedder.EmbedText(ctx, article.Title)
		if err != nil {
			return result, fmt.Errorf("failed to embed %s: %w", article.URI, err)
		}
		result.Embedded++

		matches, err := u.vectors.QueryTopK(ctx, vector, u.k)
		if err != nil {
			return result, fmt.Errorf("failed to query neighbours of %s: %w", article.URI, err)
		}

		for _, m := range matches {
			err := u.combos.AddCombo(ctx, core.Combo{
				ContemporaryURI: article.URI,
				PastURI:         m.Info.URI,
				Score:           m.Score,
			})
			if err != nil {
				result.PersistFailures++
				u.logger.Warn("failed to add combo", "contemporary", article.URI, "past", m.Info.URI, "err", err)
				continue
			}
			result.CombosWritten++
		}

		if err := u.articles.UpsertContemporaryArticle(ctx, article); err != nil {
			result.PersistFailures++
			u.logger.Warn("failed to upsert contemporary article", "uri", article.URI, "err", err)
		}
	}

	uris := make([]string, len(homepage))
	for i := range homepage {
		uris[i] = homepage[i].URI
	}
	if err := u.combos.ReplaceCurrent(ctx, uris); err != nil {
		return result, fmt.Errorf("failed to replace current snapshot: %w", err)
	}

	u.logger.Info("update finished",
		"embedded", result.Embedded,
		"combos", result.CombosWritten,
		"persistFailures", result.PersistFailures)
	return result, nil
}

// filterNew keeps the articles without combos. An article whose lookup
// fails is left out of this run.
func (u *Updater) filterNew(ctx context.Context, homepage []nyt.ContemporaryArticle) []*nyt.ContemporaryArticle {
	unseen := make([]*nyt.ContemporaryArticle, 0, len(homepage))
	for i := range homepage {
		has, err := u.combos.HasCombos(ctx, homepage[i].URI)
		if err != nil {
			u.logger.Warn("failed to check combos", "uri", homepage[i].URI, "err", err)
			continue
		}
		if !has {
			unseen = append(unseen, &homepage[i])
		}
	}
	return unseen
}
