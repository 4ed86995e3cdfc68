package badger

import (
	"context"
	"fmt"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/dgraph-io/badger/v4"
)

// ArticleRepository implements storage.ArticleRepository for BadgerDB.
// Articles are stored in display form under their URI; contemporary
// articles are also indexed by publication day.
type ArticleRepository struct {
	backend *Backend
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// storedArticle keeps the raw snippet; it is cleaned on read.
type storedArticle struct {
	Article      core.FrontendArticle `json:"article"`
	Contemporary bool                 `json:"contemporary"`
}

// NewArticleRepository creates a new ArticleRepository.
func NewArticleRepository(backend *Backend) *ArticleRepository {
	return &ArticleRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *ArticleRepository) Close() error {
	return nil
}

// UpsertArchiveArticle stores an archive record with its headline and
// first image.
func (r *ArticleRepository) UpsertArchiveArticle(ctx context.Context, article *nyt.ScrapedArticle) error {
	if article == nil {
		return core.ErrEmptyURI
	}
	return r.UpsertArchiveArticles(ctx, []nyt.ScrapedArticle{*article})
}

// UpsertArchiveArticles stores a batch of archive records in a single
// transaction. A record without a URI aborts the whole batch.
func (r *ArticleRepository) UpsertArchiveArticles(ctx context.Context, articles []nyt.ScrapedArticle) error {
	if len(articles) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for i := range articles {
			if err := putArchive(tx, &articles[i]); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

func putArchive(tx *badger.Txn, article *nyt.ScrapedArticle) error {
	if article.URI == "" {
		return core.ErrEmptyURI
	}
	key := makeArticleKey(article.URI)
	var old storedArticle
	found, err := getJSON(tx, key, &old)
	if err != nil {
		return err
	}
	if found && old.Contemporary {
		a := old.Article
		if err := tx.Delete(makeArticleDateKey(a.Year, a.Month, a.Day, a.URI)); err != nil {
			return err
		}
	}
	return putJSON(tx, key, storedArticle{Article: article.Frontend()})
}

// UpsertContemporaryArticle stores a homepage record and moves its date
// index entry if the publication day changed.
func (r *ArticleRepository) UpsertContemporaryArticle(ctx context.Context, article *nyt.ContemporaryArticle) error {
	if article == nil || article.URI == "" {
		return core.ErrEmptyURI
	}
	front, err := article.Frontend()
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeArticleKey(article.URI)

		var old storedArticle
		found, err := getJSON(tx, key, &old)
		if err != nil {
			return err
		}
		if found && old.Contemporary {
			a := old.Article
			if a.Year != front.Year || a.Month != front.Month || a.Day != front.Day {
				if err := tx.Delete(makeArticleDateKey(a.Year, a.Month, a.Day, a.URI)); err != nil {
					return err
				}
			}
		}

		if err := putJSON(tx, key, storedArticle{Article: front, Contemporary: true}); err != nil {
			return err
		}
		return tx.Set(makeArticleDateKey(front.Year, front.Month, front.Day, front.URI), []byte(front.URI))
	}, true)
}

// GetArticle returns the display form of an article.
func (r *ArticleRepository) GetArticle(ctx context.Context, uri string) (*core.FrontendArticle, error) {
	var result *core.FrontendArticle
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readArticle(tx, uri)
		return err
	}, false)
	return result, err
}

// ContemporaryOnDate lists the contemporary articles of one day in URI order.
func (r *ArticleRepository) ContemporaryOnDate(ctx context.Context, year, month, day int) ([]*core.FrontendArticle, error) {
	if !core.IsValidDate(year, month, day) {
		return nil, fmt.Errorf("%w: %04d-%02d-%02d", core.ErrInvalidDate, year, month, day)
	}
	var results []*core.FrontendArticle
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var uris []string
		err := scanPrefix(tx, makeArticleDatePrefix(year, month, day), func(_, val []byte) (bool, error) {
			uris = append(uris, string(val))
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, uri := range uris {
			article, err := r.readArticle(tx, uri)
			if err != nil {
				return err
			}
			results = append(results, article)
		}
		return nil
	}, false)
	return results, err
}

func (r *ArticleRepository) readArticle(tx *badger.Txn, uri string) (*core.FrontendArticle, error) {
	var stored storedArticle
	found, err := getJSON(tx, makeArticleKey(uri), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: article %s", storage.ErrNotFound, uri)
	}
	article := stored.Article
	article.Snippet = nyt.CleanSnippet(article.Snippet)
	return &article, nil
}
