package badger

import (
	"context"
	"testing"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveArticle(uri, headline string) *nyt.ScrapedArticle {
	caption := "A caption"
	return &nyt.ScrapedArticle{
		URI:          uri,
		WebURL:       "https://example.com/" + uri,
		Snippet:      "Snippet with <b>markup</b>.",
		Headline:     nyt.ScrapedHeadline{Main: headline},
		PubDate:      "1987-10-19T05:00:00+0000",
		DocumentType: "article",
		NewsDesk:     "Financial Desk",
		Multimedia:   []nyt.ScrapedMultimedia{{URL: "images/a.jpg", Caption: &caption}, {URL: "images/b.jpg"}},
	}
}

func contemporaryArticle(uri, published string) *nyt.ContemporaryArticle {
	return &nyt.ContemporaryArticle{
		URI:           uri,
		URL:           "https://example.com/" + uri,
		Title:         "Title " + uri,
		Abstract:      "Abstract " + uri,
		Section:       "us",
		ItemType:      "Article",
		PublishedDate: published,
	}
}

func TestArticleRepository_Archive(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()
	repo := stores.Articles

	require.NoError(t, repo.UpsertArchiveArticle(ctx, archiveArticle("nyt://a/1", "Black Monday")))

	got, err := repo.GetArticle(ctx, "nyt://a/1")
	require.NoError(t, err)
	assert.Equal(t, "Black Monday", got.HeadlineMain)
	assert.Equal(t, "Snippet with markup.", got.Snippet)
	assert.Equal(t, 1987, got.Year)
	assert.Equal(t, 10, got.Month)
	assert.Equal(t, 19, got.Day)
	require.NotNil(t, got.Image)
	assert.Equal(t, "images/a.jpg", got.Image.URL)
	assert.Equal(t, "A caption", got.Image.Caption)

	// last write wins
	require.NoError(t, repo.UpsertArchiveArticle(ctx, archiveArticle("nyt://a/1", "Stocks Plunge")))
	got, err = repo.GetArticle(ctx, "nyt://a/1")
	require.NoError(t, err)
	assert.Equal(t, "Stocks Plunge", got.HeadlineMain)
}

func TestArticleRepository_ArchiveBatchIsAtomic(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()
	repo := stores.Articles

	batch := []nyt.ScrapedArticle{
		*archiveArticle("nyt://a/1", "One"),
		*archiveArticle("nyt://a/2", "Two"),
		*archiveArticle("", "Broken"),
		*archiveArticle("nyt://a/4", "Four"),
	}
	assert.ErrorIs(t, repo.UpsertArchiveArticles(ctx, batch), core.ErrEmptyURI)
	for _, uri := range []string{"nyt://a/1", "nyt://a/2", "nyt://a/4"} {
		_, err := repo.GetArticle(ctx, uri)
		assert.ErrorIs(t, err, storage.ErrNotFound, uri)
	}

	batch[2].URI = "nyt://a/3"
	require.NoError(t, repo.UpsertArchiveArticles(ctx, batch))
	got, err := repo.GetArticle(ctx, "nyt://a/3")
	require.NoError(t, err)
	assert.Equal(t, "Broken", got.HeadlineMain)
}

func TestArticleRepository_NotFound(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()

	_, err = stores.Articles.GetArticle(context.Background(), "nyt://missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestArticleRepository_RejectsEmptyURI(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()

	assert.ErrorIs(t, stores.Articles.UpsertArchiveArticle(ctx, archiveArticle("", "x")), core.ErrEmptyURI)
	assert.ErrorIs(t, stores.Articles.UpsertContemporaryArticle(ctx, contemporaryArticle("", "2024-01-01T00:00:00Z")), core.ErrEmptyURI)
}

func TestArticleRepository_ContemporaryOnDate(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()
	repo := stores.Articles

	require.NoError(t, repo.UpsertContemporaryArticle(ctx, contemporaryArticle("nyt://c/b", "2024-03-05T09:00:00-05:00")))
	require.NoError(t, repo.UpsertContemporaryArticle(ctx, contemporaryArticle("nyt://c/a", "2024-03-05T18:30:00-05:00")))
	require.NoError(t, repo.UpsertContemporaryArticle(ctx, contemporaryArticle("nyt://c/x", "2024-03-06T09:00:00-05:00")))

	day, err := repo.ContemporaryOnDate(ctx, 2024, 3, 5)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "nyt://c/a", day[0].URI)
	assert.Equal(t, "nyt://c/b", day[1].URI)
	assert.Equal(t, "Title nyt://c/a", day[0].HeadlineMain)

	// moving an article to another day removes it from the old one
	require.NoError(t, repo.UpsertContemporaryArticle(ctx, contemporaryArticle("nyt://c/b", "2024-03-06T07:00:00-05:00")))
	day, err = repo.ContemporaryOnDate(ctx, 2024, 3, 5)
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "nyt://c/a", day[0].URI)

	next, err := repo.ContemporaryOnDate(ctx, 2024, 3, 6)
	require.NoError(t, err)
	assert.Len(t, next, 2)

	empty, err := repo.ContemporaryOnDate(ctx, 1999, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.ContemporaryOnDate(ctx, 2024, 2, 30)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestArticleRepository_ContemporaryBadDate(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()

	err = stores.Articles.UpsertContemporaryArticle(context.Background(), contemporaryArticle("nyt://c/1", "yesterday"))
	assert.ErrorIs(t, err, nyt.ErrInvalidPubDate)
}
