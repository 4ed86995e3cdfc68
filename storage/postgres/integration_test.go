package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/migrations"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to CRUNCH_TEST_DATABASE_URL, migrates it and clears
// every table. The test is skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("CRUNCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRUNCH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, MigrateFS(ctx, pool, migrations.FS))
	_, err = pool.Exec(ctx, `TRUNCATE scraped_article, scraped_headline, scraped_multimedia,
		contemporary_article, contemporary_multimedia, combos, current`)
	require.NoError(t, err)
	return pool
}

func TestIntegration_Articles(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewArticleRepository(pool)

	caption := "Caption"
	a := &nyt.ScrapedArticle{
		URI:      "nyt://article/1",
		WebURL:   "https://example.com/1",
		Snippet:  "A <b>bold</b> snippet",
		PubDate:  "1985-07-13T05:00:00+0000",
		Headline: nyt.ScrapedHeadline{Main: "Live Aid"},
		Multimedia: []nyt.ScrapedMultimedia{
			{URL: "images/1.jpg", Caption: &caption},
		},
	}
	require.NoError(t, repo.UpsertArchiveArticle(ctx, a))
	a.Headline.Main = "Live Aid Concert"
	require.NoError(t, repo.UpsertArchiveArticle(ctx, a))

	got, err := repo.GetArticle(ctx, a.URI)
	require.NoError(t, err)
	assert.Equal(t, "Live Aid Concert", got.HeadlineMain)
	assert.Equal(t, "A bold snippet", got.Snippet)
	assert.Equal(t, 1985, got.Year)
	require.NotNil(t, got.Image)
	assert.Equal(t, "Caption", got.Image.Caption)

	c := &nyt.ContemporaryArticle{
		URI:           "nyt://article/today",
		URL:           "https://example.com/today",
		Title:         "Today",
		PublishedDate: "2024-03-05T09:00:00-05:00",
	}
	require.NoError(t, repo.UpsertContemporaryArticle(ctx, c))

	day, err := repo.ContemporaryOnDate(ctx, 2024, 3, 5)
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "Today", day[0].HeadlineMain)
	assert.Nil(t, day[0].Image)

	got, err = repo.GetArticle(ctx, c.URI)
	require.NoError(t, err)
	assert.Equal(t, "Today", got.HeadlineMain)

	_, err = repo.GetArticle(ctx, "nyt://missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_ArchiveBatchIsAtomic(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewArticleRepository(pool)

	batch := []nyt.ScrapedArticle{
		{URI: "nyt://article/ok", PubDate: "1985-07-13T05:00:00+0000", Headline: nyt.ScrapedHeadline{Main: "Fine"}},
		{URI: "nyt://article/bad", PubDate: "1985-07-13T05:00:00+0000", Snippet: "nul \x00 byte"},
	}
	require.Error(t, repo.UpsertArchiveArticles(ctx, batch))

	_, err := repo.GetArticle(ctx, "nyt://article/ok")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	batch[1].Snippet = "clean"
	require.NoError(t, repo.UpsertArchiveArticles(ctx, batch))
	got, err := repo.GetArticle(ctx, "nyt://article/ok")
	require.NoError(t, err)
	assert.Equal(t, "Fine", got.HeadlineMain)
}

func TestUpsertArchiveArticles_EmptyURI(t *testing.T) {
	repo := NewArticleRepository(nil)
	err := repo.UpsertArchiveArticles(context.Background(), []nyt.ScrapedArticle{{URI: "nyt://a"}, {}})
	assert.ErrorIs(t, err, core.ErrEmptyURI)
	assert.NoError(t, repo.UpsertArchiveArticles(context.Background(), nil))
}

func TestIntegration_Combos(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewComboRepository(pool)

	has, err := repo.HasCombos(ctx, "c")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.AddCombo(ctx, core.Combo{ContemporaryURI: "c", PastURI: "p1", Score: 0.4}))
	require.NoError(t, repo.AddCombo(ctx, core.Combo{ContemporaryURI: "c", PastURI: "p2", Score: 0.9}))
	require.NoError(t, repo.AddCombo(ctx, core.Combo{ContemporaryURI: "c", PastURI: "p2", Score: 0.9}))

	has, err = repo.HasCombos(ctx, "c")
	require.NoError(t, err)
	assert.True(t, has)

	combos, err := repo.CombosFor(ctx, "c")
	require.NoError(t, err)
	require.Len(t, combos, 3)
	assert.Equal(t, "p2", combos[0].PastURI)
	assert.Equal(t, "p1", combos[2].PastURI)

	require.NoError(t, repo.ReplaceCurrent(ctx, []string{"x", "y", "z"}))
	require.NoError(t, repo.ReplaceCurrent(ctx, []string{"b", "a"}))
	current, err := repo.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, current)
}
