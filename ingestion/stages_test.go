package ingestion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/cyclicism/crunch/ai/mock"
	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/cyclicism/crunch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// memoryLoader serves archive articles from a map.
type memoryLoader map[core.PartitionKey][]nyt.ScrapedArticle

func (l memoryLoader) Describe(key core.PartitionKey) string { return key.String() }

func (l memoryLoader) Load(_ context.Context, key core.PartitionKey) ([]nyt.ScrapedArticle, error) {
	docs, ok := l[key]
	if !ok {
		return nil, nyt.ErrPartitionNotFound
	}
	return docs, nil
}

func articles(key core.PartitionKey, n int) []nyt.ScrapedArticle {
	out := make([]nyt.ScrapedArticle, n)
	for i := range out {
		out[i] = nyt.ScrapedArticle{
			URI:          fmt.Sprintf("nyt://article/%s/%d", key, i),
			PubDate:      fmt.Sprintf("%04d-%02d-01T05:00:00+0000", key.Year, key.Month),
			Headline:     nyt.ScrapedHeadline{Main: fmt.Sprintf("Headline %s %d", key, i)},
			DocumentType: "article",
			NewsDesk:     "Metro",
		}
	}
	return out
}

func memoryStores(t *testing.T) *badger.Stores {
	t.Helper()
	stores, err := badger.NewMemoryStores(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func newMockEmbedder() *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.Dim = testDim
	return e
}

func TestNewIndexStage_Validation(t *testing.T) {
	stores := memoryStores(t)
	_, err := NewIndexStage(nil, stores.Vectors, nyt.HeadlineMain)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewIndexStage(newMockEmbedder(), nil, nyt.HeadlineMain)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = NewIndexStage(newMockEmbedder(), stores.Vectors, nil)
	assert.ErrorIs(t, err, ErrFieldRequired)
	_, err = NewIndexStage(newMockEmbedder(), stores.Vectors, nyt.HeadlineMain, WithRetry(0, 0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestIndexStage_130Records(t *testing.T) {
	stores := memoryStores(t)
	embedder := newMockEmbedder()
	key := core.PartitionKey{Year: 1987, Month: 10}

	stage, err := NewIndexStage(embedder, stores.Vectors, nyt.HeadlineMain, WithEmbedPoolSize(2))
	require.NoError(t, err)
	defer stage.Release()

	p, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: articles(key, 130)}, stage, WithWorkers(1))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, []int{64, 64, 2}, embedder.BatchSizes())
	assert.Equal(t, 130, summary.Persisted)

	results, err := stores.Vectors.QueryTopK(context.Background(),
		mock.DeterministicVector("Headline 1987_10 7", testDim), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "nyt://article/1987_10/7", results[0].Info.URI)
	assert.Equal(t, 1987, results[0].Info.Year)
}

func TestIndexStage_DropsMalformed(t *testing.T) {
	stores := memoryStores(t)
	embedder := newMockEmbedder()
	key := core.PartitionKey{Year: 1987, Month: 10}
	docs := articles(key, 10)
	docs[0].PubDate = "yesterday"
	docs[1].Headline.Main = "  "
	docs[2].URI = ""

	stage, err := NewIndexStage(embedder, stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer stage.Release()

	p, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: docs}, stage, WithWorkers(1))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Dropped)
	assert.Equal(t, []int{7}, embedder.BatchSizes())
}

func TestIndexStage_EmbeddingFailurePersistsNothing(t *testing.T) {
	stores := memoryStores(t)
	embedder := newMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("model crashed")
	}
	key := core.PartitionKey{Year: 1990, Month: 1}

	stage, err := NewIndexStage(embedder, stores.Vectors, nyt.HeadlineMain, WithRetry(2, time.Millisecond))
	require.NoError(t, err)
	defer stage.Release()

	points := make([]core.Point, 0)
	for _, a := range articles(key, 3) {
		pt, ok := stage.Transform(a)
		require.True(t, ok)
		points = append(points, pt)
	}

	err = stage.Persist(context.Background(), key, points)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, 2, embedder.CallCount())

	results, err := stores.Vectors.QueryTopK(context.Background(), mock.DeterministicVector(points[0].Text, testDim), 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexStage_CountMismatch(t *testing.T) {
	stores := memoryStores(t)
	embedder := newMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{mock.DeterministicVector(texts[0], testDim)}, nil
	}
	key := core.PartitionKey{Year: 1990, Month: 1}

	stage, err := NewIndexStage(embedder, stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer stage.Release()

	var points []core.Point
	for _, a := range articles(key, 2) {
		pt, _ := stage.Transform(a)
		points = append(points, pt)
	}
	err = stage.Persist(context.Background(), key, points)
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
}

func TestIndexStage_DimensionMismatchIsPersistError(t *testing.T) {
	stores := memoryStores(t)
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim + 1
	key := core.PartitionKey{Year: 1990, Month: 1}

	stage, err := NewIndexStage(embedder, stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer stage.Release()

	pt, ok := stage.Transform(articles(key, 1)[0])
	require.True(t, ok)
	err = stage.Persist(context.Background(), key, []core.Point{pt})
	assert.ErrorIs(t, err, ErrPersist)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestIndexStage_Idempotent(t *testing.T) {
	stores := memoryStores(t)
	key := core.PartitionKey{Year: 1995, Month: 3}
	loader := memoryLoader{key: articles(key, 5)}

	stage, err := NewIndexStage(newMockEmbedder(), stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer stage.Release()

	p, err := NewPipeline[nyt.ScrapedArticle, core.Point](loader, stage, WithWorkers(1))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := p.Run(context.Background(), []core.PartitionKey{key})
		require.NoError(t, err)
	}

	results, err := stores.Vectors.QueryTopK(context.Background(),
		mock.DeterministicVector("Headline 1995_3 0", testDim), 100)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestLoadStage(t *testing.T) {
	stores := memoryStores(t)
	key := core.PartitionKey{Year: 1969, Month: 7}
	docs := articles(key, 4)
	docs[3].URI = ""

	stage, err := NewLoadStage(stores.Articles)
	require.NoError(t, err)

	p, err := NewPipeline[nyt.ScrapedArticle, nyt.ScrapedArticle](memoryLoader{key: docs}, stage, WithWorkers(2))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Persisted)
	assert.Equal(t, 1, summary.Dropped)

	got, err := stores.Articles.GetArticle(context.Background(), docs[1].URI)
	require.NoError(t, err)
	assert.Equal(t, docs[1].Headline.Main, got.HeadlineMain)

	_, err = NewLoadStage(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

// brokenArticles blanks the uri of the record at failAt in every batch, so
// the wrapped store rejects the batch partway through its transaction.
type brokenArticles struct {
	storage.ArticleRepository
	failAt int
}

func (r brokenArticles) UpsertArchiveArticles(ctx context.Context, batch []nyt.ScrapedArticle) error {
	batch = slices.Clone(batch)
	if r.failAt < len(batch) {
		batch[r.failAt].URI = ""
	}
	return r.ArticleRepository.UpsertArchiveArticles(ctx, batch)
}

func TestLoadStage_FailedChunkPersistsNothing(t *testing.T) {
	stores := memoryStores(t)
	ctx := context.Background()
	key := core.PartitionKey{Year: 1969, Month: 7}
	docs := articles(key, 4)

	stage, err := NewLoadStage(brokenArticles{ArticleRepository: stores.Articles, failAt: 2})
	require.NoError(t, err)

	p, err := NewPipeline[nyt.ScrapedArticle, nyt.ScrapedArticle](memoryLoader{key: docs}, stage, WithWorkers(1))
	require.NoError(t, err)

	summary, err := p.Run(ctx, []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Persisted)
	require.Len(t, summary.Events, 1)
	assert.ErrorIs(t, summary.Events[0].Err, ErrPersist)
	assert.ErrorIs(t, summary.Events[0].Err, core.ErrEmptyURI)

	for _, d := range docs {
		_, err := stores.Articles.GetArticle(ctx, d.URI)
		assert.ErrorIs(t, err, storage.ErrNotFound, d.URI)
	}
}

func TestPayloadStage_FailedChunkPersistsNothing(t *testing.T) {
	stores := memoryStores(t)
	ctx := context.Background()
	key := core.PartitionKey{Year: 2003, Month: 2}
	docs := articles(key, 4)

	// the third article never reaches the vector store
	indexed := slices.Delete(slices.Clone(docs), 2, 3)
	index, err := NewIndexStage(newMockEmbedder(), stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer index.Release()
	p, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: indexed}, index, WithWorkers(1))
	require.NoError(t, err)
	_, err = p.Run(ctx, []core.PartitionKey{key})
	require.NoError(t, err)

	for i := range docs {
		docs[i].NewsDesk = "Science"
	}
	repair, err := NewPayloadStage(stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	p2, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: docs}, repair, WithWorkers(1))
	require.NoError(t, err)
	summary, err := p2.Run(ctx, []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Persisted)
	require.Len(t, summary.Events, 1)
	assert.ErrorIs(t, summary.Events[0].Err, storage.ErrNotFound)

	results, err := stores.Vectors.QueryTopK(ctx, mock.DeterministicVector(docs[0].Headline.Main, testDim), 4)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "Metro", r.Info.NewsDesk)
	}
}

func TestPayloadStage(t *testing.T) {
	stores := memoryStores(t)
	ctx := context.Background()
	key := core.PartitionKey{Year: 2003, Month: 2}
	docs := articles(key, 3)

	index, err := NewIndexStage(newMockEmbedder(), stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	defer index.Release()
	p, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: docs}, index, WithWorkers(1))
	require.NoError(t, err)
	_, err = p.Run(ctx, []core.PartitionKey{key})
	require.NoError(t, err)

	for i := range docs {
		docs[i].NewsDesk = "Science"
	}
	repair, err := NewPayloadStage(stores.Vectors, nyt.HeadlineMain)
	require.NoError(t, err)
	p2, err := NewPipeline[nyt.ScrapedArticle, core.Point](memoryLoader{key: docs}, repair, WithWorkers(1))
	require.NoError(t, err)
	summary, err := p2.Run(ctx, []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Zero(t, summary.Errors)

	results, err := stores.Vectors.QueryTopK(ctx, mock.DeterministicVector(docs[0].Headline.Main, testDim), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "Science", r.Info.NewsDesk)
	}
}
