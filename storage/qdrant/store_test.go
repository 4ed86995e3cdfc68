package qdrant

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/cyclicism/crunch/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInfo() core.CommonInfo {
	return core.CommonInfo{
		URI:            "nyt://article/1",
		Year:           1989,
		Month:          11,
		Day:            9,
		PrintSection:   "A",
		DocumentType:   "article",
		NewsDesk:       "Foreign Desk",
		TypeOfMaterial: "News",
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	info := sampleInfo()
	assert.Equal(t, info, payloadToInfo(infoToPayload(info)))

	info.PrintSection = ""
	payload := infoToPayload(info)
	_, ok := payload["print_section"]
	assert.False(t, ok)
	assert.Equal(t, info, payloadToInfo(payload))
}

func TestPayloadToInfo_MissingKeys(t *testing.T) {
	assert.Equal(t, core.CommonInfo{}, payloadToInfo(nil))
}

func TestToPointStruct(t *testing.T) {
	id := nyt.StableID("nyt://article/1")
	ps := toPointStruct(core.Point{ID: id, Vector: []float32{0.1, 0.2}, Info: sampleInfo()})
	assert.Equal(t, id.String(), ps.GetId().GetUuid())
	assert.Equal(t, "nyt://article/1", ps.GetPayload()["uri"].GetStringValue())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Host: "localhost"}, "", 3)
	assert.Error(t, err)
	_, err = New(Config{Host: "localhost"}, "c", 0)
	assert.Error(t, err)
}

func testStore(t *testing.T, dim int) *Store {
	t.Helper()
	host := os.Getenv("CRUNCH_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("CRUNCH_TEST_QDRANT_HOST not set")
	}
	port := DefaultPort
	if p := os.Getenv("CRUNCH_TEST_QDRANT_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}
	collection := storage.CollectionName("test", uuid.NewString(), storage.DistanceCosine)
	store, err := New(Config{Host: host, Port: port}, collection, dim)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(context.Background(), collection)
		store.Close()
	})
	require.NoError(t, store.EnsureCollection(context.Background()))
	return store
}

func TestIntegration_UpsertAndQuery(t *testing.T) {
	store := testStore(t, 3)
	ctx := context.Background()

	near := sampleInfo()
	far := sampleInfo()
	far.URI = "nyt://article/2"
	err := store.Upsert(ctx, []core.Point{
		{ID: nyt.StableID(near.URI), Vector: []float32{1, 0, 0}, Info: near},
		{ID: nyt.StableID(far.URI), Vector: []float32{0, 1, 0}, Info: far},
	})
	require.NoError(t, err)

	// collection already exists
	require.NoError(t, store.EnsureCollection(ctx))

	results, err := store.QueryTopK(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, near, results[0].Info)

	_, err = store.QueryTopK(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	updated := near
	updated.NewsDesk = "Metro"
	require.NoError(t, store.OverwritePayload(ctx, nyt.StableID(near.URI), updated))
	results, err = store.QueryTopK(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Metro", results[0].Info.NewsDesk)
}

func TestIntegration_OverwritePayloads(t *testing.T) {
	store := testStore(t, 3)
	ctx := context.Background()

	first := sampleInfo()
	second := sampleInfo()
	second.URI = "nyt://article/2"
	require.NoError(t, store.Upsert(ctx, []core.Point{
		{ID: nyt.StableID(first.URI), Vector: []float32{1, 0, 0}, Info: first},
		{ID: nyt.StableID(second.URI), Vector: []float32{0, 1, 0}, Info: second},
	}))

	missing := sampleInfo()
	missing.URI = "nyt://article/missing"
	first.NewsDesk = "Science"
	err := store.OverwritePayloads(ctx, []core.Point{
		{ID: nyt.StableID(first.URI), Info: first},
		{ID: nyt.StableID(missing.URI), Info: missing},
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	results, err := store.QueryTopK(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Foreign Desk", results[0].Info.NewsDesk)

	second.NewsDesk = "Science"
	require.NoError(t, store.OverwritePayloads(ctx, []core.Point{
		{ID: nyt.StableID(first.URI), Info: first},
		{ID: nyt.StableID(second.URI), Info: second},
	}))
	results, err = store.QueryTopK(ctx, []float32{1, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "Science", r.Info.NewsDesk)
	}
}
