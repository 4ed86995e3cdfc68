package badger

import (
	"context"
	"testing"

	"github.com/cyclicism/crunch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	stores, err := NewMemoryStores(2)
	require.NoError(t, err)
	defer stores.Close()
	ctx := context.Background()
	repo := stores.Checkpoints

	done, err := repo.Completed(ctx, "index")
	require.NoError(t, err)
	assert.Empty(t, done)

	require.NoError(t, repo.MarkComplete(ctx, "index", core.PartitionKey{Year: 1980, Month: 1}))
	require.NoError(t, repo.MarkComplete(ctx, "index", core.PartitionKey{Year: 1980, Month: 12}))
	require.NoError(t, repo.MarkComplete(ctx, "index", core.PartitionKey{Year: 1980, Month: 1}))
	require.NoError(t, repo.MarkComplete(ctx, "index:Snippet", core.PartitionKey{Year: 1990, Month: 5}))
	require.NoError(t, repo.MarkComplete(ctx, "load", core.PartitionKey{Year: 2001, Month: 9}))

	done, err = repo.Completed(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, map[core.PartitionKey]bool{
		{Year: 1980, Month: 1}:  true,
		{Year: 1980, Month: 12}: true,
	}, done)

	done, err = repo.Completed(ctx, "load")
	require.NoError(t, err)
	assert.Len(t, done, 1)
	assert.True(t, done[core.PartitionKey{Year: 2001, Month: 9}])
}
