package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher fails the first failures calls and succeeds afterwards.
type scriptedFetcher struct {
	failures int
	calls    int
}

func (f *scriptedFetcher) FetchArchive(_ context.Context, year, month int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return []byte(`{"response":{"docs":[]}}`), nil
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func TestRun_ThreeFailuresThenSuccess(t *testing.T) {
	dir := t.TempDir()
	fetcher := &scriptedFetcher{failures: 3}
	rec := &sleepRecorder{}
	key := core.PartitionKey{Year: 1980, Month: 1}

	s := New(fetcher, dir, WithSleep(rec.sleep))
	stats, err := s.Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)

	assert.Equal(t, DefaultBudget-3, stats.BudgetLeft)
	assert.Equal(t, 3, stats.DownloadFailures)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 4, fetcher.calls)
	assert.FileExists(t, nyt.PartitionPath(dir, key))

	// constant pause after every attempt, success included
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff, DefaultBackoff, DefaultBackoff}, rec.sleeps)

	// a second run finds the month on disk and does not sleep
	stats, err = s.Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlreadyPresent)
	assert.Equal(t, 4, fetcher.calls)
	assert.Len(t, rec.sleeps, 4)
}

func TestRun_BudgetExhausted(t *testing.T) {
	dir := t.TempDir()
	fetcher := &scriptedFetcher{failures: 1000}
	rec := &sleepRecorder{}
	keys := core.Partitions(1980, 1980)

	s := New(fetcher, dir, WithBudget(5), WithSleep(rec.sleep))
	stats, err := s.Run(context.Background(), keys)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Zero(t, stats.BudgetLeft)
	assert.Equal(t, 5, fetcher.calls)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_SkipsPresentMonths(t *testing.T) {
	dir := t.TempDir()
	keys := []core.PartitionKey{{Year: 1999, Month: 11}, {Year: 1999, Month: 12}}
	require.NoError(t, os.WriteFile(nyt.PartitionPath(dir, keys[0]), []byte("{}"), 0o644))

	fetcher := &scriptedFetcher{}
	rec := &sleepRecorder{}
	stats, err := New(fetcher, dir, WithSleep(rec.sleep), WithBackoff(time.Second)).Run(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlreadyPresent)
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestHandleMonth_WriteFailed(t *testing.T) {
	dir := t.TempDir()
	s := New(&scriptedFetcher{}, filepath.Join(dir, "missing", "subdir"))

	status, err := s.HandleMonth(context.Background(), core.PartitionKey{Year: 1980, Month: 1})
	assert.Equal(t, WriteFailed, status)
	assert.Error(t, err)
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&scriptedFetcher{failures: 1}, t.TempDir(), WithBackoff(time.Hour))
	_, err := s.Run(ctx, []core.PartitionKey{{Year: 1980, Month: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_AgainstArchiveServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "/svc/archive/v1/1984/2.json", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api-key"))
		w.Write([]byte(`{"response":{"docs":[{"uri":"nyt://article/1"}]}}`))
	}))
	defer srv.Close()

	client, err := nyt.NewClient("key", nyt.WithBaseURL(srv.URL))
	require.NoError(t, err)

	dir := t.TempDir()
	key := core.PartitionKey{Year: 1984, Month: 2}
	stats, err := New(client, dir, WithBackoff(0)).Run(context.Background(), []core.PartitionKey{key})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DownloadFailures)
	assert.Equal(t, 1, stats.Downloaded)

	docs, err := (&nyt.FileLoader{Dir: dir}).Load(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "nyt://article/1", docs[0].URI)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "downloaded", Downloaded.String())
	assert.Equal(t, "Status(7)", Status(7).String())
}
