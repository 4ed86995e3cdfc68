package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclicism/crunch/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// second close is harmless
	require.NoError(t, backend.Close())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestWithTx(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	t.Run("commits on success", func(t *testing.T) {
		err := backend.WithTx(func(tx *badger.Txn) error {
			return putJSON(tx, []byte("k1"), map[string]int{"a": 1})
		}, true)
		require.NoError(t, err)

		var got map[string]int
		err = backend.WithTx(func(tx *badger.Txn) error {
			found, err := getJSON(tx, []byte("k1"), &got)
			assert.True(t, found)
			return err
		}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, got["a"])
	})

	t.Run("discards on error", func(t *testing.T) {
		err := backend.WithTx(func(tx *badger.Txn) error {
			if err := tx.Set([]byte("k2"), []byte("v")); err != nil {
				return err
			}
			return assert.AnError
		}, true)
		assert.Equal(t, assert.AnError, err)

		err = backend.WithTx(func(tx *badger.Txn) error {
			var v string
			found, err := getJSON(tx, []byte("k2"), &v)
			assert.False(t, found)
			return err
		}, false)
		require.NoError(t, err)
	})

	t.Run("corrupt value", func(t *testing.T) {
		err := backend.WithTx(func(tx *badger.Txn) error {
			return tx.Set([]byte("k3"), []byte("{not json"))
		}, true)
		require.NoError(t, err)

		err = backend.WithTx(func(tx *badger.Txn) error {
			var v map[string]int
			_, err := getJSON(tx, []byte("k3"), &v)
			return err
		}, false)
		assert.ErrorIs(t, err, storage.ErrSerializationFailed)
	})
}

func TestScanPrefix(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		for _, k := range []string{"p:b", "p:a", "p:c", "q:a"} {
			if err := tx.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	require.NoError(t, err)

	var seen []string
	err = backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte("p:"), func(key, _ []byte) (bool, error) {
			seen = append(seen, string(key))
			return len(seen) < 2, nil
		})
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"p:a", "p:b"}, seen)
}

func TestGetSequence(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.GetSequence("test_sequence")
	require.NoError(t, err)
	require.NotNil(t, seq)
	defer seq.Release()

	id1, err := seq.Next()
	require.NoError(t, err)

	id2, err := seq.Next()
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}
