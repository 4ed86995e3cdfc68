package badger

import (
	"context"
	"slices"
	"time"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/dgraph-io/badger/v4"
)

// ComboRepository implements storage.ComboRepository for BadgerDB.
type ComboRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.ComboRepository = (*ComboRepository)(nil)

// NewComboRepository creates a new ComboRepository.
func NewComboRepository(backend *Backend) (*ComboRepository, error) {
	seq, err := backend.GetSequence(comboSeq)
	if err != nil {
		return nil, err
	}
	return &ComboRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the edge sequence.
func (r *ComboRepository) Close() error {
	return r.seq.Release()
}

// HasCombos reports whether any edge starts at contemporaryURI.
func (r *ComboRepository) HasCombos(ctx context.Context, contemporaryURI string) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.scanCombos(tx, contemporaryURI, func(core.Combo) bool {
			found = true
			return false
		})
	}, false)
	return found, err
}

// AddCombo appends an edge under a fresh sequence number.
func (r *ComboRepository) AddCombo(ctx context.Context, combo core.Combo) error {
	if err := core.ValidateCombo(&combo); err != nil {
		return err
	}
	if combo.CreatedAt.IsZero() {
		combo.CreatedAt = time.Now().UTC()
	}
	seq, err := r.seq.Next()
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return putJSON(tx, makeComboKey(combo.ContemporaryURI, seq), combo)
	}, true)
}

// CombosFor lists the edges of contemporaryURI, highest score first. Ties
// keep insertion order.
func (r *ComboRepository) CombosFor(ctx context.Context, contemporaryURI string) ([]core.Combo, error) {
	var combos []core.Combo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.scanCombos(tx, contemporaryURI, func(c core.Combo) bool {
			combos = append(combos, c)
			return true
		})
	}, false)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(combos, func(a, b core.Combo) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return combos, nil
}

// scanCombos visits the edges of contemporaryURI in insertion order. Keys
// are built from a 64-bit content hash, so entries for other URIs that
// share the hash are skipped.
func (r *ComboRepository) scanCombos(tx *badger.Txn, contemporaryURI string, fn func(core.Combo) bool) error {
	return scanPrefix(tx, makeComboPrefix(contemporaryURI), func(_, val []byte) (bool, error) {
		var c core.Combo
		if err := decodeJSON(val, &c); err != nil {
			return false, err
		}
		if c.ContemporaryURI != contemporaryURI {
			return true, nil
		}
		return fn(c), nil
	})
}

// ReplaceCurrent deletes the old snapshot and writes uris in rank order,
// in one transaction.
func (r *ComboRepository) ReplaceCurrent(ctx context.Context, uris []string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		var stale [][]byte
		err := scanPrefix(tx, []byte(currentPrefix+":"), func(key, _ []byte) (bool, error) {
			stale = append(stale, key)
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for rank, uri := range uris {
			if err := tx.Set(makeCurrentKey(rank), []byte(uri)); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// Current returns the snapshot in rank order.
func (r *ComboRepository) Current(ctx context.Context) ([]string, error) {
	var uris []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(currentPrefix+":"), func(_, val []byte) (bool, error) {
			uris = append(uris, string(val))
			return true, nil
		})
	}, false)
	return uris, err
}
