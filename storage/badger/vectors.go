package badger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// VectorStore implements storage.VectorStore on BadgerDB with an exact
// cosine scan. It suits tests and archives small enough to scan per query.
type VectorStore struct {
	backend    *Backend
	collection string
	dim        int
	logger     *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

type collectionMeta struct {
	Dimensions int `json:"dimensions"`
}

type storedPoint struct {
	Vector []float32       `json:"vector"`
	Info   core.CommonInfo `json:"info"`
}

// NewVectorStore creates a VectorStore for one collection. The backend is
// owned by the caller.
func NewVectorStore(backend *Backend, collection string, dim int) (*VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dim)
	}
	return &VectorStore{
		backend:    backend,
		collection: collection,
		dim:        dim,
		logger:     backend.logger.With("collection", collection),
	}, nil
}

// Dimensions returns the vector length of the collection.
func (s *VectorStore) Dimensions() int {
	return s.dim
}

// Close is a no-op; the backend is closed by its owner.
func (s *VectorStore) Close() error {
	return nil
}

// EnsureCollection records the collection and its dimensions. An existing
// collection with different dimensions is an error.
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		var meta collectionMeta
		found, err := getJSON(tx, makeCollectionKey(s.collection), &meta)
		if err != nil {
			return err
		}
		if found {
			if meta.Dimensions != s.dim {
				return dimensionError(s.dim, meta.Dimensions)
			}
			return nil
		}
		s.logger.Info("creating collection", "dimensions", s.dim)
		return putJSON(tx, makeCollectionKey(s.collection), collectionMeta{Dimensions: s.dim})
	}, true)
}

// Upsert stores points, replacing any with the same ID.
func (s *VectorStore) Upsert(ctx context.Context, points []core.Point) error {
	if len(points) == 0 {
		return nil
	}
	for i := range points {
		if err := core.ValidatePoint(&points[i]); err != nil {
			return err
		}
		if len(points[i].Vector) != s.dim {
			return dimensionError(len(points[i].Vector), s.dim)
		}
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, p := range points {
			key := makeVectorKey(s.collection, p.ID)
			if err := putJSON(tx, key, storedPoint{Vector: p.Vector, Info: p.Info}); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// QueryTopK scans the collection and returns the k most similar points.
func (s *VectorStore) QueryTopK(ctx context.Context, vector []float32, k int) ([]core.ScoredInfo, error) {
	if len(vector) != s.dim {
		return nil, dimensionError(len(vector), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}

	var results []core.ScoredInfo
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeVectorPrefix(s.collection), func(_, val []byte) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			var p storedPoint
			if err := decodeJSON(val, &p); err != nil {
				return false, err
			}
			score, ok := cosineSimilarity(vector, p.Vector)
			if !ok {
				return true, nil
			}
			results = append(results, core.ScoredInfo{Info: p.Info, Score: score})
			return true, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(results, func(a, b core.ScoredInfo) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// OverwritePayload replaces the payload of an existing point and keeps
// its vector.
func (s *VectorStore) OverwritePayload(ctx context.Context, id uuid.UUID, info core.CommonInfo) error {
	return s.OverwritePayloads(ctx, []core.Point{{ID: id, Info: info}})
}

// OverwritePayloads replaces the payloads of existing points in one
// transaction and keeps their vectors.
func (s *VectorStore) OverwritePayloads(ctx context.Context, points []core.Point) error {
	for i := range points {
		if err := core.ValidateInfo(&points[i].Info); err != nil {
			return err
		}
	}
	if len(points) == 0 {
		return nil
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, pt := range points {
			key := makeVectorKey(s.collection, pt.ID)
			var p storedPoint
			found, err := getJSON(tx, key, &p)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: point %s", storage.ErrNotFound, pt.ID)
			}
			p.Info = pt.Info
			if err := putJSON(tx, key, p); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

func dimensionError(got, expected int) error {
	return fmt.Errorf("%w: got %d, expected %d", storage.ErrDimensionMismatch, got, expected)
}

// cosineSimilarity returns false when either vector has zero norm or the
// lengths differ.
func cosineSimilarity(a, b []float32) (float32, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}
