// Package qdrant implements storage.VectorStore on a Qdrant server over
// gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultPort is Qdrant's gRPC port.
const DefaultPort = 6334

// Config locates the Qdrant server.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Store is a VectorStore backed by one Qdrant collection. Writes wait for
// the server to apply them, so a successful Upsert is immediately visible
// to queries.
type Store struct {
	client     *qdrant.Client
	collection string
	dim        int
	logger     *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// New connects to Qdrant. The collection is not created until
// EnsureCollection is called.
func New(cfg Config, collection string, dim int) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dim)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Store{
		client:     client,
		collection: collection,
		dim:        dim,
		logger:     slog.Default().With("component", "qdrant", "collection", collection),
	}, nil
}

// Dimensions returns the vector length of the collection.
func (s *Store) Dimensions() int {
	return s.dim
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	s.logger.Info("creating collection", "dimensions", s.dim)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert writes points and waits until they are applied.
func (s *Store) Upsert(ctx context.Context, points []core.Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for i := range points {
		if err := core.ValidatePoint(&points[i]); err != nil {
			return err
		}
		if len(points[i].Vector) != s.dim {
			return dimensionError(len(points[i].Vector), s.dim)
		}
		structs = append(structs, toPointStruct(points[i]))
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// QueryTopK returns the k nearest points by cosine similarity.
func (s *Store) QueryTopK(ctx context.Context, vector []float32, k int) ([]core.ScoredInfo, error) {
	if len(vector) != s.dim {
		return nil, dimensionError(len(vector), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	results := make([]core.ScoredInfo, 0, len(hits))
	for _, hit := range hits {
		results = append(results, core.ScoredInfo{
			Info:  payloadToInfo(hit.GetPayload()),
			Score: hit.GetScore(),
		})
	}
	return results, nil
}

// OverwritePayload replaces the payload of one point.
func (s *Store) OverwritePayload(ctx context.Context, id uuid.UUID, info core.CommonInfo) error {
	if err := core.ValidateInfo(&info); err != nil {
		return err
	}
	_, err := s.client.OverwritePayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        infoToPayload(info),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(id.String())),
	})
	if err != nil {
		return fmt.Errorf("failed to overwrite payload of %s: %w", id, err)
	}
	return nil
}

// OverwritePayloads checks that every point exists, then replaces all
// payloads in a single batched update.
func (s *Store) OverwritePayloads(ctx context.Context, points []core.Point) error {
	if len(points) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(points))
	ops := make([]*qdrant.PointsUpdateOperation, 0, len(points))
	for i := range points {
		if err := core.ValidateInfo(&points[i].Info); err != nil {
			return err
		}
		id := qdrant.NewID(points[i].ID.String())
		ids = append(ids, id)
		ops = append(ops, qdrant.NewPointsUpdateOverwritePayload(&qdrant.PointsUpdateOperation_OverwritePayload{
			Payload:        infoToPayload(points[i].Info),
			PointsSelector: qdrant.NewPointsSelector(id),
		}))
	}

	found, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return fmt.Errorf("failed to look up %d points: %w", len(points), err)
	}
	if len(found) != len(points) {
		return fmt.Errorf("%w: %d of %d points", storage.ErrNotFound, len(points)-len(found), len(points))
	}

	_, err = s.client.UpdateBatch(ctx, &qdrant.UpdateBatchPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Operations:     ops,
	})
	if err != nil {
		return fmt.Errorf("failed to overwrite %d payloads: %w", len(points), err)
	}
	return nil
}

func dimensionError(got, expected int) error {
	return fmt.Errorf("%w: got %d, expected %d", storage.ErrDimensionMismatch, got, expected)
}

func toPointStruct(p core.Point) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(p.ID.String()),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: infoToPayload(p.Info),
	}
}

func infoToPayload(info core.CommonInfo) map[string]*qdrant.Value {
	payload := map[string]any{
		"uri":              info.URI,
		"year":             info.Year,
		"month":            info.Month,
		"day":              info.Day,
		"document_type":    info.DocumentType,
		"news_desk":        info.NewsDesk,
		"type_of_material": info.TypeOfMaterial,
	}
	if info.PrintSection != "" {
		payload["print_section"] = info.PrintSection
	}
	return qdrant.NewValueMap(payload)
}

func payloadToInfo(payload map[string]*qdrant.Value) core.CommonInfo {
	str := func(key string) string { return payload[key].GetStringValue() }
	num := func(key string) int { return int(payload[key].GetIntegerValue()) }
	return core.CommonInfo{
		URI:            str("uri"),
		Year:           num("year"),
		Month:          num("month"),
		Day:            num("day"),
		PrintSection:   str("print_section"),
		DocumentType:   str("document_type"),
		NewsDesk:       str("news_desk"),
		TypeOfMaterial: str("type_of_material"),
	}
}
