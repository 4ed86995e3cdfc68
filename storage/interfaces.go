package storage

import (
	"context"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/nyt"
	"github.com/google/uuid"
)

// VectorStore holds one collection of article embeddings.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist.
	// Calling it on an existing collection is a no-op.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points keyed by their ID. Writing an ID again replaces
	// both vector and payload.
	Upsert(ctx context.Context, points []core.Point) error

	// QueryTopK returns up to k nearest neighbours of vector, best first.
	// Returns ErrDimensionMismatch if len(vector) differs from Dimensions().
	QueryTopK(ctx context.Context, vector []float32, k int) ([]core.ScoredInfo, error)

	// OverwritePayload replaces the payload of an existing point.
	// Returns ErrNotFound if the point does not exist.
	OverwritePayload(ctx context.Context, id uuid.UUID, info core.CommonInfo) error

	// OverwritePayloads replaces the payloads of existing points, keyed by
	// ID, as one write. Vectors are ignored. If any point does not exist
	// it returns ErrNotFound and no payload changes.
	OverwritePayloads(ctx context.Context, points []core.Point) error

	// Dimensions is the vector length the collection was created with.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// ArticleRepository stores article metadata keyed by URI.
// Every upsert is last-write-wins on the URI.
type ArticleRepository interface {
	// UpsertArchiveArticle writes an archive record, its headline and its
	// first image.
	UpsertArchiveArticle(ctx context.Context, article *nyt.ScrapedArticle) error

	// UpsertArchiveArticles writes a batch of archive records in one
	// transaction. If any record fails, none of them is written.
	UpsertArchiveArticles(ctx context.Context, articles []nyt.ScrapedArticle) error

	// UpsertContemporaryArticle writes a homepage record and its first image.
	UpsertContemporaryArticle(ctx context.Context, article *nyt.ContemporaryArticle) error

	// GetArticle assembles the display form of an article, archive or
	// contemporary. Returns ErrNotFound if the URI is unknown.
	GetArticle(ctx context.Context, uri string) (*core.FrontendArticle, error)

	// ContemporaryOnDate lists contemporary articles published on a day.
	ContemporaryOnDate(ctx context.Context, year, month, day int) ([]*core.FrontendArticle, error)

	// Close releases resources.
	Close() error
}

// ComboRepository stores similarity edges and the current homepage order.
type ComboRepository interface {
	// HasCombos reports whether any edge starts at contemporaryURI.
	HasCombos(ctx context.Context, contemporaryURI string) (bool, error)

	// AddCombo appends an edge. Edges are never deduplicated.
	AddCombo(ctx context.Context, combo core.Combo) error

	// CombosFor lists the edges of contemporaryURI, highest score first.
	CombosFor(ctx context.Context, contemporaryURI string) ([]core.Combo, error)

	// ReplaceCurrent atomically replaces the current snapshot with uris,
	// ranked by position.
	ReplaceCurrent(ctx context.Context, uris []string) error

	// Current returns the current snapshot ordered by rank.
	Current(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// CheckpointRepository records which partitions a job has finished so an
// interrupted run can resume.
type CheckpointRepository interface {
	// MarkComplete records key as done for job.
	MarkComplete(ctx context.Context, job string, key core.PartitionKey) error

	// Completed returns every partition recorded for job.
	Completed(ctx context.Context, job string) (map[core.PartitionKey]bool, error)
}
