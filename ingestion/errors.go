package ingestion

import "errors"

var (
	// ErrLoaderRequired is returned when a pipeline is built without a loader.
	ErrLoaderRequired = errors.New("loader required")

	// ErrStageRequired is returned when a pipeline is built without a stage.
	ErrStageRequired = errors.New("stage required")

	// ErrEmbedderRequired is returned when an index stage has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrStoreRequired is returned when a stage has no store to persist to.
	ErrStoreRequired = errors.New("store required")

	// ErrFieldRequired is returned when an index stage has no field to embed.
	ErrFieldRequired = errors.New("field required")

	// ErrPartitionLoad wraps a loader failure.
	ErrPartitionLoad = errors.New("partition load failed")

	// ErrEmbedding wraps an embedding model failure.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmbeddingCountMismatch is returned when the model returns a
	// different number of vectors than texts it was given.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrPersist wraps a store failure.
	ErrPersist = errors.New("persist failed")

	// ErrCheckpoint wraps a failure to read or write checkpoints.
	ErrCheckpoint = errors.New("checkpoint failed")

	// ErrInvalidMaxAttempts is returned when retry attempts is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)
