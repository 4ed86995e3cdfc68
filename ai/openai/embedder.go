package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cyclicism/crunch/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrVectorCount is returned when a response holds a different number of
	// vectors than the request had texts.
	ErrVectorCount = errors.New("embedding count mismatch")
	// ErrVectorLength is returned when a vector does not have the configured
	// dimensions.
	ErrVectorLength = errors.New("embedding length mismatch")
)

// Embedder implements ai.Embedder on an OpenAI-compatible embedding API.
// Large inputs are split into requests of at most batchSize texts.
type Embedder struct {
	client    embeddings.Embedder
	batchSize int
	dim       int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EmbeddingHost == "" {
		return nil, errors.New("ai config: EmbeddingHost is required")
	}

	// local servers accept any token
	token := config.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = ai.DefaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, err
	}

	return newEmbedderWithClient(embedder, batchSize, config.Dimensions), nil
}

func newEmbedderWithClient(client embeddings.Embedder, batchSize, dim int) *Embedder {
	return &Embedder{
		client:    client,
		batchSize: max(batchSize, 1),
		dim:       dim,
		logger:    slog.Default().With("component", "openai-embedder"),
	}
}

// NewEmbedder creates an embedder for config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts in order, one request per batch. Every returned
// vector has the configured dimensions.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts), "batchSize", e.batchSize)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.client.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			e.logger.Error("failed to generate embeddings", "from", start, "to", end, "err", err)
			return nil, fmt.Errorf("texts %d-%d of %d: %w", start, end, len(texts), err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d for %d texts", ErrVectorCount, len(batch), end-start)
		}
		for i, v := range batch {
			if e.dim > 0 && len(v) != e.dim {
				return nil, fmt.Errorf("%w: text %d has %d, expected %d", ErrVectorLength, start+i, len(v), e.dim)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
