// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder and MockProvider let pipeline, updater and search tests run
// without an embedding service while keeping the vectors deterministic.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	embedder.Dim = 8
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("model unavailable")
//	}
//
//	// Assertions
//	count := embedder.CallCount()
//	sizes := embedder.BatchSizes()
//
// # Default Behavior
//
//   - MockEmbedder: unit vectors derived from an FNV hash of the text
//   - MockProvider: wraps a MockEmbedder, reports model "mock"
package mock
