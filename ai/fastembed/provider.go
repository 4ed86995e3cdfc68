//go:build fastembed

package fastembed

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	fe "github.com/anush008/fastembed-go"
	"github.com/cyclicism/crunch/ai"
)

// Available reports whether the binary was built with local embedding support.
const Available = true

// Provider runs an ONNX embedding model in-process.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger
}

var _ ai.Provider = (*Provider)(nil)

// Embedder implements ai.Embedder on a loaded fastembed model.
// The model handle is shared by all callers; calls are serialized because
// the underlying session is not safe for concurrent inference.
type Embedder struct {
	mu     sync.Mutex
	model  *fe.FlagEmbedding
	dim    int
	batch  int
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewProvider loads the configured model, downloading it into CacheDir on
// first use.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	model, err := fe.NewFlagEmbedding(&fe.InitOptions{
		Model:     fe.EmbeddingModel(config.EmbeddingModel),
		CacheDir:  config.CacheDir,
		MaxLength: config.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", config.EmbeddingModel, err)
	}

	batch := 64
	if batch > 4*runtime.GOMAXPROCS(0) {
		batch = 4 * runtime.GOMAXPROCS(0)
	}

	logger := slog.Default().With("component", "fastembed-provider")
	return &Provider{
		config: config,
		embedder: &Embedder{
			model:  model,
			dim:    config.Dimensions,
			batch:  batch,
			logger: slog.Default().With("component", "fastembed-embedder"),
		},
		logger: logger,
	}, nil
}

func (p *Provider) Embedder() ai.Embedder { return p.embedder }

func (p *Provider) Model() string { return p.config.EmbeddingModel }

func (p *Provider) Dimensions() int { return p.config.Dimensions }

// Close frees the ONNX session.
func (p *Provider) Close() error {
	p.logger.Debug("closing fastembed provider")
	p.embedder.mu.Lock()
	defer p.embedder.mu.Unlock()
	if p.embedder.model != nil {
		p.embedder.model.Destroy()
		p.embedder.model = nil
	}
	return nil
}

// EmbedText embeds a single query string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, ErrClosed
	}
	vector, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("query embed: %w", err)
	}
	return vector, nil
}

// EmbedTexts embeds a batch of passages.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, ErrClosed
	}
	e.logger.Debug("embedding passages", "count", len(texts))
	vectors, err := e.model.PassageEmbed(texts, e.batch)
	if err != nil {
		return nil, fmt.Errorf("passage embed: %w", err)
	}
	return vectors, nil
}
