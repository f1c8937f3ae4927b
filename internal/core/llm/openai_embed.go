package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder embeds through any OpenAI-compatible embeddings API
// (OpenAI, Ollama, vLLM, LM Studio).
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewOpenAIEmbedder builds the client. An empty apiKey is allowed for local
// services that do not authenticate; dim > 0 asks the model for that many
// dimensions.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		apiKey = "none"
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if dim > 0 {
		opts = append(opts, openai.WithEmbeddingDimensions(dim))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return newOpenAIEmbedder(client, logger)
}

func newOpenAIEmbedder(client embeddings.EmbedderClient, logger *zap.Logger) (*OpenAIEmbedder, error) {
	// Newlines are already stripped by the chunker; the model sees the text as indexed.
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{embedder: e, logger: logger}, nil
}

func (o *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		o.logger.Debug("embedding request failed", zap.Int("length", len(text)), zap.Error(err))
		return nil, fmt.Errorf("%w: openai embed: %w", core.ErrEmbedding, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: openai returned no embedding", core.ErrEmbedding)
	}
	return vecs[0], nil
}
