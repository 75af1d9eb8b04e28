package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"ragtutor/internal/domain"
	"ragtutor/internal/retry"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint and
// returns L2-normalized vectors of a fixed dimension. Safe for
// concurrent use; construct once and share.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
	policy retry.Policy
	logger *slog.Logger
}

// Config configures the embeddings client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewOpenAIEmbedder creates the embedder. The dimension is fixed up
// front so degraded zero vectors keep the collection schema consistent.
func NewOpenAIEmbedder(cfg Config, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing embeddings API key", domain.ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidConfig, cfg.Dimension)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dim:    cfg.Dimension,
		policy: retry.Default(),
		logger: logger,
	}, nil
}

// Dimension returns the fixed dimensionality of produced vectors.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Embed returns one normalized vector per input text, in input order.
// The call is retried on transient failure; failure after retries is
// reported as a wrapped embedding error.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp openai.EmbeddingResponse
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      texts,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dim,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbedding, len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vectors[i] = Normalize(d.Embedding)
	}
	return vectors, nil
}

// Normalize scales v to unit L2 norm. A zero vector stays zero, the
// explicit degraded-failure marker.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// ZeroVector returns the degraded-failure marker of the given
// dimension. It is stored when embedding fails so the chunk stays
// reachable by scroll even though similarity search will not rank it.
func ZeroVector(dim int) []float32 { return make([]float32, dim) }
