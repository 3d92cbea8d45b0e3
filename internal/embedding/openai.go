package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client  openai.Client
	model   string
	dims    int
	timeout time.Duration
}

// NewOpenAI builds a client. Retries are left to Retrying.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		dims:    cfg.Dimensions,
		timeout: cfg.Timeout,
	}
}

// Model implements Embedder.
func (o *OpenAI) Model() string { return o.model }

// Embed implements Embedder. Each call is bounded by the configured timeout.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(o.model),
	}
	if o.dims > 0 {
		params.Dimensions = openai.Int(int64(o.dims))
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, unavailable("embedding.OpenAI", err)
	}
	if len(resp.Data) == 0 {
		return nil, unavailable("embedding.OpenAI", errors.New("empty embeddings response"))
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
