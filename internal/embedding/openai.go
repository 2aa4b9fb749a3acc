package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/components/embedding"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/joelkehle/opportunity-radar/internal/retry"
)

const DefaultModel = "text-embedding-3-small"

// OpenAIEmbedder implements the eino Embedder interface on top of the
// OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *goopenai.Client
	model  goopenai.EmbeddingModel
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIEmbedder{client: goopenai.NewClientWithConfig(cfg), model: goopenai.EmbeddingModel(model)}, nil
}

func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, retry.WithStatus(apiErr.HTTPStatusCode, err)
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return nil, retry.WithStatus(reqErr.HTTPStatusCode, err)
		}
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float64, len(data))
	for i, d := range data {
		v := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}
