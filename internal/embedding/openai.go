package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimension is the dimension for text-embedding-3-small.
	DefaultOpenAIDimension = 1536
)

// OpenAIProvider implements Provider using the OpenAI embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

// Compile-time check that OpenAIProvider implements Provider.
var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI embedding provider.
// If model is empty, uses DefaultOpenAIModel; if expectedDimension is 0,
// uses DefaultOpenAIDimension.
func NewOpenAIProvider(apiKey, model string, expectedDimension int) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if expectedDimension == 0 {
		expectedDimension = DefaultOpenAIDimension
	}
	return &OpenAIProvider{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: expectedDimension,
	}
}

// Model returns the configured embedding model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Dimension returns the expected embedding dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Embed generates embeddings for the given texts in a single request.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{}, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Status:    http.StatusOK,
			Retryable: false,
			Message:   fmt.Sprintf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &ProviderError{
				Status:    http.StatusOK,
				Retryable: false,
				Message:   fmt.Sprintf("invalid embedding index: %d", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}

	return &Result{
		Vectors:    vectors,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// wrapOpenAIError converts client errors into ProviderError with the
// right retryability: 429 and 5xx are transient, 400-class is permanent.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		return &ProviderError{
			Status:    status,
			Retryable: status == http.StatusTooManyRequests || status >= 500,
			Message:   apiErr.Message,
		}
	}
	// Network-level failures (timeouts, resets) are transient.
	return &ProviderError{Retryable: true, Message: err.Error()}
}
