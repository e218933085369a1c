package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultVoyageModel is the default Voyage AI embedding model.
	DefaultVoyageModel = "voyage-3"

	// DefaultVoyageDimension is the dimension for voyage-3.
	DefaultVoyageDimension = 1024

	// voyageEndpoint is the Voyage AI embeddings endpoint.
	voyageEndpoint = "https://api.voyageai.com/v1/embeddings"
)

// VoyageProvider implements Provider using the Voyage AI API.
type VoyageProvider struct {
	apiKey    string
	model     string
	dimension int
	endpoint  string
	client    *http.Client
}

// Compile-time check that VoyageProvider implements Provider.
var _ Provider = (*VoyageProvider)(nil)

// NewVoyageProvider creates a Voyage AI embedding provider.
// If model is empty, uses DefaultVoyageModel (voyage-3).
// If expectedDimension is 0, uses DefaultVoyageDimension (1024).
func NewVoyageProvider(apiKey, model string, expectedDimension int) *VoyageProvider {
	if model == "" {
		model = DefaultVoyageModel
	}
	if expectedDimension == 0 {
		expectedDimension = DefaultVoyageDimension
	}
	return &VoyageProvider{
		apiKey:    apiKey,
		model:     model,
		dimension: expectedDimension,
		endpoint:  voyageEndpoint,
		client:    &http.Client{},
	}
}

// Model returns the configured embedding model name.
func (p *VoyageProvider) Model() string {
	return p.model
}

// Dimension returns the expected embedding dimension.
func (p *VoyageProvider) Dimension() int {
	return p.dimension
}

// voyageRequest is the request format for the Voyage AI API.
type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// voyageResponse is the response format from the Voyage AI API.
type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings for the given texts in a single request.
func (p *VoyageProvider) Embed(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{}, nil
	}

	jsonBody, err := json.Marshal(voyageRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Retryable: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Message:   string(body),
		}
	}

	var parsed voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, &ProviderError{
			Status:    http.StatusOK,
			Retryable: false,
			Message:   fmt.Sprintf("embedding count mismatch: got %d, want %d", len(parsed.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, &ProviderError{
				Status:    http.StatusOK,
				Retryable: false,
				Message:   fmt.Sprintf("invalid embedding index: %d", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}

	result := &Result{Vectors: vectors, TokensUsed: parsed.Usage.TotalTokens}
	parseQuotaHeaders(resp.Header, result)
	return result, nil
}

// parseQuotaHeaders extracts remaining-quota headers when present so the
// rate limiter can tighten its estimate.
func parseQuotaHeaders(h http.Header, result *Result) {
	remReq, errReq := strconv.Atoi(h.Get("x-ratelimit-remaining-requests"))
	remTok, errTok := strconv.Atoi(h.Get("x-ratelimit-remaining-tokens"))
	if errReq != nil && errTok != nil {
		return
	}
	result.RemainingRequests = remReq
	result.RemainingTokens = remTok
	result.HasQuota = true
	if reset, err := strconv.ParseInt(h.Get("x-ratelimit-reset"), 10, 64); err == nil {
		result.QuotaReset = time.Unix(reset, 0)
	} else {
		result.QuotaReset = time.Now().Add(time.Minute)
	}
}
