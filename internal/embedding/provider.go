// Package embedding provides embedding providers and the batching
// pipeline that turns chunks into validated vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Provider is the external embedding endpoint. Implementations must
// return a *ProviderError for API failures so the pipeline can separate
// retryable from permanent ones.
type Provider interface {
	// Embed generates one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) (*Result, error)

	// Model returns the embedding model name.
	Model() string

	// Dimension returns the model's declared vector dimensionality.
	Dimension() int
}

// Result is a successful provider response.
type Result struct {
	Vectors    [][]float32
	TokensUsed int

	// Remaining quota parsed from response headers, when the provider
	// reports it. Used to tighten the rate limiter's estimate.
	RemainingRequests int
	RemainingTokens   int
	QuotaReset        time.Time
	HasQuota          bool
}

// ProviderError is an API-level failure. Retryable errors (429, 5xx,
// timeouts) are retried with backoff; permanent ones (400-class) fail the
// batch immediately.
type ProviderError struct {
	Status    int
	Retryable bool
	Message   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider error (status %d): %s", e.Status, e.Message)
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// ProviderType identifies the embedding backend.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderVoyage ProviderType = "voyage"
)

// ProviderConfig holds configuration for creating a Provider.
type ProviderConfig struct {
	Provider ProviderType

	// Model is the embedding model name (provider-specific).
	Model string

	// ExpectedDimension is the required output dimension.
	// Set to 0 to use the provider's default.
	ExpectedDimension int

	APIKey string
}

// NewProvider creates a Provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires API key")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.ExpectedDimension), nil

	case ProviderVoyage:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("voyage provider requires API key")
		}
		return NewVoyageProvider(cfg.APIKey, cfg.Model, cfg.ExpectedDimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
