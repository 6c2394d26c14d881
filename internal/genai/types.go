// Package genai provides integration with LLM APIs (Gemini, Groq, and Cerebras)
// for the two model-backed stages of the form assistant: the advisor that
// answers questions from retrieved context, and the extractor that turns a
// free-text request into a JSON record for template filling.
//
// Architecture:
// - Gemini: Uses google.golang.org/genai (official SDK)
// - Groq/Cerebras: Uses github.com/openai/openai-go/v3 (OpenAI-compatible API)
//
// Each provider is wrapped as a Completer. A ChainCompleter walks the
// configured providers in order and fails over to the next one on error.
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGemini represents Google's Gemini API (non-OpenAI-compatible).
	ProviderGemini Provider = "gemini"
	// ProviderGroq represents Groq's API (OpenAI-compatible, fast inference).
	ProviderGroq Provider = "groq"
	// ProviderCerebras represents Cerebras's API (OpenAI-compatible).
	ProviderCerebras Provider = "cerebras"
)

// ProviderEndpoint defines the base URL for OpenAI-compatible providers.
// Gemini is not included as it uses a different SDK.
var ProviderEndpoint = map[Provider]string{
	ProviderGroq:     "https://api.groq.com/openai/v1/",
	ProviderCerebras: "https://api.cerebras.ai/v1/",
}

// IsOpenAICompatible returns true if the provider uses OpenAI-compatible API.
func (p Provider) IsOpenAICompatible() bool {
	_, ok := ProviderEndpoint[p]
	return ok
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Stage names the pipeline step a completion serves. It labels metrics and logs.
type Stage string

const (
	StageAdvisor   Stage = "advisor"
	StageExtractor Stage = "extractor"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	User        string
	Temperature float32
	// JSON asks the provider for a single JSON object.
	JSON bool
	// MaxTokens caps the output. Zero leaves the provider default.
	MaxTokens int
}

// Response is the text of a completion plus reported token usage.
type Response struct {
	Text         string
	Provider     Provider
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer performs one completion against one provider and model.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Provider returns the provider type for metrics.
	Provider() Provider
	// Close releases any resources held by the client.
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per provider (including initial).
	// Default: 1. Failover to the next provider is not a retry.
	MaxAttempts int

	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	APIKey string
	Model  string
}

// LLMConfig holds configuration for all LLM providers.
type LLMConfig struct {
	// Providers is the ordered list of providers to try.
	Providers []Provider

	Gemini   ProviderConfig
	Groq     ProviderConfig
	Cerebras ProviderConfig

	RetryConfig RetryConfig
}

// Default models.
const (
	DefaultGroqModel     = "llama-3.1-8b-instant"
	DefaultCerebrasModel = "llama-3.3-70b"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

// DefaultProviders is the default provider order for fallback.
var DefaultProviders = []Provider{ProviderGroq, ProviderCerebras, ProviderGemini}

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 1
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// HasAnyProvider returns true if at least one provider is configured.
func (c *LLMConfig) HasAnyProvider() bool {
	return len(c.ConfiguredProviders()) > 0
}

// HasProvider returns true if the specified provider is configured with an API key.
func (c *LLMConfig) HasProvider(p Provider) bool {
	pc := c.GetProviderConfig(p)
	return pc != nil && pc.APIKey != ""
}

// GetProviderConfig returns the configuration for a specific provider.
func (c *LLMConfig) GetProviderConfig(p Provider) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderGroq:
		return &c.Groq
	case ProviderCerebras:
		return &c.Cerebras
	default:
		return nil
	}
}

// ConfiguredProviders returns the providers with API keys, in the order of
// c.Providers, without duplicates.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	seen := make(map[Provider]bool, len(c.Providers))
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p] || !c.HasProvider(p) {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
