// This file contains embedding generation for semantic search.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultEmbeddingModel is the model used for generating embeddings
	DefaultEmbeddingModel = "gemini-embedding-001"

	// EmbeddingDimensions is the output dimension (MRL truncation of the 3072 default)
	EmbeddingDimensions = 768

	// embeddingRPM is the requests per minute budget for the embedding API
	embeddingRPM = 1000
)

// Task types tell the model which side of retrieval a text is on.
const (
	taskQuery    = "RETRIEVAL_QUERY"
	taskDocument = "RETRIEVAL_DOCUMENT"
)

// ErrEmptyText is returned for empty or whitespace-only input.
var ErrEmptyText = errors.New("empty or whitespace-only text cannot be embedded")

// EmbeddingClient provides embedding generation using the Gemini API
type EmbeddingClient struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

// NewEmbeddingClient creates a Gemini embedding client.
// Returns nil if apiKey is empty (dense retrieval disabled).
func NewEmbeddingClient(ctx context.Context, apiKey, model string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // Intentional: feature disabled when no API key
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &EmbeddingClient{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(embeddingRPM)/60), 10),
	}, nil
}

// EmbedQuery embeds a search query.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskQuery)
}

// EmbedDocument embeds a passage for indexing.
func (c *EmbeddingClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskDocument)
}

func (c *EmbeddingClient) embed(ctx context.Context, text, task string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             task,
			OutputDimensionality: genai.Ptr[int32](EmbeddingDimensions),
		})
	if err != nil {
		return nil, WrapError(fmt.Errorf("embed content failed: %w", err), ProviderGemini)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

// NewEmbeddingFunc adapts the client to chromem-go. chromem only calls it
// for texts added without a precomputed embedding, which are documents.
func (c *EmbeddingClient) NewEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.EmbedDocument(ctx, text)
	}
}
