// This file contains the OpenAI-compatible completer used for Groq and Cerebras.
package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type openaiCompleter struct {
	client   openai.Client
	model    string
	provider Provider
}

// newOpenAICompleter creates a completer for an OpenAI-compatible provider.
// Returns nil if apiKey is empty (provider disabled).
func newOpenAICompleter(provider Provider, apiKey, model string, opts ...option.RequestOption) (*openaiCompleter, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // Intentional: provider disabled when no API key
	}

	baseURL, ok := ProviderEndpoint[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported OpenAI-compatible provider: %s", provider)
	}

	if model == "" {
		switch provider {
		case ProviderGroq:
			model = DefaultGroqModel
		case ProviderCerebras:
			model = DefaultCerebrasModel
		}
	}

	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retries are decided by ChainCompleter
	}, opts...)

	return &openaiCompleter{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: provider,
	}, nil
}

func (c *openaiCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, WrapError(fmt.Errorf("chat completion failed: %w", err), c.provider)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(ErrEmptyCompletion, c.provider)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, WrapError(ErrEmptyCompletion, c.provider)
	}

	return &Response{
		Text:         text,
		Provider:     c.provider,
		Model:        c.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *openaiCompleter) Provider() Provider {
	return c.provider
}

// Close is a no-op; the openai-go client holds no resources.
func (c *openaiCompleter) Close() error {
	return nil
}
