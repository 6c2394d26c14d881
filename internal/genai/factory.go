// This file contains factory functions for creating the LLM-backed stages.
package genai

import (
	"context"
	"log/slog"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
)

// CreateChain builds a ChainCompleter for stage over every configured
// provider, in cfg.Providers order. A provider whose client cannot be created
// is logged and skipped. Returns ErrNoProvider when nothing is usable.
func CreateChain(ctx context.Context, cfg LLMConfig, stage Stage, m *metrics.Metrics) (*ChainCompleter, error) {
	var links []Completer
	for _, p := range cfg.ConfiguredProviders() {
		pc := cfg.GetProviderConfig(p)

		var (
			c   Completer
			err error
		)
		switch p {
		case ProviderGemini:
			var g *geminiCompleter
			g, err = newGeminiCompleter(ctx, pc.APIKey, pc.Model)
			if g != nil {
				c = g
			}
		case ProviderGroq, ProviderCerebras:
			var o *openaiCompleter
			o, err = newOpenAICompleter(p, pc.APIKey, pc.Model)
			if o != nil {
				c = o
			}
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to create LLM client", "provider", p, "stage", stage, "error", err)
			continue
		}
		if c != nil {
			links = append(links, c)
		}
	}

	if len(links) == 0 {
		return nil, ErrNoProvider
	}

	chain := NewChainCompleter(stage, cfg.RetryConfig, m, links...)
	slog.InfoContext(ctx, "LLM chain configured",
		"stage", stage,
		"primary", chain.Provider(),
		"chainSize", len(links))
	return chain, nil
}

// CreateAdvisor builds the question-answering stage.
func CreateAdvisor(ctx context.Context, cfg LLMConfig, cat *catalog.Catalog, m *metrics.Metrics) (*Advisor, error) {
	chain, err := CreateChain(ctx, cfg, StageAdvisor, m)
	if err != nil {
		return nil, err
	}
	return NewAdvisor(chain, cat), nil
}

// CreateExtractor builds the structured-extraction stage.
func CreateExtractor(ctx context.Context, cfg LLMConfig, cat *catalog.Catalog, m *metrics.Metrics) (*Extractor, error) {
	chain, err := CreateChain(ctx, cfg, StageExtractor, m)
	if err != nil {
		return nil, err
	}
	return NewExtractor(chain, cat), nil
}

// DefaultLLMConfig returns a default LLM configuration.
// API keys must be provided separately.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers:   DefaultProviders,
		Gemini:      ProviderConfig{Model: DefaultGeminiModel},
		Groq:        ProviderConfig{Model: DefaultGroqModel},
		Cerebras:    ProviderConfig{Model: DefaultCerebrasModel},
		RetryConfig: DefaultRetryConfig(),
	}
}
