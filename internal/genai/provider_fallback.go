// This file contains the provider chain used for cross-provider failover.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/kmutt-form-bot/internal/metrics"
)

// ErrNoProvider is returned by a chain with no usable provider.
var ErrNoProvider = errors.New("no LLM provider configured")

// ChainCompleter tries each Completer in order. Each link gets
// RetryConfig.MaxAttempts attempts; on failure the next link is tried unless
// the error is fatal for every provider (cancellation, malformed request).
type ChainCompleter struct {
	links       []Completer
	stage       Stage
	retryConfig RetryConfig
	metrics     *metrics.Metrics
}

// NewChainCompleter builds a chain for stage. Nil links are skipped.
func NewChainCompleter(stage Stage, cfg RetryConfig, m *metrics.Metrics, links ...Completer) *ChainCompleter {
	kept := make([]Completer, 0, len(links))
	for _, l := range links {
		if l != nil {
			kept = append(kept, l)
		}
	}
	return &ChainCompleter{links: kept, stage: stage, retryConfig: cfg, metrics: m}
}

// Complete returns the first successful response along the chain.
func (c *ChainCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	if c == nil || len(c.links) == 0 {
		return nil, ErrNoProvider
	}

	start := time.Now()
	var errs []error
	for i, link := range c.links {
		resp, err := c.completeWithRetry(ctx, link, req)
		if err == nil {
			if i > 0 {
				c.metrics.RecordLLMFallback(c.links[0].Provider().String(), link.Provider().String(), string(c.stage))
				slog.InfoContext(ctx, "LLM fallback succeeded",
					"stage", c.stage,
					"from", c.links[0].Provider(),
					"to", link.Provider(),
					"duration_ms", time.Since(start).Milliseconds())
			}
			return resp, nil
		}
		errs = append(errs, err)

		action := ClassifyError(err)
		slog.WarnContext(ctx, "LLM provider failed",
			"stage", c.stage,
			"provider", link.Provider(),
			"action", action,
			"error", err)
		if action == ActionFail || ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%s: all providers failed: %w", c.stage, errors.Join(errs...))
}

func (c *ChainCompleter) completeWithRetry(ctx context.Context, link Completer, req Request) (*Response, error) {
	var resp *Response
	err := WithRetry(ctx, c.retryConfig, func() error {
		start := time.Now()
		r, err := link.Complete(ctx, req)
		c.metrics.RecordLLMRequest(link.Provider().String(), string(c.stage), errorLabel(err), time.Since(start).Seconds())
		if err != nil {
			return err
		}
		c.metrics.RecordLLMTokens(link.Provider().String(), string(c.stage), r.InputTokens, r.OutputTokens)
		slog.DebugContext(ctx, "LLM call completed",
			"stage", c.stage,
			"provider", r.Provider,
			"model", r.Model,
			"input_tokens", r.InputTokens,
			"output_tokens", r.OutputTokens,
			"duration_ms", time.Since(start).Milliseconds())
		resp = r
		return nil
	})
	return resp, err
}

// Provider returns the primary provider type.
func (c *ChainCompleter) Provider() Provider {
	if c == nil || len(c.links) == 0 {
		return ""
	}
	return c.links[0].Provider()
}

// Providers returns the chain order.
func (c *ChainCompleter) Providers() []Provider {
	if c == nil {
		return nil
	}
	out := make([]Provider, len(c.links))
	for i, l := range c.links {
		out[i] = l.Provider()
	}
	return out
}

// Close closes every link.
func (c *ChainCompleter) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, l := range c.links {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
