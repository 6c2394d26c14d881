package genai

import (
	"context"
	"fmt"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
)

// Extractor turns a free-text generation request into the raw JSON text of a
// form record. Decoding and validation happen in the document package.
type Extractor struct {
	completer Completer
	system    string
}

// NewExtractor builds an Extractor on top of a completer.
func NewExtractor(c Completer, cat *catalog.Catalog) *Extractor {
	return &Extractor{completer: c, system: ExtractionSystemPrompt(cat)}
}

// Extract returns the model output with Markdown fences removed.
func (e *Extractor) Extract(ctx context.Context, message string) (string, error) {
	resp, err := e.completer.Complete(ctx, Request{
		System:      e.system,
		User:        message,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return "", fmt.Errorf("extractor: %w", err)
	}
	return CleanJSONBlock(resp.Text), nil
}

// Close releases the underlying completer.
func (e *Extractor) Close() error {
	return e.completer.Close()
}
