package genai

import (
	"context"
	"fmt"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
)

// advisorTemperature keeps answers close to the supplied context.
const advisorTemperature = 0.1

// Advisor answers a question from assembled context in the assistant persona.
type Advisor struct {
	completer Completer
	system    string
}

// NewAdvisor builds an Advisor on top of a completer (usually a ChainCompleter).
func NewAdvisor(c Completer, cat *catalog.Catalog) *Advisor {
	return &Advisor{completer: c, system: AdvisorSystemPrompt(cat)}
}

// Answer returns the model's reply. Any provider failure is returned as is;
// the caller maps it to the generic error reply.
func (a *Advisor) Answer(ctx context.Context, contextText, question string) (string, error) {
	resp, err := a.completer.Complete(ctx, Request{
		System:      a.system,
		User:        AdvisorUserMessage(contextText, question),
		Temperature: advisorTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("advisor: %w", err)
	}
	return resp.Text, nil
}

// Close releases the underlying completer.
func (a *Advisor) Close() error {
	return a.completer.Close()
}
