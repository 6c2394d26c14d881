// Package intent decides whether a chat message asks for a generated document
// or for an answer.
//
// The router is a substring gate over a short trigger list. It is a best-effort
// pre-filter: a message that misses every trigger always falls through to
// Answer, which is the safe path.
package intent

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Intent is the routing decision for a message.
type Intent string

const (
	// Generate means the user wants a pre-filled document.
	Generate Intent = "GENERATE"
	// Answer means the user asked a question.
	Answer Intent = "ANSWER"
)

// String returns the intent name.
func (i Intent) String() string {
	return string(i)
}

// DefaultTriggers are phrases that mark document-generation intent.
var DefaultTriggers = []string{
	"เจนไฟล์",
	"เจนเอกสาร",
	"สร้างไฟล์",
	"สร้างเอกสาร",
	"ทำไฟล์",
	"ออกไฟล์",
	"ร่างคำร้อง",
	"ร่างเอกสาร",
	"กรอกฟอร์มให้",
	"กรอกคำร้องให้",
	"generate",
	"fill the form",
	"draft",
}

// Router routes messages by trigger phrase.
type Router struct {
	triggers []string
}

// NewRouter creates a router. With no triggers, DefaultTriggers is used.
func NewRouter(triggers ...string) *Router {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	normalized := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t = normalize(t); t != "" {
			normalized = append(normalized, t)
		}
	}
	return &Router{triggers: normalized}
}

// Route returns Generate when the lower-cased message contains any trigger.
func (r *Router) Route(message string) Intent {
	if _, ok := r.Trigger(message); ok {
		return Generate
	}
	return Answer
}

// Trigger returns the first trigger found in the message.
func (r *Router) Trigger(message string) (string, bool) {
	msg := normalize(message)
	if msg == "" {
		return "", false
	}
	for _, t := range r.triggers {
		if strings.Contains(msg, t) {
			return t, true
		}
	}
	return "", false
}

// Triggers returns a copy of the active trigger list.
func (r *Router) Triggers() []string {
	out := make([]string, len(r.triggers))
	copy(out, r.triggers)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}
