package logger

import (
	"context"
	"log/slog"

	"github.com/garyellow/kmutt-form-bot/internal/ctxutil"
)

// ContextHandler wraps another handler and adds request-scoped values
// (request_id, client_ip, intent) from the context to every record, so call
// sites only need slog.*Context(ctx, ...).
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new ContextHandler that wraps the provided handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds context values to the record and delegates.
// Cancellation of ctx does not affect record processing.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := ctxutil.GetRequestID(ctx); ok && requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}
	if ip := ctxutil.GetClientIP(ctx); ip != "" {
		r.AddAttrs(slog.String("client_ip", ip))
	}
	if intent := ctxutil.GetIntent(ctx); intent != "" {
		r.AddAttrs(slog.String("intent", intent))
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a ContextHandler around the wrapped handler's WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a ContextHandler around the wrapped handler's WithGroup.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}
