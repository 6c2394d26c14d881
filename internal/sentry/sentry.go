// Package sentry provides Sentry SDK initialization for Better Stack error tracking integration.
// It wraps the Sentry Go SDK so the HTTP layer and background jobs report
// failures with the request's correlation tags.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/garyellow/kmutt-form-bot/internal/ctxutil"
	domerrors "github.com/garyellow/kmutt-form-bot/internal/errors"
)

// Config holds Sentry configuration for Better Stack integration.
type Config struct {
	// Token is the Better Stack Errors application token.
	Token string

	// Host is the Better Stack Errors ingesting host (e.g., "errors.betterstack.com").
	Host string

	// Environment identifies the deployment environment (e.g., "production", "staging").
	Environment string

	// Release identifies the application release version.
	Release string

	// SampleRate controls error sampling (0.0-1.0, default 1.0 = 100%).
	SampleRate float64

	// Debug enables Sentry SDK debug logging.
	Debug bool
}

// DSN builds the Better Stack DSN: https://$TOKEN@$HOST/1.
// The project ID (/1) is required by the SDK but ignored by Better Stack.
func (c Config) DSN() string {
	return fmt.Sprintf("https://%s@%s/1", c.Token, c.Host)
}

// Initialize sets up the Sentry SDK with Better Stack configuration.
// If Token is empty, Sentry is disabled and nil is returned.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil // Sentry disabled
	}

	if cfg.Host == "" {
		return errors.New("sentry host is required when token is provided")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN(),
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to be sent to the server.
// Returns true if all events were sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// ShouldReport reports whether err is a server-side failure. Bad input,
// missing details and rate limiting are the caller's problem and are not
// sent.
func ShouldReport(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, domerrors.ErrInvalidInput),
		errors.Is(err, domerrors.ErrInsufficientInfo),
		errors.Is(err, domerrors.ErrRateLimitExceeded),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Tags returns the correlation tags carried by ctx.
func Tags(ctx context.Context) map[string]string {
	tags := make(map[string]string, 2)
	if id, ok := ctxutil.GetRequestID(ctx); ok && id != "" {
		tags["request_id"] = id
	}
	if intent := ctxutil.GetIntent(ctx); intent != "" {
		tags["intent"] = intent
	}
	return tags
}

// CaptureError reports err with the request tags from ctx. The hub attached
// by the gin middleware is used when present.
func CaptureError(ctx context.Context, err error) {
	if !ShouldReport(err) || !IsEnabled() {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(Tags(ctx))
		hub.CaptureException(err)
	})
}
