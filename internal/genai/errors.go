// This file contains error classification for retry and provider failover.
package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrorAction defines the action to take based on error type.
type ErrorAction int

const (
	// ActionRetry indicates the request may be retried with the same provider.
	ActionRetry ErrorAction = iota
	// ActionFallback indicates the next provider should be tried.
	ActionFallback
	// ActionFail indicates the request should fail immediately.
	ActionFail
)

// String returns a human-readable string for the error action.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// LLMError wraps an error with provider and HTTP status.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   Provider
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	msg := string(e.Provider) + ": " + e.Err.Error()
	if e.StatusCode > 0 {
		msg += " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapError wraps an SDK error with the provider and, when the SDK exposes
// one, the HTTP status code.
func WrapError(err error, provider Provider) error {
	if err == nil {
		return nil
	}
	return &LLMError{Err: err, StatusCode: statusCodeOf(err), Provider: provider}
}

func statusCodeOf(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) {
		return gErrPtr.Code
	}
	return 0
}

// ClassifyError determines the appropriate action based on the error:
//   - transient errors (429, 5xx, network, timeout) → retry
//   - quota exhaustion, auth and model errors → fallback to the next provider
//   - caller cancellation and malformed requests → fail
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}
	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "quota", "daily limit", "billing"):
		return ActionFallback
	case containsAny(errStr, "rate limit", "too many requests", "resource_exhausted", "429"):
		return ActionRetry
	case containsAny(errStr, "unavailable", "overloaded", "bad gateway", "gateway timeout",
		"internal server error", "500", "502", "503", "504", "timeout", "connection"):
		return ActionRetry
	case containsAny(errStr, "unauthorized", "unauthenticated", "api key", "forbidden",
		"permission denied", "not found", "401", "403", "404"):
		return ActionFallback
	case containsAny(errStr, "bad request", "malformed", "unprocessable", "400", "422"):
		return ActionFail
	}
	return ActionRetry
}

// classifyStatusCode determines action based on HTTP status code.
func classifyStatusCode(statusCode int) ErrorAction {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusConflict,
		statusCode >= 500 && statusCode < 600:
		return ActionRetry
	// Credentials and model names are per provider; another provider may work.
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusNotFound:
		return ActionFallback
	case statusCode >= 400 && statusCode < 500:
		return ActionFail
	default:
		return ActionRetry
	}
}

// errorLabel maps an error to a short metrics label.
func errorLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty"
	}
	switch ClassifyError(err) {
	case ActionRetry:
		return "transient"
	case ActionFallback:
		return "unavailable"
	default:
		return "error"
	}
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
