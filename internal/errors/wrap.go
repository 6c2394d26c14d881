package errors

import (
	"errors"
	"fmt"
)

// ErrorWrapper attaches module/operation context and a user-facing message to errors.
type ErrorWrapper struct {
	operation string
	module    string
}

// NewWrapper creates a new error wrapper with operation and module context.
func NewWrapper(module, operation string) *ErrorWrapper {
	return &ErrorWrapper{
		module:    module,
		operation: operation,
	}
}

// Wrap wraps an error with operation context.
// Returns nil if err is nil.
func (w *ErrorWrapper) Wrap(err error, userMessage string) error {
	if err == nil {
		return nil
	}
	return &WrappedError{
		Operation:   w.operation,
		Module:      w.module,
		Cause:       err,
		UserMessage: userMessage,
	}
}

// Wrapf wraps an error with a formatted user message.
func (w *ErrorWrapper) Wrapf(err error, userMessageFormat string, args ...any) error {
	if err == nil {
		return nil
	}
	return w.Wrap(err, fmt.Sprintf(userMessageFormat, args...))
}

// WrappedError contains both internal error details and user-facing message.
type WrappedError struct {
	Operation   string // e.g. "reply", "render_stream"
	Module      string // e.g. "chat", "document"
	Cause       error
	UserMessage string
}

func (e *WrappedError) Error() string {
	return fmt.Sprintf("[%s:%s] %v", e.Module, e.Operation, e.Cause)
}

func (e *WrappedError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns the outermost user-facing message in the chain.
// Errors without one map to MsgSystemError so internals never reach the user.
func GetUserMessage(err error) string {
	if err == nil {
		return ""
	}
	var wrapped *WrappedError
	if errors.As(err, &wrapped) && wrapped.UserMessage != "" {
		return wrapped.UserMessage
	}
	return MsgSystemError
}

// UserMessageFor picks the reply for a classified error.
func UserMessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientInfo):
		return MsgInsufficientInfo
	case errors.Is(err, ErrUnknownForm):
		return MsgUnknownForm
	case errors.Is(err, ErrRateLimitExceeded):
		return MsgRateLimited
	default:
		return GetUserMessage(err)
	}
}
