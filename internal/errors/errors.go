// Package errors provides domain-specific error types, sentinel errors and the
// user-facing Thai messages the service replies with.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of the chat and generation paths.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the caller sent a malformed payload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientInfo indicates the extraction stage produced no usable record.
	ErrInsufficientInfo = errors.New("insufficient information")

	// ErrUnknownForm indicates the form code is not in the catalog, has no
	// template, or its template file is missing.
	ErrUnknownForm = errors.New("unknown form")

	// ErrUpstream indicates the vector store or an LLM provider failed.
	ErrUpstream = errors.New("upstream service error")

	// ErrRender indicates template merging or writing the document failed.
	ErrRender = errors.New("document rendering failed")

	// ErrRateLimitExceeded indicates the client exceeded its request budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// User-facing replies.
const (
	// MsgSystemError is the generic reply for upstream failures.
	MsgSystemError = "เกิดข้อผิดพลาดในระบบ"

	// MsgInsufficientInfo asks the user for the details the extractor needs.
	MsgInsufficientInfo = "ขออภัยครับ ข้อมูลยังไม่เพียงพอสำหรับสร้างเอกสาร กรุณาระบุชื่อ-นามสกุล รหัสนักศึกษา และรายละเอียดคำร้องเพิ่มเติม"

	// MsgUnknownForm is the reply when no template can be chosen.
	MsgUnknownForm = "ขออภัยครับ ไม่สามารถระบุได้ว่าต้องใช้แบบฟอร์มใด กรุณาระบุประเภทคำร้องให้ชัดเจน"

	// MsgRenderFailed is the fixed detail of a failed /generate-document call.
	MsgRenderFailed = "ไม่สามารถสร้างเอกสารได้ (ไม่พบแบบฟอร์มหรือข้อมูลไม่ถูกต้อง)"

	// MsgRateLimited is the reply when a client is throttled.
	MsgRateLimited = "มีการส่งคำขอถี่เกินไป กรุณารอสักครู่แล้วลองใหม่อีกครั้ง"
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamError records which external collaborator failed.
type UpstreamError struct {
	Service string // "qdrant", "chromem", "groq", "gemini", ...
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Service, e.Err)
}

// Unwrap returns the cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError wraps err as a failure of service. Returns nil for a nil err.
func NewUpstreamError(service string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Err: err}
}
