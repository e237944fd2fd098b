package models

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a resource already exists (e.g., duplicate slug)
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNoCustomFields is returned by stores that have no custom-fields
	// integration installed
	ErrNoCustomFields = errors.New("custom fields store not available")
)

// Machine-readable error codes surfaced to transport callers.
const (
	CodeMissingField       = "missing_required_field"
	CodeInvalidContentType = "invalid_post_type"
	CodePermissionDenied   = "permission_denied"
	CodeNotFound           = "post_not_found"
	CodeDecodeFailed       = "json_decode_failed"
	CodeEncodeFailed       = "json_encode_failed"
	CodeEmptyBatch         = "empty_batch"
	CodeMediaFailed        = "media_failed"
	CodeImportFailed       = "import_failed"
	CodeInvalidRequest     = "invalid_request"
)

// Error is a coded error carried across the core/transport boundary. Code is
// stable and machine-readable; Message is for humans.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a coded error.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the machine-readable code from err, falling back to
// import_failed for uncoded errors.
func ErrorCode(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeImportFailed
}
