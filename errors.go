package schemata

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypePermission       ErrorType = "permission"
	ErrorTypeStorage          ErrorType = "storage"
	ErrorTypeMissingField     ErrorType = "missing_field"
	ErrorTypeUnsupportedQuery ErrorType = "unsupported_query"
	ErrorTypeBusy             ErrorType = "busy"
)

// Error is the single error type surfaced by the engine. Callers branch on
// Type; Code is a stable machine-readable refinement.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Model   string         `json:"model,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Model != "" && e.Field != "" {
		return fmt.Sprintf("[%s:%s] %s.%s: %s", e.Type, e.Code, e.Model, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Model != "" {
		return fmt.Sprintf("[%s:%s] model '%s': %s", e.Type, e.Code, e.Model, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to an Error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an Error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField adds field context to an Error
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithModel adds model context to an Error
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// Error codes
const (
	ErrCodeSchemaInvalid        = "SCHEMA_INVALID"
	ErrCodeSchemaTooLarge       = "SCHEMA_TOO_LARGE"
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeTypeMismatch         = "TYPE_MISMATCH"
	ErrCodeUnknownField         = "UNKNOWN_FIELD"
	ErrCodeUnsupportedMethod    = "UNSUPPORTED_METHOD"
	ErrCodeMigrationAmbiguous   = "MIGRATION_AMBIGUOUS"
	ErrCodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"

	ErrCodeModelNotFound    = "MODEL_NOT_FOUND"
	ErrCodeEndpointNotFound = "ENDPOINT_NOT_FOUND"
	ErrCodeFieldNotFound    = "FIELD_NOT_FOUND"
	ErrCodeAppNotFound      = "APP_NOT_FOUND"
	ErrCodeRecordNotFound   = "RECORD_NOT_FOUND"
	ErrCodeFileNotFound     = "FILE_NOT_FOUND"

	ErrCodeAccessDenied = "ACCESS_DENIED"

	ErrCodeQueryFailed      = "QUERY_FAILED"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeLockFailed       = "LOCK_FAILED"

	ErrCodeUnsupportedConstruct = "UNSUPPORTED_CONSTRUCT"
	ErrCodeQuerySyntax          = "QUERY_SYNTAX"

	ErrCodeStorageBusy = "STORAGE_BUSY"
)

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeTypeMismatch,
		Message: message,
		Field:   field,
	}
}

// NewSchemaError reports the first violation found while parsing an
// application definition.
func NewSchemaError(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeSchemaInvalid,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnsupportedMethodError rejects a request method an endpoint cannot serve.
func NewUnsupportedMethodError(method Method, endpoint string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeUnsupportedMethod,
		Message: fmt.Sprintf("method %s is not supported by endpoint %s", method, endpoint),
	}
}

// NewNotFoundError creates a not found error. kind is one of "model",
// "endpoint", "field", "app", "record" or "file".
func NewNotFoundError(kind, name string) *Error {
	code := ErrCodeRecordNotFound
	switch kind {
	case "model":
		code = ErrCodeModelNotFound
	case "endpoint":
		code = ErrCodeEndpointNotFound
	case "field":
		code = ErrCodeFieldNotFound
	case "app":
		code = ErrCodeAppNotFound
	case "file":
		code = ErrCodeFileNotFound
	}
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: fmt.Sprintf("%s %q not found", kind, name),
	}
}

// NewPermissionError creates an access denied error
func NewPermissionError(message string) *Error {
	return &Error{
		Type:    ErrorTypePermission,
		Code:    ErrCodeAccessDenied,
		Message: message,
	}
}

// NewStorageError wraps an embedded database failure
func NewStorageError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeQueryFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewMissingFieldError reports a required field absent from a row
func NewMissingFieldError(model, field string) *Error {
	return &Error{
		Type:    ErrorTypeMissingField,
		Code:    ErrCodeRequiredFieldMissing,
		Message: "required field is missing",
		Model:   model,
		Field:   field,
	}
}

// NewUnsupportedQueryError names a GraphQL construct the executor refuses.
func NewUnsupportedQueryError(construct string) *Error {
	return &Error{
		Type:    ErrorTypeUnsupportedQuery,
		Code:    ErrCodeUnsupportedConstruct,
		Message: fmt.Sprintf("unsupported query construct: %s", construct),
	}
}

// NewBusyError reports that the storage lock could not be obtained in time.
// The error reaches clients, so it carries no file system location.
func NewBusyError(waited time.Duration) *Error {
	return &Error{
		Type:    ErrorTypeBusy,
		Code:    ErrCodeStorageBusy,
		Message: fmt.Sprintf("storage is busy (waited %s)", waited.Round(time.Millisecond)),
		Details: map[string]any{"waited": waited.String()},
	}
}

// IsType reports whether any Error in err's chain has the given type.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}
