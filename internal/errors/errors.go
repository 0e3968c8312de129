// Package errors provides the structured error type shared by the store,
// the reconciliation engine and the HTTP layer. Every error carries a
// category and a code so callers can branch on the kind of failure without
// string matching.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies an error by how the caller should react to it.
type Category string

const (
	CategoryNotFound    Category = "NOT_FOUND"
	CategoryValidation  Category = "VALIDATION"
	CategoryPersistence Category = "PERSISTENCE"
	CategoryEnrichment  Category = "ENRICHMENT"
	CategoryInternal    Category = "INTERNAL"
)

const (
	// NotFound codes
	CodeUserNotFound  = "USER_NOT_FOUND"
	CodeEventNotFound = "EVENT_NOT_FOUND"

	// Validation codes
	CodeInvalidEvent    = "INVALID_EVENT"
	CodeInvalidUser     = "INVALID_USER"
	CodeMissingInvitee  = "MISSING_INVITEE"
	CodeEmptyBatch      = "EMPTY_BATCH"
	CodeBatchTooLarge   = "BATCH_TOO_LARGE"
	CodeDuplicateEmail  = "DUPLICATE_EMAIL"
	CodeInvalidCalendar = "INVALID_CALENDAR"

	// Persistence codes
	CodeReadFailed  = "READ_FAILED"
	CodeWriteFailed = "WRITE_FAILED"

	// Enrichment codes
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeGenerationEmpty  = "GENERATION_EMPTY"

	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error used throughout calrecon.
type Error struct {
	Category Category
	Code     string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

func New(category Category, code, message string) *Error {
	return &Error{Category: category, Code: code, Message: message}
}

func Wrap(category Category, code, message string, cause error) *Error {
	return &Error{Category: category, Code: code, Message: message, Cause: cause}
}

// GetCategory extracts the category from an error chain, or "" if the chain
// holds no *Error.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the code from an error chain, or "".
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return GetCategory(err) == CategoryNotFound
}

func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

func NewNotFound(code, message string) *Error {
	return New(CategoryNotFound, code, message)
}

func NewValidation(code, message string) *Error {
	return New(CategoryValidation, code, message)
}

func NewPersistence(code, message string, cause error) *Error {
	return Wrap(CategoryPersistence, code, message, cause)
}

func NewEnrichment(code, message string, cause error) *Error {
	return Wrap(CategoryEnrichment, code, message, cause)
}

func NewInternal(message string, cause error) *Error {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}
