package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := NewNotFound(CodeUserNotFound, "user u1 not found")
	if got := err.Error(); got != "[NOT_FOUND:USER_NOT_FOUND] user u1 not found" {
		t.Fatalf("Error() = %q", got)
	}

	wrapped := NewPersistence(CodeWriteFailed, "save events", errors.New("disk full"))
	if !strings.HasSuffix(wrapped.Error(), ": disk full") {
		t.Fatalf("wrapped Error() should include cause, got %q", wrapped.Error())
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("reconcile: %w", NewNotFound(CodeUserNotFound, "user u1 not found"))

	if !errors.Is(err, NewNotFound(CodeUserNotFound, "")) {
		t.Fatal("errors.Is should match on category+code regardless of message")
	}
	if errors.Is(err, NewNotFound(CodeEventNotFound, "")) {
		t.Fatal("different code must not match")
	}
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should see through fmt wrapping")
	}
	if IsValidation(err) {
		t.Fatal("not a validation error")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := NewPersistence(CodeReadFailed, "load user", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		code     string
	}{
		{"plain", errors.New("x"), "", ""},
		{"validation", NewValidation(CodeEmptyBatch, "no events"), CategoryValidation, CodeEmptyBatch},
		{"enrichment", NewEnrichment(CodeGenerationFailed, "llm", nil), CategoryEnrichment, CodeGenerationFailed},
		{"internal", NewInternal("oops", nil), CategoryInternal, CodeUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCategory(tt.err); got != tt.category {
				t.Errorf("GetCategory = %q, want %q", got, tt.category)
			}
			if got := GetCode(tt.err); got != tt.code {
				t.Errorf("GetCode = %q, want %q", got, tt.code)
			}
		})
	}
}
