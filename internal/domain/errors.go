package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeValidation   ErrorCode = "VALIDATION_ERROR"

	// Generation pipeline errors
	CodeJobNotFound              ErrorCode = "JOB_NOT_FOUND"
	CodeRetrievalUnavailable     ErrorCode = "RETRIEVAL_UNAVAILABLE"
	CodeGenerationServiceFailure ErrorCode = "GENERATION_SERVICE_FAILURE"
	CodeModelUnavailable         ErrorCode = "MODEL_UNAVAILABLE"
	CodeMalformedOutput          ErrorCode = "MALFORMED_OUTPUT"
)

// ErrCancelled is returned by the pipeline when it observes a cancellation marker.
// It is a control-flow signal, not a failure.
var ErrCancelled = errors.New("job cancelled")

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements the json.Marshaler interface
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
	})
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err wraps a DomainError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Helper functions for common errors
func NewNotFoundError(message string) *DomainError {
	return NewError(CodeNotFound, message, nil)
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(CodeInvalidInput, message, nil)
}

func NewInternalError(message string, err error) *DomainError {
	return NewError(CodeInternal, message, err)
}

func NewJobNotFoundError(jobID string) *DomainError {
	return NewError(CodeJobNotFound, fmt.Sprintf("Job not found with ID: %s", jobID), nil)
}

func NewRetrievalUnavailableError(message string) *DomainError {
	return NewError(CodeRetrievalUnavailable, message, nil)
}

func NewGenerationServiceError(err error) *DomainError {
	return NewError(CodeGenerationServiceFailure, "Failed to process with generation service", err)
}

func NewModelUnavailableError(modelKey string, err error) *DomainError {
	return NewError(CodeModelUnavailable, fmt.Sprintf("Model %q is unavailable", modelKey), err)
}

func NewMalformedOutputError(message string, err error) *DomainError {
	return NewError(CodeMalformedOutput, message, err)
}
