package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeStorage      = "STORAGE_ERROR"
	ErrCodeEmbedding    = "EMBEDDING_ERROR"
	ErrCodeCompletion   = "COMPLETION_ERROR"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidAccessLevel    = NewDomainError(ErrCodeValidation, "invalid access level")
	ErrInvalidSourceTier     = NewDomainError(ErrCodeValidation, "invalid source tier")
	ErrInvalidFeedbackStatus = NewDomainError(ErrCodeValidation, "invalid feedback status")
	ErrDimensionMismatch     = NewDomainError(ErrCodeValidation, "embedding dimension does not match configured dimension")
)

// Not found errors
var (
	ErrFeedbackNotFound  = NewDomainError(ErrCodeNotFound, "feedback not found")
	ErrDocumentNotFound  = NewDomainError(ErrCodeNotFound, "document not found")
	ErrIngestJobNotFound = NewDomainError(ErrCodeNotFound, "ingest job not found")
)

// State errors
var (
	ErrFeedbackNotApproved = NewDomainError(ErrCodeInvalidState, "only approved feedback can be promoted to the knowledge base")
)

// NewStorageError wraps a storage-layer failure. The transaction that produced
// it has already been rolled back.
func NewStorageError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStorage, message, err)
}

// NewEmbeddingError wraps an upstream embedding model failure.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding generation failed", err)
}

// NewCompletionError wraps an upstream completion model failure.
func NewCompletionError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeCompletion, "completion generation failed", err)
}
