package models

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyGeneration   = errors.New("generation returned no content")
)

// ConfigurationError is fatal at setup: the pipeline must not start.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ValidationError rejects a batch at the store boundary.
type ValidationError struct {
	Index    int
	Expected int
	Got      int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: %v: expected %d, got %d", e.Index, ErrDimensionMismatch, e.Expected, e.Got)
}

func (e *ValidationError) Unwrap() error { return ErrDimensionMismatch }

// EmbeddingError means a chunk or query could not be embedded.
type EmbeddingError struct {
	Cause error
}

func (e *EmbeddingError) Error() string { return "embedding failed: " + e.Cause.Error() }

func (e *EmbeddingError) Unwrap() error { return e.Cause }

// GenerationError wraps a failed call to a generation capability.
type GenerationError struct {
	Generator string
	Cause     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed: %v", e.Generator, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// IndexUnsupportedError is reported by a backend whose tier cannot build Kind.
type IndexUnsupportedError struct {
	Kind  IndexKind
	Cause error
}

func (e *IndexUnsupportedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s index is not supported", e.Kind)
	}
	return fmt.Sprintf("%s index is not supported: %v", e.Kind, e.Cause)
}

func (e *IndexUnsupportedError) Unwrap() error { return e.Cause }

// BackendError is a storage read or write failure.
type BackendError struct {
	Op    string
	Cause error
}

func (e *BackendError) Error() string { return fmt.Sprintf("backend %s: %v", e.Op, e.Cause) }

func (e *BackendError) Unwrap() error { return e.Cause }

// IsProviderError reports whether err came from an embedding or generation provider.
func IsProviderError(err error) bool {
	var ee *EmbeddingError
	var ge *GenerationError
	return errors.As(err, &ee) || errors.As(err, &ge)
}

// IsIndexUnsupported reports whether err is an unsupported-index-kind failure.
func IsIndexUnsupported(err error) bool {
	var ue *IndexUnsupportedError
	return errors.As(err, &ue)
}
