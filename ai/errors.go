package ai

import (
	"fmt"

	"github.com/pkg/errors"
)

// EmbeddingError wraps a failed embedding provider round trip.
// Callers that can degrade gracefully (the semantic context strategy)
// log it and continue with an empty result; everyone else surfaces it.
type EmbeddingError struct {
	Provider string
	Cause    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding request to %s failed: %v", e.Provider, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// NewEmbeddingError creates an EmbeddingError.
func NewEmbeddingError(provider string, cause error) *EmbeddingError {
	return &EmbeddingError{Provider: provider, Cause: cause}
}

// IsEmbeddingError reports whether err is (or wraps) an EmbeddingError.
func IsEmbeddingError(err error) bool {
	var embeddingErr *EmbeddingError
	return errors.As(err, &embeddingErr)
}
