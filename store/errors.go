package store

import (
	"errors"
	"fmt"
)

// StorageError reports an I/O or connection failure in a storage backend.
// It is surfaced to the caller as-is; the store never retries internally.
type StorageError struct {
	Op    string // the operation that failed, e.g. "upsert memory entry"
	Cause error
}

// Error returns a formatted error message.
func (e *StorageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("storage error: %s", e.Op)
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError wraps a backend failure with the operation that hit it.
func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// CorruptDataError reports a persisted row that cannot be decoded back into
// a MemoryEntry: an unparseable timestamp, an unknown role tag, or an
// embedding blob whose length is not a multiple of four bytes. Corrupt rows
// are surfaced, never silently coerced or repaired.
type CorruptDataError struct {
	ID    string // entry id of the offending row, when known
	Field string // the column that failed to decode
	Cause error
}

// Error returns a formatted error message.
func (e *CorruptDataError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("corrupt data: field %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("corrupt data: entry %s, field %s: %v", e.ID, e.Field, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *CorruptDataError) Unwrap() error {
	return e.Cause
}

// NewCorruptDataError marks a row as undecodable.
func NewCorruptDataError(id, field string, cause error) *CorruptDataError {
	return &CorruptDataError{ID: id, Field: field, Cause: cause}
}

// IsCorruptDataError checks if an error is a CorruptDataError.
func IsCorruptDataError(err error) bool {
	var corruptErr *CorruptDataError
	return errors.As(err, &corruptErr)
}

// DimensionMismatchError reports a semantic-search query vector whose length
// does not match the dimension the vector index was created with. Truncating
// or padding would corrupt rankings, so the mismatch is a hard error.
type DimensionMismatchError struct {
	IndexDim int // dimension the backend schema was configured with
	QueryDim int // dimension of the query vector
}

// Error returns a message carrying both dimensions.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: query vector has %d dimensions, index expects %d", e.QueryDim, e.IndexDim)
}

// NewDimensionMismatchError creates a DimensionMismatchError.
func NewDimensionMismatchError(indexDim, queryDim int) *DimensionMismatchError {
	return &DimensionMismatchError{IndexDim: indexDim, QueryDim: queryDim}
}

// IsDimensionMismatchError checks if an error is a DimensionMismatchError.
func IsDimensionMismatchError(err error) bool {
	var dimErr *DimensionMismatchError
	return errors.As(err, &dimErr)
}
