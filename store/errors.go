package store

import "github.com/pkg/errors"

// Sentinel errors shared by all store drivers. Callers match them with
// errors.Is after drivers wrap them with context.
var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned for invalid or duplicate writes.
	// It is never retried automatically.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrDimensionMismatch is returned when an embedding vector does not
	// match the index's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIntegrity is returned when a chunk identifier exists in one store
	// without a counterpart in the other. This is a consistency fault, not
	// a skippable condition.
	ErrIntegrity = errors.New("cross-store integrity fault")
)
