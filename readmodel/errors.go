package readmodel

import (
	"errors"
	"fmt"
)

// ErrReferencedEntityMissing indicates a projection handler could not resolve
// a cross-aggregate reference carried by an event. Use errors.Is() to check.
var ErrReferencedEntityMissing = errors.New("readmodel: referenced entity missing")

// ReferencedEntityMissingError reports an unresolvable cross-aggregate
// reference. The event this happened for has already been appended, so this
// signals a consistency bug rather than a transient condition.
type ReferencedEntityMissingError struct {
	// EntityType is the referenced aggregate type (e.g., "Role").
	EntityType string

	// EntityID is the referenced identifier.
	EntityID string

	// ReferencedBy is the stream whose event carried the reference.
	ReferencedBy string
}

// NewReferencedEntityMissingError creates a new ReferencedEntityMissingError.
func NewReferencedEntityMissingError(entityType, entityID, referencedBy string) *ReferencedEntityMissingError {
	return &ReferencedEntityMissingError{
		EntityType:   entityType,
		EntityID:     entityID,
		ReferencedBy: referencedBy,
	}
}

// Error returns the error message.
func (e *ReferencedEntityMissingError) Error() string {
	return fmt.Sprintf("readmodel: %s %q referenced by %q does not exist", e.EntityType, e.EntityID, e.ReferencedBy)
}

// Is reports whether this error matches the target error.
func (e *ReferencedEntityMissingError) Is(target error) bool {
	return target == ErrReferencedEntityMissing
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ReferencedEntityMissingError) Unwrap() error {
	return ErrReferencedEntityMissing
}
