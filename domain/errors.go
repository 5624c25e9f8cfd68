// Package domain contains the portal's aggregate types and value objects.
// Aggregates encapsulate their invariants and mutate state exclusively by
// raising events; invalid values never reach the event log.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is() to check for these.
var (
	// ErrValidation indicates a value failed a value-object invariant.
	ErrValidation = errors.New("domain: validation failed")

	// ErrInvalidState indicates an operation was attempted on an aggregate
	// in a terminal state.
	ErrInvalidState = errors.New("domain: invalid aggregate state")

	// ErrNotFound indicates an aggregate or referenced entity is absent.
	ErrNotFound = errors.New("domain: not found")
)

// ValidationError reports a payload value failing a value-object invariant.
// It is surfaced to the caller before any event is appended.
type ValidationError struct {
	// Field is the offending field or parameter name.
	Field string

	// Message describes the failure.
	Message string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("domain: validation failed for %q: %s", e.Field, e.Message)
}

// Is reports whether this error matches the target error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidStateError reports a mutation attempted on an aggregate that has
// reached a terminal state (a signed-out session, a deleted API key).
type InvalidStateError struct {
	AggregateType string
	AggregateID   string
	State         string
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(aggregateType, aggregateID, state string) *InvalidStateError {
	return &InvalidStateError{AggregateType: aggregateType, AggregateID: aggregateID, State: state}
}

// Error returns the error message.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("domain: %s %q is %s and can no longer be modified", e.AggregateType, e.AggregateID, e.State)
}

// Is reports whether this error matches the target error.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NotFoundError reports a command targeting an aggregate that does not
// exist. Queries for absent views do not error; commands do.
type NotFoundError struct {
	AggregateType string
	AggregateID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(aggregateType, aggregateID string) *NotFoundError {
	return &NotFoundError{AggregateType: aggregateType, AggregateID: aggregateID}
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("domain: %s %q was not found", e.AggregateType, e.AggregateID)
}

// Is reports whether this error matches the target error.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
