// Package eventstore provides the append-only, versioned event log and the
// aggregate runtime for the portal. Aggregates mutate state exclusively by
// appending immutable events; streams enforce contiguous versions through
// optimistic concurrency checks at append time.
package eventstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions. Use errors.Is() to check for these.
var (
	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = errors.New("eventstore: concurrency conflict")

	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = errors.New("eventstore: stream not found")

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = errors.New("eventstore: stream ID is required")

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = errors.New("eventstore: no events to append")

	// ErrInvalidVersion indicates an invalid version number was provided.
	ErrInvalidVersion = errors.New("eventstore: invalid version")

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = errors.New("eventstore: adapter is closed")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("eventstore: nil aggregate")

	// ErrEventTypeNotRegistered indicates an unknown event type was encountered.
	ErrEventTypeNotRegistered = errors.New("eventstore: event type not registered")

	// ErrSerializationFailed indicates event serialization or deserialization failed.
	ErrSerializationFailed = errors.New("eventstore: serialization failed")

	// ErrProjectionFailed indicates a projection handler failed after the
	// triggering events were durably appended.
	ErrProjectionFailed = errors.New("eventstore: projection failed")
)

// ConcurrencyError provides detailed information about a concurrency conflict.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error returns the error message.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("eventstore: concurrency conflict on stream %q: expected version %d, actual version %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is reports whether this error matches the target error.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrencyConflict
}

// StreamNotFoundError provides detailed information about a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// Error returns the error message.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("eventstore: stream %q not found", e.StreamID)
}

// Is reports whether this error matches the target error.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *StreamNotFoundError) Unwrap() error {
	return ErrStreamNotFound
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{EventType: eventType, Operation: operation, Cause: cause}
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("eventstore: failed to %s event type %q: %v", e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// ProjectionError reports a projection handler failure for events that were
// already durably appended. The write is committed; only the read model may
// lag behind until the projection is reprocessed.
type ProjectionError struct {
	StreamID string
	Version  int64
	Cause    error
}

// NewProjectionError creates a new ProjectionError.
func NewProjectionError(streamID string, version int64, cause error) *ProjectionError {
	return &ProjectionError{StreamID: streamID, Version: version, Cause: cause}
}

// Error returns the error message.
func (e *ProjectionError) Error() string {
	return fmt.Sprintf("eventstore: projection failed for stream %q at version %d (events are committed): %v",
		e.StreamID, e.Version, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *ProjectionError) Is(target error) bool {
	return target == ErrProjectionFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *ProjectionError) Unwrap() error {
	return e.Cause
}

// CheckVersion validates an expected version against the current stream state.
// Adapters share this logic so all backends behave identically.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch expected {
	case AnyVersion:
		return nil
	case NoStream:
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	case StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	default:
		if expected < 0 {
			return ErrInvalidVersion
		}
		if current != expected {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
}
