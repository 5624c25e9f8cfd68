package cqrs

import (
	"errors"
	"fmt"
)

var (
	// ErrNilCommand is returned when a nil command is dispatched.
	ErrNilCommand = errors.New("cqrs: command is nil")

	// ErrBusClosed is returned when dispatching on a closed bus.
	ErrBusClosed = errors.New("cqrs: command bus is closed")

	// ErrHandlerNotFound is returned when no handler is registered for a
	// command type.
	ErrHandlerNotFound = errors.New("cqrs: no handler registered")

	// ErrValidationFailed is the sentinel for command validation failures.
	ErrValidationFailed = errors.New("cqrs: command validation failed")

	// ErrAlreadyProcessed is the sentinel for idempotency replays.
	ErrAlreadyProcessed = errors.New("cqrs: command already processed")
)

// HandlerNotFoundError reports a dispatch with no registered handler.
type HandlerNotFoundError struct {
	CommandType string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("cqrs: no handler registered for command %q", e.CommandType)
}

func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// NewHandlerNotFoundError creates a HandlerNotFoundError.
func NewHandlerNotFoundError(cmdType string) *HandlerNotFoundError {
	return &HandlerNotFoundError{CommandType: cmdType}
}

// CommandValidationError reports a command rejected before reaching its
// handler.
type CommandValidationError struct {
	CommandType string
	Field       string
	Message     string
	Cause       error
}

func (e *CommandValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cqrs: validation failed for command %q field %q: %s",
			e.CommandType, e.Field, e.Message)
	}
	return fmt.Sprintf("cqrs: validation failed for command %q: %s", e.CommandType, e.Message)
}

func (e *CommandValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *CommandValidationError) Unwrap() error {
	return e.Cause
}

// NewCommandValidationError creates a CommandValidationError.
func NewCommandValidationError(cmdType, field, message string) *CommandValidationError {
	return &CommandValidationError{CommandType: cmdType, Field: field, Message: message}
}

// PanicError wraps a panic recovered during command handling.
type PanicError struct {
	CommandType string
	Value       any
	Stack       string
	CommandData string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("cqrs: panic handling command %q: %v", e.CommandType, e.Value)
}

// NewPanicError creates a PanicError. CommandData is the masked JSON form of
// the command for debugging.
func NewPanicError(cmdType string, value any, stack, commandData string) *PanicError {
	return &PanicError{CommandType: cmdType, Value: value, Stack: stack, CommandData: commandData}
}
