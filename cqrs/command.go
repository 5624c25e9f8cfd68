// Package cqrs implements the write side of the portal: a command bus with a
// middleware pipeline dispatching typed commands to aggregate handlers.
package cqrs

import (
	"context"
	"fmt"
	"reflect"
)

// Command represents an intent to change portal state. Commands are validated
// before execution; handlers never see an invalid command.
type Command interface {
	// CommandType returns the type identifier, e.g. "CreateRealm".
	CommandType() string

	// Validate checks semantic rules the struct tags cannot express.
	Validate() error
}

// AggregateCommand is a command targeting a specific aggregate instance.
type AggregateCommand interface {
	Command

	// AggregateID returns the target aggregate ID, or empty for commands
	// that create a new aggregate.
	AggregateID() string
}

// IdempotentCommand carries an explicit deduplication key.
type IdempotentCommand interface {
	Command

	IdempotencyKey() string
}

// Secret is a string that never leaks through formatting or JSON. Command
// payloads carry passwords and API secrets in this type so logging and
// panic-capture middleware see only the mask.
type Secret string

const secretMask = "********"

// String returns the mask.
func (Secret) String() string { return secretMask }

// GoString returns the mask, covering %#v.
func (Secret) GoString() string { return "cqrs.Secret(" + secretMask + ")" }

// MarshalJSON writes the mask.
func (Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + secretMask + `"`), nil }

// UnmarshalJSON reads the raw value.
func (s *Secret) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		*s = Secret(data[1 : len(data)-1])
		return nil
	}
	return fmt.Errorf("cqrs: secret must be a JSON string")
}

// Raw returns the underlying value.
func (s Secret) Raw() string { return string(s) }

// IsEmpty reports whether no value was provided.
func (s Secret) IsEmpty() bool { return len(s) == 0 }

// CommandResult is the outcome of a command execution.
type CommandResult struct {
	// AggregateID is the affected aggregate. For create commands this is
	// the newly assigned ID.
	AggregateID string

	// Version is the aggregate version after execution.
	Version int64

	// Data carries handler-specific result data, typically the projected
	// view of the affected aggregate.
	Data any

	// Error holds the failure when the handler rejected the command.
	Error error
}

// NewResult creates a successful CommandResult.
func NewResult(aggregateID string, version int64) CommandResult {
	return CommandResult{AggregateID: aggregateID, Version: version}
}

// NewResultWithData creates a successful CommandResult carrying data.
func NewResultWithData(aggregateID string, version int64, data any) CommandResult {
	return CommandResult{AggregateID: aggregateID, Version: version, Data: data}
}

// NewErrorResult creates a failed CommandResult.
func NewErrorResult(err error) CommandResult {
	return CommandResult{Error: err}
}

// IsSuccess reports whether the command executed successfully.
func (r CommandResult) IsSuccess() bool { return r.Error == nil }

// IsError reports whether the command failed.
func (r CommandResult) IsError() bool { return r.Error != nil }

// CommandTypeOf returns the type name of a command value via reflection,
// for commands that derive their type from the struct name.
func CommandTypeOf(cmd any) string {
	if cmd == nil {
		return ""
	}
	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// MiddlewareFunc is the handler signature middleware wraps.
type MiddlewareFunc func(ctx context.Context, cmd Command) (CommandResult, error)

// Middleware wraps a handler function with additional behavior.
type Middleware func(next MiddlewareFunc) MiddlewareFunc

// Chain composes multiple middleware into one, preserving order.
func Chain(middleware ...Middleware) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		for i := len(middleware) - 1; i >= 0; i-- {
			next = middleware[i](next)
		}
		return next
	}
}
