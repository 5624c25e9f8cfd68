package cqrs

import (
	"context"
	"fmt"
	"sync"
)

// CommandHandler processes one command type.
type CommandHandler interface {
	CommandType() string
	Handle(ctx context.Context, cmd Command) (CommandResult, error)
}

// HandlerFunc adapts a function to CommandHandler.
type HandlerFunc struct {
	cmdType string
	fn      func(ctx context.Context, cmd Command) (CommandResult, error)
}

// NewHandlerFunc creates a HandlerFunc.
func NewHandlerFunc(cmdType string, fn func(ctx context.Context, cmd Command) (CommandResult, error)) *HandlerFunc {
	return &HandlerFunc{cmdType: cmdType, fn: fn}
}

func (h *HandlerFunc) CommandType() string { return h.cmdType }

func (h *HandlerFunc) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	return h.fn(ctx, cmd)
}

// TypedHandler is a type-safe handler for one command type.
type TypedHandler[C Command] struct {
	cmdType string
	fn      func(ctx context.Context, cmd C) (CommandResult, error)
}

// NewTypedHandler creates a handler with compile-time command typing.
func NewTypedHandler[C Command](fn func(ctx context.Context, cmd C) (CommandResult, error)) *TypedHandler[C] {
	var zero C
	return &TypedHandler[C]{cmdType: zero.CommandType(), fn: fn}
}

func (h *TypedHandler[C]) CommandType() string { return h.cmdType }

func (h *TypedHandler[C]) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	typed, ok := cmd.(C)
	if !ok {
		err := fmt.Errorf("cqrs: expected command type %T, got %T", *new(C), cmd)
		return NewErrorResult(err), err
	}
	return h.fn(ctx, typed)
}

// HandlerRegistry maps command types to handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]CommandHandler)}
}

// Register adds a handler, replacing any existing one for the same type.
func (r *HandlerRegistry) Register(handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.CommandType()] = handler
}

// Get returns the handler for a command type, or nil.
func (r *HandlerRegistry) Get(cmdType string) CommandHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[cmdType]
}

// Has reports whether a handler is registered for the command type.
func (r *HandlerRegistry) Has(cmdType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[cmdType]
	return ok
}

// Count returns the number of registered handlers.
func (r *HandlerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// CommandTypes returns all registered command types.
func (r *HandlerRegistry) CommandTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
