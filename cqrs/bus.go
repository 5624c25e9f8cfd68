package cqrs

import (
	"context"
	"sync"
	"sync/atomic"
)

// CommandBus routes commands to their handlers through a middleware pipeline.
// Middleware executes in the order it was added.
type CommandBus struct {
	registry   *HandlerRegistry
	middleware []Middleware
	closed     atomic.Bool
	mu         sync.RWMutex
}

// BusOption configures a CommandBus.
type BusOption func(*CommandBus)

// WithMiddleware adds middleware at construction time.
func WithMiddleware(middleware ...Middleware) BusOption {
	return func(b *CommandBus) {
		b.middleware = append(b.middleware, middleware...)
	}
}

// NewCommandBus creates a CommandBus.
func NewCommandBus(opts ...BusOption) *CommandBus {
	bus := &CommandBus{registry: NewHandlerRegistry()}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Register adds a handler to the bus.
func (b *CommandBus) Register(handlers ...CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range handlers {
		b.registry.Register(h)
	}
}

// Use appends middleware to the pipeline.
func (b *CommandBus) Use(middleware ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
}

// Dispatch sends a command through the middleware pipeline to its handler.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	if b.closed.Load() {
		return NewErrorResult(ErrBusClosed), ErrBusClosed
	}
	if cmd == nil {
		return NewErrorResult(ErrNilCommand), ErrNilCommand
	}

	b.mu.RLock()
	handler := b.registry.Get(cmd.CommandType())
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	if handler == nil {
		err := NewHandlerNotFoundError(cmd.CommandType())
		return NewErrorResult(err), err
	}

	chain := MiddlewareFunc(handler.Handle)
	for i := len(middleware) - 1; i >= 0; i-- {
		chain = middleware[i](chain)
	}
	return chain(ctx, cmd)
}

// HasHandler reports whether a handler is registered for the command type.
func (b *CommandBus) HasHandler(cmdType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Has(cmdType)
}

// Close stops the bus; further dispatches fail with ErrBusClosed.
func (b *CommandBus) Close() error {
	b.closed.Store(true)
	return nil
}
