package eventstore

import (
	"context"
	"sync"
)

// EventHandler processes a single published event. Handlers must be
// idempotent: re-delivery of an already-applied event must be a no-op.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls the function.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Observer is notified of every published event after all handlers have run.
// Observer failures are reported to the logger but never affect the outcome
// of the triggering command.
type Observer interface {
	ObserveEvent(ctx context.Context, event Event)
}

// Bus delivers each newly persisted event to the projection handlers
// registered for its type, synchronously and in registration order.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]EventHandler
	observers []Observer
	logger    Logger
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]EventHandler),
		logger:   NopLogger(),
	}
}

// SetLogger sets the logger used for observer failures.
func (b *Bus) SetLogger(l Logger) {
	if l == nil {
		l = NopLogger()
	}
	b.mu.Lock()
	b.logger = l
	b.mu.Unlock()
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeFunc registers a handler function for the given event type.
func (b *Bus) SubscribeFunc(eventType string, fn func(ctx context.Context, event Event) error) {
	b.Subscribe(eventType, EventHandlerFunc(fn))
}

// Observe registers an observer notified of every published event.
func (b *Bus) Observe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, observer)
}

// Publish delivers the event to every handler registered for its type, in
// registration order. The first handler error stops delivery and is returned.
// Observers run afterward regardless of handler outcome.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	observers := b.observers
	logger := b.logger
	b.mu.RUnlock()

	var handleErr error
	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			handleErr = err
			break
		}
		if err := handler.HandleEvent(ctx, event); err != nil {
			handleErr = err
			break
		}
	}

	for _, observer := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event observer panicked", "eventType", event.Type, "panic", r)
				}
			}()
			observer.ObserveEvent(ctx, event)
		}()
	}

	return handleErr
}

// HandlerCount returns the number of handlers registered for an event type.
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
