// Package msgpack provides a MessagePack serializer for the event store.
//
// MessagePack is a binary serialization format that produces smaller payloads
// than JSON while keeping the same flexibility. Useful when event volume makes
// payload size matter.
package msgpack

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessera-id/portal/eventstore"
)

var _ eventstore.Serializer = (*Serializer)(nil)

// Serializer is a MessagePack implementation of eventstore.Serializer.
type Serializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewSerializer creates a new MessagePack Serializer with an empty registry.
func NewSerializer() *Serializer {
	return &Serializer{registry: make(map[string]reflect.Type)}
}

// Register adds a mapping from eventType to the Go type of the example.
func (s *Serializer) Register(eventType string, example any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *Serializer) RegisterAll(examples ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, example := range examples {
		t := reflect.TypeOf(example)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		s.registry[t.Name()] = t
	}
}

// Lookup returns the Go type for the given event type name.
func (s *Serializer) Lookup(eventType string) (reflect.Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.registry[eventType]
	return t, ok
}

// Serialize converts an event to MessagePack bytes.
func (s *Serializer) Serialize(event any) ([]byte, error) {
	if event == nil {
		return nil, eventstore.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	data, err := msgpack.Marshal(event)
	if err != nil {
		return nil, eventstore.NewSerializationError(eventstore.EventTypeName(event), "serialize", err)
	}
	return data, nil
}

// Deserialize converts MessagePack bytes back to a value of the registered type.
func (s *Serializer) Deserialize(data []byte, eventType string) (any, error) {
	if len(data) == 0 {
		return nil, eventstore.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.Lookup(eventType)
	if !ok {
		return nil, eventstore.ErrEventTypeNotRegistered
	}

	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, eventstore.NewSerializationError(eventType, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}
