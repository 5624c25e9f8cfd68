package eventstore

import (
	"encoding/json"
	"reflect"
	"sync"
)

// Serializer handles event payload serialization and deserialization.
type Serializer interface {
	// Serialize converts an event to bytes.
	Serialize(event any) ([]byte, error)

	// Deserialize converts bytes back to an event value of the registered
	// type for eventType.
	Deserialize(data []byte, eventType string) (any, error)
}

// TypeRegistry maps event type names to Go types so payloads can be
// deserialized back to their original types.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry creates a new empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]reflect.Type)}
}

// Register adds a mapping from eventType to the Go type of the example.
func (r *TypeRegistry) Register(eventType string, example any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.types[eventType] = t
}

// RegisterAll registers multiple events using their struct names as type names.
func (r *TypeRegistry) RegisterAll(examples ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, example := range examples {
		t := reflect.TypeOf(example)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		r.types[t.Name()] = t
	}
}

// Lookup returns the Go type for the given event type name.
func (r *TypeRegistry) Lookup(eventType string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[eventType]
	return t, ok
}

// RegisteredTypes returns all registered event type names.
func (r *TypeRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	return types
}

// JSONSerializer is the default Serializer implementation using JSON encoding.
type JSONSerializer struct {
	registry *TypeRegistry
}

// NewJSONSerializer creates a new JSONSerializer with an empty registry.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{registry: NewTypeRegistry()}
}

// NewJSONSerializerWithRegistry creates a new JSONSerializer with the given registry.
func NewJSONSerializerWithRegistry(registry *TypeRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &JSONSerializer{registry: registry}
}

// Register adds an event type to the serializer's registry.
func (s *JSONSerializer) Register(eventType string, example any) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers multiple events using their struct names as type names.
func (s *JSONSerializer) RegisterAll(examples ...any) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying type registry.
func (s *JSONSerializer) Registry() *TypeRegistry {
	return s.registry
}

// Serialize converts an event to JSON bytes.
func (s *JSONSerializer) Serialize(event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(EventTypeName(event), "serialize", err)
	}
	return data, nil
}

// Deserialize converts JSON bytes back to a value of the registered type.
// The returned value is a non-pointer struct value.
func (s *JSONSerializer) Deserialize(data []byte, eventType string) (any, error) {
	t, ok := s.registry.Lookup(eventType)
	if !ok {
		return nil, ErrEventTypeNotRegistered
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}

// EventTypeName returns the type identifier for an event value: the struct
// name, following the convention that events register under their type name.
func EventTypeName(event any) string {
	t := reflect.TypeOf(event)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// SerializeEvent converts an event to an EventRecord using the serializer.
func SerializeEvent(s Serializer, event any, metadata Metadata) (EventRecord, error) {
	data, err := s.Serialize(event)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		Type:     EventTypeName(event),
		Data:     data,
		Metadata: metadata,
	}, nil
}

// DeserializeEvent converts a StoredEvent to an Event using the serializer.
func DeserializeEvent(s Serializer, stored StoredEvent) (Event, error) {
	data, err := s.Deserialize(stored.Data, stored.Type)
	if err != nil {
		return Event{}, err
	}
	return EventFromStored(stored, data), nil
}
