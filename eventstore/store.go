package eventstore

import (
	"context"
	"fmt"
)

// Store is the main entry point for event sourcing operations: appending
// events, hydrating aggregates, and dispatching persisted events to the bus.
type Store struct {
	adapter    Adapter
	serializer Serializer
	bus        *Bus
	logger     Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *Store) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *Store) {
		es.logger = l
	}
}

// WithBus sets the event bus persisted events are published on.
func WithBus(b *Bus) Option {
	return func(es *Store) {
		es.bus = b
	}
}

// New creates a new Store with the given adapter and options.
func New(adapter Adapter, opts ...Option) *Store {
	es := &Store{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		bus:        NewBus(),
		logger:     NopLogger(),
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Serializer returns the store's serializer.
func (s *Store) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *Store) Adapter() Adapter {
	return s.adapter
}

// Bus returns the event bus persisted events are published on.
func (s *Store) Bus() *Bus {
	return s.bus
}

// RegisterEvents registers event types with the serializer under their
// struct names.
func (s *Store) RegisterEvents(events ...any) {
	type registrar interface {
		RegisterAll(examples ...any)
	}
	if r, ok := s.serializer.(registrar); ok {
		r.RegisterAll(events...)
	}
}

// AppendOption configures an append operation.
type AppendOption func(*appendConfig)

type appendConfig struct {
	metadata        Metadata
	expectedVersion int64
}

// ExpectVersion sets the expected stream version for optimistic concurrency.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) {
		c.expectedVersion = v
	}
}

// WithAppendMetadata sets metadata for all events in the append operation.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) {
		c.metadata = m
	}
}

// Append serializes and stores events to the specified stream, then publishes
// them on the bus in append order.
func (s *Store) Append(ctx context.Context, streamID string, events []any, opts ...AppendOption) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return ErrNoEvents
	}

	config := &appendConfig{expectedVersion: AnyVersion}
	for _, opt := range opts {
		opt(config)
	}

	records := make([]EventRecord, len(events))
	for i, event := range events {
		record, err := SerializeEvent(s.serializer, event, config.metadata)
		if err != nil {
			return fmt.Errorf("eventstore: failed to serialize event %d: %w", i, err)
		}
		records[i] = record
	}

	stored, err := s.adapter.Append(ctx, streamID, records, config.expectedVersion)
	if err != nil {
		return err
	}

	return s.publish(ctx, stored, events)
}

// Load retrieves all events from a stream, deserialized.
func (s *Store) Load(ctx context.Context, streamID string) ([]Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves events from a stream starting after the specified version.
func (s *Store) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := s.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(stored))
	for i, se := range stored {
		event, err := DeserializeEvent(s.serializer, se)
		if err != nil {
			return nil, fmt.Errorf("eventstore: failed to deserialize event %d: %w", i, err)
		}
		events[i] = event
	}

	return events, nil
}

// SaveAggregate persists the aggregate's uncommitted events using the
// aggregate's current version as the expected version, then publishes them on
// the bus in append order. On success the aggregate's version advances and
// its uncommitted list is cleared. A ConcurrencyError is surfaced to the
// caller unmodified; whether to reload and retry is the caller's decision.
//
// A ProjectionError after a successful append means the write is durable but
// the read model has not caught up.
func (s *Store) SaveAggregate(ctx context.Context, agg Aggregate, opts ...AppendOption) error {
	if agg == nil {
		return ErrNilAggregate
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	config := &appendConfig{}
	for _, opt := range opts {
		opt(config)
	}

	streamID := agg.AggregateType() + "-" + agg.AggregateID()

	records := make([]EventRecord, len(events))
	for i, event := range events {
		record, err := SerializeEvent(s.serializer, event, config.metadata)
		if err != nil {
			return fmt.Errorf("eventstore: failed to serialize aggregate event %d: %w", i, err)
		}
		records[i] = record
	}

	expectedVersion := agg.Version()

	stored, err := s.adapter.Append(ctx, streamID, records, expectedVersion)
	if err != nil {
		return err
	}

	if setter, ok := agg.(VersionSetter); ok {
		setter.SetVersion(expectedVersion + int64(len(events)))
	}
	agg.ClearUncommittedEvents()

	return s.publish(ctx, stored, events)
}

// LoadAggregate hydrates an aggregate by replaying its stream in version
// order through ApplyEvent. The aggregate must be a fresh instance with its
// ID and type set. Returns a StreamNotFoundError if the stream has no events.
func (s *Store) LoadAggregate(ctx context.Context, agg Aggregate) error {
	return s.LoadAggregateAt(ctx, agg, 0)
}

// LoadAggregateAt hydrates an aggregate up to atVersion (0 = latest).
func (s *Store) LoadAggregateAt(ctx context.Context, agg Aggregate, atVersion int64) error {
	if agg == nil {
		return ErrNilAggregate
	}

	streamID := agg.AggregateType() + "-" + agg.AggregateID()

	stored, err := s.adapter.Load(ctx, streamID, 0)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return NewStreamNotFoundError(streamID)
	}

	var lastVersion int64
	for i, se := range stored {
		if atVersion > 0 && se.Version > atVersion {
			break
		}

		data, err := s.serializer.Deserialize(se.Data, se.Type)
		if err != nil {
			return fmt.Errorf("eventstore: failed to deserialize event %d: %w", i, err)
		}

		if err := agg.ApplyEvent(data); err != nil {
			return fmt.Errorf("eventstore: failed to apply event %d: %w", i, err)
		}
		lastVersion = se.Version
	}

	if setter, ok := agg.(VersionSetter); ok {
		setter.SetVersion(lastVersion)
	}

	return nil
}

// GetStreamInfo returns metadata about a stream.
func (s *Store) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	return s.adapter.GetStreamInfo(ctx, streamID)
}

// GetLastPosition returns the global position of the last stored event.
func (s *Store) GetLastPosition(ctx context.Context) (uint64, error) {
	return s.adapter.GetLastPosition(ctx)
}

// LoadEventsFromPosition loads events across all streams starting after a
// global position, in global order.
func (s *Store) LoadEventsFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]StoredEvent, error) {
	return s.adapter.LoadFromPosition(ctx, fromPosition, limit)
}

// Initialize sets up the required storage schema.
func (s *Store) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *Store) Close() error {
	return s.adapter.Close()
}

// publish delivers stored events to the bus in append order, pairing each
// stored record with the original in-memory payload so handlers receive
// typed data without a deserialization round trip. Once any event has been
// appended, a dispatch failure is a ProjectionError, never a write failure.
func (s *Store) publish(ctx context.Context, stored []StoredEvent, payloads []any) error {
	for i, se := range stored {
		event := EventFromStored(se, payloads[i])
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("projection dispatch failed",
				"streamId", se.StreamID,
				"version", se.Version,
				"eventType", se.Type,
				"error", err,
			)
			return NewProjectionError(se.StreamID, se.Version, err)
		}
	}
	return nil
}
