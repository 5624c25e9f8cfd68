// Package memory provides an in-memory implementation of the event store
// adapter. It is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-id/portal/eventstore"
)

// Ensure Adapter implements the required interfaces.
var (
	_ eventstore.Adapter       = (*Adapter)(nil)
	_ eventstore.HealthChecker = (*Adapter)(nil)
)

// Adapter is an in-memory implementation of eventstore.Adapter.
// It is thread-safe and suitable for unit testing.
type Adapter struct {
	mu             sync.RWMutex
	streams        map[string]*streamData
	globalEvents   []eventstore.StoredEvent
	globalPosition uint64
	closed         bool
}

type streamData struct {
	info   eventstore.StreamInfo
	events []eventstore.StoredEvent
}

// NewAdapter creates a new in-memory event store adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		streams:      make(map[string]*streamData),
		globalEvents: make([]eventstore.StoredEvent, 0),
	}
}

// Initialize is a no-op for the memory adapter.
func (a *Adapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *Adapter) Append(ctx context.Context, streamID string, events []eventstore.EventRecord, expectedVersion int64) ([]eventstore.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, eventstore.ErrNoEvents
	}

	stream, exists := a.streams[streamID]
	currentVersion := int64(0)
	if exists {
		currentVersion = stream.info.Version
	}

	if err := eventstore.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	if !exists {
		stream = &streamData{
			info: eventstore.StreamInfo{
				StreamID:  streamID,
				Category:  eventstore.ExtractCategory(streamID),
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			},
			events: make([]eventstore.StoredEvent, 0),
		}
		a.streams[streamID] = stream
	}

	now := time.Now()
	stored := make([]eventstore.StoredEvent, len(events))

	for i, event := range events {
		a.globalPosition++
		currentVersion++

		se := eventstore.StoredEvent{
			ID:             uuid.New().String(),
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: a.globalPosition,
			OccurredAt:     now,
		}

		stream.events = append(stream.events, se)
		a.globalEvents = append(a.globalEvents, se)
		stored[i] = se
	}

	stream.info.Version = currentVersion
	stream.info.EventCount = int64(len(stream.events))
	stream.info.UpdatedAt = now

	return stored, nil
}

// Load retrieves events from a stream in version order, starting after fromVersion.
func (a *Adapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]eventstore.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, eventstore.ErrEmptyStreamID
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return []eventstore.StoredEvent{}, nil
	}

	events := make([]eventstore.StoredEvent, 0, len(stream.events))
	for _, event := range stream.events {
		if event.Version > fromVersion {
			events = append(events, event)
		}
	}
	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *Adapter) GetStreamInfo(ctx context.Context, streamID string) (*eventstore.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return nil, eventstore.NewStreamNotFoundError(streamID)
	}

	info := stream.info
	return &info, nil
}

// LoadFromPosition loads events across all streams starting after a global position.
func (a *Adapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]eventstore.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, eventstore.ErrAdapterClosed
	}

	if limit <= 0 {
		limit = 1000
	}

	var events []eventstore.StoredEvent
	for _, event := range a.globalEvents {
		if event.GlobalPosition > fromPosition {
			events = append(events, event)
			if len(events) >= limit {
				break
			}
		}
	}
	return events, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *Adapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, eventstore.ErrAdapterClosed
	}
	return a.globalPosition, nil
}

// Ping checks if the adapter is healthy.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return eventstore.ErrAdapterClosed
	}
	return nil
}

// Close releases resources held by the adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Reset clears all data. Useful for testing.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streams = make(map[string]*streamData)
	a.globalEvents = make([]eventstore.StoredEvent, 0)
	a.globalPosition = 0
}

// EventCount returns the total number of events stored.
func (a *Adapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.globalEvents)
}

// StreamCount returns the number of streams.
func (a *Adapter) StreamCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams)
}
