package readmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/tessera-id/portal/eventstore"
)

// Rebuilder reconstructs every view from scratch by replaying the whole
// event log in global order. Views are cleared first, so a rebuild must not
// run concurrently with command handling against the same stores.
type Rebuilder struct {
	store     *eventstore.Store
	stores    Stores
	projector *Projector
	logger    eventstore.Logger
	batchSize int
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithRebuilderBatchSize sets how many events are loaded per batch.
func WithRebuilderBatchSize(size int) RebuilderOption {
	return func(r *Rebuilder) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithRebuilderLogger sets the logger for rebuild progress.
func WithRebuilderLogger(logger eventstore.Logger) RebuilderOption {
	return func(r *Rebuilder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRebuilder creates a rebuilder replaying the given store into the given
// stores.
func NewRebuilder(store *eventstore.Store, stores Stores, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		store:     store,
		stores:    stores,
		projector: NewProjector(stores),
		logger:    eventstore.NopLogger(),
		batchSize: 1000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RebuildResult describes a completed rebuild.
type RebuildResult struct {
	EventsProcessed uint64
	LastPosition    uint64
	Duration        time.Duration
}

// Rebuild clears all views, then replays the log from the beginning.
func (r *Rebuilder) Rebuild(ctx context.Context) (*RebuildResult, error) {
	started := time.Now()

	if err := r.stores.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clearing views: %w", err)
	}

	bus := eventstore.NewBus()
	bus.SetLogger(r.logger)
	r.projector.Register(bus)

	serializer := r.store.Serializer()
	var position uint64
	var processed uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := r.store.LoadEventsFromPosition(ctx, position, r.batchSize)
		if err != nil {
			return nil, fmt.Errorf("loading events after position %d: %w", position, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, stored := range batch {
			event, err := eventstore.DeserializeEvent(serializer, stored)
			if err != nil {
				return nil, err
			}
			if err := bus.Publish(ctx, event); err != nil {
				return nil, eventstore.NewProjectionError(stored.StreamID, stored.Version, err)
			}
			position = stored.GlobalPosition
			processed++
		}
		r.logger.Debug("rebuild progress", "position", position, "events", processed)
	}

	result := &RebuildResult{
		EventsProcessed: processed,
		LastPosition:    position,
		Duration:        time.Since(started),
	}
	r.logger.Info("rebuild complete",
		"events", result.EventsProcessed,
		"position", result.LastPosition,
		"duration", result.Duration,
	)
	return result, nil
}
