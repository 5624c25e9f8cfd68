package eventstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-id/portal/eventstore"
	"github.com/tessera-id/portal/eventstore/memory"
)

type profileCreated struct {
	Owner string `json:"owner"`
}

type profileRenamed struct {
	Name string `json:"name"`
}

// profile is a minimal aggregate exercising the runtime contract.
type profile struct {
	eventstore.AggregateBase

	Owner string
	Name  string
}

func newProfile(id string) *profile {
	return &profile{AggregateBase: eventstore.NewAggregateBase(id, "Profile")}
}

func createProfile(id, owner string) *profile {
	p := newProfile(id)
	e := profileCreated{Owner: owner}
	p.Raise(e)
	p.Owner = owner
	return p
}

func (p *profile) Rename(name string) {
	e := profileRenamed{Name: name}
	p.Raise(e)
	p.Name = name
}

func (p *profile) ApplyEvent(event any) error {
	switch e := event.(type) {
	case profileCreated:
		p.Owner = e.Owner
	case profileRenamed:
		p.Name = e.Name
	default:
		return errors.New("unknown event")
	}
	return nil
}

func newStore() *eventstore.Store {
	store := eventstore.New(memory.NewAdapter())
	store.RegisterEvents(profileCreated{}, profileRenamed{})
	return store
}

func TestStoreAppendLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip with metadata", func(t *testing.T) {
		store := newStore()
		meta := eventstore.Metadata{ActorID: "actor-1", CorrelationID: "corr-1"}
		err := store.Append(ctx, "Profile-p1",
			[]any{profileCreated{Owner: "alice"}, profileRenamed{Name: "Alice"}},
			eventstore.WithAppendMetadata(meta))
		require.NoError(t, err)

		events, err := store.Load(ctx, "Profile-p1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(1), events[0].Version)
		assert.Equal(t, int64(2), events[1].Version)
		assert.Equal(t, "profileCreated", events[0].Type)
		assert.Equal(t, "actor-1", events[0].Metadata.ActorID)
		assert.Equal(t, profileRenamed{Name: "Alice"}, events[1].Data)
		assert.False(t, events[0].OccurredAt.IsZero())
	})

	t.Run("empty stream id rejected", func(t *testing.T) {
		store := newStore()
		err := store.Append(ctx, "", []any{profileCreated{}})
		assert.ErrorIs(t, err, eventstore.ErrEmptyStreamID)
	})

	t.Run("missing stream", func(t *testing.T) {
		store := newStore()
		_, err := store.Load(ctx, "Profile-nope")
		assert.ErrorIs(t, err, eventstore.ErrStreamNotFound)
	})

	t.Run("load from version", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Append(ctx, "Profile-p1", []any{
			profileCreated{Owner: "alice"},
			profileRenamed{Name: "a"},
			profileRenamed{Name: "b"},
		}))

		events, err := store.LoadFrom(ctx, "Profile-p1", 1)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].Version)
	})
}

func TestStoreOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("expected version mismatch", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Append(ctx, "Profile-p1", []any{profileCreated{Owner: "alice"}}))

		err := store.Append(ctx, "Profile-p1", []any{profileRenamed{Name: "x"}},
			eventstore.ExpectVersion(5))
		var conflict *eventstore.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(5), conflict.ExpectedVersion)
		assert.Equal(t, int64(1), conflict.ActualVersion)
	})

	t.Run("no-stream expectation", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Append(ctx, "Profile-p1", []any{profileCreated{Owner: "alice"}},
			eventstore.ExpectVersion(eventstore.NoStream)))

		err := store.Append(ctx, "Profile-p1", []any{profileCreated{Owner: "bob"}},
			eventstore.ExpectVersion(eventstore.NoStream))
		var conflict *eventstore.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("one of two stale saves wins", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.SaveAggregate(ctx, createProfile("p1", "alice")))

		first := newProfile("p1")
		require.NoError(t, store.LoadAggregate(ctx, first))
		second := newProfile("p1")
		require.NoError(t, store.LoadAggregate(ctx, second))

		first.Rename("one")
		second.Rename("two")

		require.NoError(t, store.SaveAggregate(ctx, first))
		err := store.SaveAggregate(ctx, second)
		var conflict *eventstore.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
	})
}

func TestStoreAggregates(t *testing.T) {
	ctx := context.Background()

	t.Run("save then replay reproduces state", func(t *testing.T) {
		store := newStore()
		p := createProfile("p1", "alice")
		p.Rename("Alice")
		require.NoError(t, store.SaveAggregate(ctx, p))
		assert.Equal(t, int64(2), p.Version())
		assert.Empty(t, p.UncommittedEvents())

		replayed := newProfile("p1")
		require.NoError(t, store.LoadAggregate(ctx, replayed))
		assert.Equal(t, int64(2), replayed.Version())
		assert.Equal(t, "alice", replayed.Owner)
		assert.Equal(t, "Alice", replayed.Name)
	})

	t.Run("save without events is a no-op", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.SaveAggregate(ctx, newProfile("p1")))

		_, err := store.Load(ctx, "Profile-p1")
		assert.ErrorIs(t, err, eventstore.ErrStreamNotFound)
	})

	t.Run("load missing aggregate", func(t *testing.T) {
		store := newStore()
		err := store.LoadAggregate(ctx, newProfile("nope"))
		assert.ErrorIs(t, err, eventstore.ErrStreamNotFound)
	})

	t.Run("load at historical version", func(t *testing.T) {
		store := newStore()
		p := createProfile("p1", "alice")
		p.Rename("one")
		require.NoError(t, store.SaveAggregate(ctx, p))
		p.Rename("two")
		require.NoError(t, store.SaveAggregate(ctx, p))

		historical := newProfile("p1")
		require.NoError(t, store.LoadAggregateAt(ctx, historical, 2))
		assert.Equal(t, int64(2), historical.Version())
		assert.Equal(t, "one", historical.Name)
	})
}

func TestStorePublishing(t *testing.T) {
	ctx := context.Background()

	t.Run("events publish in append order", func(t *testing.T) {
		store := newStore()
		var seen []string
		for _, eventType := range []string{"profileCreated", "profileRenamed"} {
			store.Bus().SubscribeFunc(eventType, func(ctx context.Context, event eventstore.Event) error {
				seen = append(seen, event.Type)
				return nil
			})
		}

		p := createProfile("p1", "alice")
		p.Rename("Alice")
		require.NoError(t, store.SaveAggregate(ctx, p))
		assert.Equal(t, []string{"profileCreated", "profileRenamed"}, seen)
	})

	t.Run("handler failure surfaces as projection error", func(t *testing.T) {
		store := newStore()
		store.Bus().SubscribeFunc("profileCreated", func(ctx context.Context, event eventstore.Event) error {
			return errors.New("boom")
		})

		err := store.SaveAggregate(ctx, createProfile("p1", "alice"))
		var projErr *eventstore.ProjectionError
		require.ErrorAs(t, err, &projErr)
		assert.Equal(t, "Profile-p1", projErr.StreamID)

		// The write itself is durable.
		events, loadErr := store.Load(ctx, "Profile-p1")
		require.NoError(t, loadErr)
		assert.Len(t, events, 1)
	})

	t.Run("global position order spans streams", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.Append(ctx, "Profile-p1", []any{profileCreated{Owner: "a"}}))
		require.NoError(t, store.Append(ctx, "Profile-p2", []any{profileCreated{Owner: "b"}}))

		stored, err := store.LoadEventsFromPosition(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Less(t, stored[0].GlobalPosition, stored[1].GlobalPosition)

		last, err := store.GetLastPosition(ctx)
		require.NoError(t, err)
		assert.Equal(t, stored[1].GlobalPosition, last)
	})
}
