package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/eventstore"
	"github.com/tessera-id/portal/eventstore/memory"
)

type projectorFixture struct {
	stores Stores
	bus    *eventstore.Bus
}

func newProjectorFixture() *projectorFixture {
	stores := NewMemoryStores()
	bus := eventstore.NewBus()
	NewProjector(stores).Register(bus)
	return &projectorFixture{stores: stores, bus: bus}
}

func (f *projectorFixture) publish(t *testing.T, events ...eventstore.Event) {
	t.Helper()
	for _, event := range events {
		require.NoError(t, f.bus.Publish(context.Background(), event))
	}
}

func newEvent(category, id string, version int64, data any) eventstore.Event {
	return eventstore.Event{
		ID:         uuid.NewString(),
		StreamID:   category + "-" + id,
		Type:       eventstore.EventTypeName(data),
		Data:       data,
		Metadata:   eventstore.Metadata{ActorID: "actor-1"},
		Version:    version,
		OccurredAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC).Add(time.Duration(version) * time.Minute),
	}
}

func realmCreatedEvent(id, slug string) eventstore.Event {
	return newEvent(domain.AggregateTypeRealm, id, 1, domain.RealmCreated{
		UniqueSlug:         domain.Slug(slug),
		Secret:             "0123456789abcdef0123456789abcdef",
		UniqueNameSettings: domain.DefaultUniqueNameSettings(),
		PasswordSettings:   domain.DefaultPasswordSettings(),
	})
}

func TestProjectorRealm(t *testing.T) {
	ctx := context.Background()

	t.Run("created projects a view with a normalized slug", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Equal(t, "acme", view.UniqueSlug)
		assert.Equal(t, "ACME", view.NormalizedSlug)
		assert.Equal(t, int64(1), view.Version)
		assert.Equal(t, "actor-1", view.CreatedBy)
	})

	t.Run("lookup by normalized slug is case-insensitive", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))

		view, err := f.stores.Realms.FindOne(ctx,
			NewQuery().Where("NormalizedSlug", FilterOpEq, domain.Slug("ACME").Normalized()).Build())
		require.NoError(t, err)
		assert.Equal(t, "realm-1", view.ID)
	})

	t.Run("updated applies coalesced slots", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			DisplayName:      domain.Set("Acme Corp"),
			URL:              domain.Set("https://acme.example.com"),
			CustomAttributes: map[string]*string{"tier": strPtr("gold")},
		}))

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		require.NotNil(t, view.DisplayName)
		assert.Equal(t, "Acme Corp", *view.DisplayName)
		require.NotNil(t, view.URL)
		assert.Equal(t, "https://acme.example.com", *view.URL)
		assert.Equal(t, "gold", view.CustomAttributes["tier"])
		assert.Equal(t, int64(2), view.Version)
	})

	t.Run("clearing a field removes it from the view", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			DisplayName: domain.Set("Acme Corp"),
		}))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 3, domain.RealmUpdated{
			DisplayName: domain.Clear[string](),
		}))

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Nil(t, view.DisplayName)
	})

	t.Run("redelivered event is a no-op", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		update := newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			CustomAttributes: map[string]*string{"tier": strPtr("gold")},
		})
		f.publish(t, update, update)

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), view.Version)
		assert.Equal(t, "gold", view.CustomAttributes["tier"])
	})

	t.Run("stale event does not overwrite newer state", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			DisplayName: domain.Set("Current"),
		}))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			DisplayName: domain.Set("Stale"),
		}))

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		require.NotNil(t, view.DisplayName)
		assert.Equal(t, "Current", *view.DisplayName)
	})

	t.Run("password recovery sender resolves into a summary", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeSender, "sender-1", 1, domain.SenderCreated{
			Provider:     domain.ProviderSendGrid,
			EmailAddress: strPtr("no-reply@acme.example.com"),
		}))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			PasswordRecoverySenderID: domain.Set("sender-1"),
		}))

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		require.NotNil(t, view.PasswordRecoverySender)
		assert.Equal(t, "sender-1", view.PasswordRecoverySender.ID)

		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 3, domain.RealmUpdated{
			PasswordRecoverySenderID: domain.Clear[string](),
		}))
		view, err = f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Nil(t, view.PasswordRecoverySender)
	})

	t.Run("missing password recovery sender fails the projection", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))

		err := f.bus.Publish(ctx, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			PasswordRecoverySenderID: domain.Set("no-such-sender"),
		}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReferencedEntityMissing)

		var missing *ReferencedEntityMissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, domain.AggregateTypeSender, missing.EntityType)
		assert.Equal(t, "no-such-sender", missing.EntityID)
	})

	t.Run("failed projection leaves the stored view untouched", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmUpdated{
			CustomAttributes: map[string]*string{"color": strPtr("blue")},
		}))

		// The attribute delta applies before the sender lookup fails; none
		// of it may reach the stored view.
		err := f.bus.Publish(ctx, newEvent(domain.AggregateTypeRealm, "realm-1", 3, domain.RealmUpdated{
			CustomAttributes:         map[string]*string{"color": strPtr("red")},
			PasswordRecoverySenderID: domain.Set("no-such-sender"),
		}))
		require.ErrorIs(t, err, ErrReferencedEntityMissing)

		view, err := f.stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), view.Version)
		assert.Equal(t, "blue", view.CustomAttributes["color"])
	})

	t.Run("deleted removes the view", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, realmCreatedEvent("realm-1", "acme"))
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmDeleted{}))

		_, err := f.stores.Realms.Get(ctx, "realm-1")
		assert.ErrorIs(t, err, ErrNotFound)

		// Redelivery after deletion stays a no-op.
		f.publish(t, newEvent(domain.AggregateTypeRealm, "realm-1", 2, domain.RealmDeleted{}))
	})
}

func TestProjectorUser(t *testing.T) {
	ctx := context.Background()
	hash := "$argon2id$v=19$m=65536,t=1,p=4$salt$hash"

	t.Run("created keeps the hash private and flags its presence", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{
			UniqueName:   "alice",
			PasswordHash: &hash,
		}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, view.HasPassword)
		require.NotNil(t, view.PasswordHash)
		assert.Equal(t, hash, *view.PasswordHash)
		assert.Equal(t, "ALICE", view.NormalizedName)
	})

	t.Run("profile update assembles the full name", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			FirstName: domain.Set("Alice"),
			LastName:  domain.Set("Martin"),
		}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, view.FullName)
		assert.Equal(t, "Alice Martin", *view.FullName)
	})

	t.Run("granted roles resolve into embedded role views", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeRole, "role-1", 1, domain.RoleCreated{UniqueName: "admin"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			Roles: map[string]bool{"role-1": true},
		}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, view.Roles, 1)
		assert.Equal(t, "admin", view.Roles[0].UniqueName)
	})

	t.Run("granting an unknown role fails the projection", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))

		err := f.bus.Publish(ctx, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			Roles: map[string]bool{"ghost": true},
		}))
		assert.ErrorIs(t, err, ErrReferencedEntityMissing)
	})

	t.Run("failed role grant leaves the stored view untouched", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			CustomAttributes: map[string]*string{"team": strPtr("platform")},
		}))

		err := f.bus.Publish(ctx, newEvent(domain.AggregateTypeUser, "user-1", 3, domain.UserUpdated{
			CustomAttributes: map[string]*string{"team": strPtr("infra")},
			Roles:            map[string]bool{"ghost": true},
		}))
		require.ErrorIs(t, err, ErrReferencedEntityMissing)

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), view.Version)
		assert.Equal(t, "platform", view.CustomAttributes["team"])
		assert.Empty(t, view.Roles)
	})

	t.Run("renaming a role refreshes embedded copies", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeRole, "role-1", 1, domain.RoleCreated{UniqueName: "admin"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			Roles: map[string]bool{"role-1": true},
		}))
		f.publish(t, newEvent(domain.AggregateTypeRole, "role-1", 2, domain.RoleUpdated{
			UniqueName: strPtr("administrator"),
		}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, view.Roles, 1)
		assert.Equal(t, "administrator", view.Roles[0].UniqueName)
	})

	t.Run("deleting a role strips embedded copies", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeRole, "role-1", 1, domain.RoleCreated{UniqueName: "admin"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			Roles: map[string]bool{"role-1": true},
		}))
		f.publish(t, newEvent(domain.AggregateTypeRole, "role-1", 2, domain.RoleDeleted{}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, view.Roles)
	})

	t.Run("identifiers follow their discrete events", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserIdentifierSet{Key: "google", Value: "g-123"}))

		view, err := f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "g-123", view.Identifiers["google"])

		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 3, domain.UserIdentifierRemoved{Key: "google"}))
		view, err = f.stores.Users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, view.Identifiers)
	})
}

func TestProjectorSession(t *testing.T) {
	ctx := context.Background()
	signedIn := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	sessionFixture := func(t *testing.T) *projectorFixture {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 1, domain.UserCreated{UniqueName: "alice"}))
		f.publish(t, newEvent(domain.AggregateTypeSession, "session-1", 1, domain.SessionCreated{
			UserID:     "user-1",
			SecretHash: strPtr("refresh-hash"),
			SignedInAt: signedIn,
		}))
		return f
	}

	t.Run("created resolves the user summary", func(t *testing.T) {
		f := sessionFixture(t)

		view, err := f.stores.Sessions.Get(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", view.User.UniqueName)
		assert.True(t, view.IsPersistent)
		assert.True(t, view.IsActive)
	})

	t.Run("created for an unknown user fails the projection", func(t *testing.T) {
		f := newProjectorFixture()

		err := f.bus.Publish(ctx, newEvent(domain.AggregateTypeSession, "session-1", 1, domain.SessionCreated{
			UserID:     "ghost",
			SignedInAt: signedIn,
		}))
		assert.ErrorIs(t, err, ErrReferencedEntityMissing)
	})

	t.Run("sign-out deactivates the view", func(t *testing.T) {
		f := sessionFixture(t)
		f.publish(t, newEvent(domain.AggregateTypeSession, "session-1", 2, domain.SessionSignedOut{
			SignedOutAt: signedIn.Add(time.Hour),
		}))

		view, err := f.stores.Sessions.Get(ctx, "session-1")
		require.NoError(t, err)
		assert.False(t, view.IsActive)
		require.NotNil(t, view.SignedOutAt)
	})

	t.Run("renaming the user refreshes session summaries", func(t *testing.T) {
		f := sessionFixture(t)
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserUpdated{
			UniqueName: strPtr("alice.m"),
		}))

		view, err := f.stores.Sessions.Get(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, "alice.m", view.User.UniqueName)
	})

	t.Run("deleting the user removes its sessions", func(t *testing.T) {
		f := sessionFixture(t)
		f.publish(t, newEvent(domain.AggregateTypeUser, "user-1", 2, domain.UserDeleted{}))

		_, err := f.stores.Sessions.Get(ctx, "session-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.stores.Users.Get(ctx, "user-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestProjectorDictionary(t *testing.T) {
	ctx := context.Background()

	t.Run("entry deltas update the count", func(t *testing.T) {
		f := newProjectorFixture()
		f.publish(t, newEvent(domain.AggregateTypeDictionary, "dict-1", 1, domain.DictionaryCreated{
			Locale: domain.Locale("fr"),
		}))
		f.publish(t, newEvent(domain.AggregateTypeDictionary, "dict-1", 2, domain.DictionaryUpdated{
			Entries: map[string]*string{"greeting": strPtr("Bonjour"), "farewell": strPtr("Au revoir")},
		}))

		view, err := f.stores.Dictionaries.Get(ctx, "dict-1")
		require.NoError(t, err)
		assert.Equal(t, 2, view.EntryCount)

		f.publish(t, newEvent(domain.AggregateTypeDictionary, "dict-1", 3, domain.DictionaryUpdated{
			Entries: map[string]*string{"farewell": nil},
		}))
		view, err = f.stores.Dictionaries.Get(ctx, "dict-1")
		require.NoError(t, err)
		assert.Equal(t, 1, view.EntryCount)
		assert.Equal(t, "Bonjour", view.Entries["greeting"])
	})
}

func TestRebuilder(t *testing.T) {
	ctx := context.Background()

	t.Run("replays the whole log into cleared views", func(t *testing.T) {
		adapter := memory.NewAdapter()
		stores := NewMemoryStores()
		bus := eventstore.NewBus()
		NewProjector(stores).Register(bus)
		store := eventstore.New(adapter, eventstore.WithBus(bus))
		store.RegisterEvents(domain.AllEvents()...)

		realm := domain.CreateRealm("realm-1", domain.Slug("acme"))
		require.NoError(t, realm.SetDisplayName(strPtr("Acme Corp")))
		require.NoError(t, store.SaveAggregate(ctx, realm))

		// Drop the live views, then rebuild from the log.
		require.NoError(t, stores.Realms.Clear(ctx))
		_, err := stores.Realms.Get(ctx, "realm-1")
		require.ErrorIs(t, err, ErrNotFound)

		rebuilder := NewRebuilder(store, stores, WithRebuilderBatchSize(1))
		result, err := rebuilder.Rebuild(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), result.EventsProcessed)

		view, err := stores.Realms.Get(ctx, "realm-1")
		require.NoError(t, err)
		assert.Equal(t, "ACME", view.NormalizedSlug)
		require.NotNil(t, view.DisplayName)
		assert.Equal(t, "Acme Corp", *view.DisplayName)
		assert.Equal(t, int64(2), view.Version)
	})
}
