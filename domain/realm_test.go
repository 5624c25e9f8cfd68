package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealm(t *testing.T) {
	slug, err := NewSlug("acme")
	require.NoError(t, err)

	t.Run("create raises a single event with generated secret", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)

		events := r.UncommittedEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(RealmCreated)
		require.True(t, ok)
		assert.Equal(t, slug, created.UniqueSlug)
		assert.GreaterOrEqual(t, len(created.Secret), MinSecretLength)
	})

	t.Run("slug comparison is case-insensitive through normalization", func(t *testing.T) {
		upper, err := NewSlug("ACME")
		require.NoError(t, err)
		assert.Equal(t, slug.Normalized(), upper.Normalized())
	})

	t.Run("profile mutations coalesce into one updated event", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		r.ClearUncommittedEvents()

		name := "Acme Corp"
		url := "https://acme.example.com"
		require.NoError(t, r.SetDisplayName(&name))
		require.NoError(t, r.SetURL(&url))
		require.NoError(t, r.SetRequireUniqueEmail(true))
		require.NoError(t, r.SetCustomAttribute("plan", "enterprise"))

		events := r.UncommittedEvents()
		require.Len(t, events, 1)
		updated, ok := events[0].(RealmUpdated)
		require.True(t, ok)
		require.NotNil(t, updated.DisplayName)
		assert.Equal(t, name, *updated.DisplayName.Value)
		require.NotNil(t, updated.URL)
		assert.Equal(t, url, *updated.URL.Value)
		require.NotNil(t, updated.RequireUniqueEmail)
		assert.True(t, *updated.RequireUniqueEmail)
		require.Contains(t, updated.CustomAttributes, "plan")
		assert.Equal(t, "enterprise", *updated.CustomAttributes["plan"])
	})

	t.Run("clearing a field carries an explicit clear slot", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		name := "Acme Corp"
		require.NoError(t, r.SetDisplayName(&name))
		require.Len(t, r.UncommittedEvents(), 2)
		r.ClearUncommittedEvents()

		require.NoError(t, r.SetDisplayName(nil))

		events := r.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(RealmUpdated)
		require.NotNil(t, updated.DisplayName)
		assert.Nil(t, updated.DisplayName.Value)
		assert.Nil(t, r.DisplayName())
	})

	t.Run("no-op round trip raises nothing", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		name := "Acme Corp"
		require.NoError(t, r.SetDisplayName(&name))
		require.Len(t, r.UncommittedEvents(), 2)
		r.ClearUncommittedEvents()

		other := "Acme Inc"
		require.NoError(t, r.SetDisplayName(&other))
		require.NoError(t, r.SetDisplayName(&name))
		require.NoError(t, r.SetCustomAttribute("tier", "gold"))
		require.NoError(t, r.RemoveCustomAttribute("tier"))

		assert.Empty(t, r.UncommittedEvents())
	})

	t.Run("claim mapping add and remove", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		r.ClearUncommittedEvents()

		require.NoError(t, r.SetClaimMapping("department", ClaimMapping{Name: "dept", Type: "string"}))
		events := r.UncommittedEvents()
		require.Len(t, events, 1)
		r.ClearUncommittedEvents()

		require.NoError(t, r.RemoveClaimMapping("department"))
		events = r.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(RealmUpdated)
		require.Contains(t, updated.ClaimMappings, "department")
		assert.Nil(t, updated.ClaimMappings["department"])
		assert.Empty(t, r.ClaimMappings())
	})

	t.Run("replay reproduces mutated state", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		name := "Acme Corp"
		senderID := "sender-1"
		require.NoError(t, r.SetDisplayName(&name))
		require.NoError(t, r.SetRequireConfirmedAccount(true))
		require.NoError(t, r.SetCustomAttribute("plan", "enterprise"))
		require.NoError(t, r.SetPasswordRecoverySenderID(&senderID))

		replayed := NewRealm("realm-1")
		for _, event := range r.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}

		assert.Equal(t, r.UniqueSlug(), replayed.UniqueSlug())
		assert.Equal(t, r.DisplayName(), replayed.DisplayName())
		assert.Equal(t, r.RequireConfirmedAccount(), replayed.RequireConfirmedAccount())
		assert.Equal(t, r.CustomAttributes(), replayed.CustomAttributes())
		assert.Equal(t, r.PasswordRecoverySenderID(), replayed.PasswordRecoverySenderID())
		assert.Equal(t, r.Secret(), replayed.Secret())
	})

	t.Run("deleted realm rejects further mutation", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		require.NoError(t, r.Delete())

		err := r.SetRequireUniqueEmail(true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))

		var stateErr *InvalidStateError
		require.True(t, errors.As(err, &stateErr))
		assert.Equal(t, "deleted", stateErr.State)
	})

	t.Run("delete flushes staged changes before the deletion event", func(t *testing.T) {
		r := CreateRealm("realm-1", slug)
		r.ClearUncommittedEvents()

		name := "Acme Corp"
		require.NoError(t, r.SetDisplayName(&name))
		require.NoError(t, r.Delete())

		events := r.UncommittedEvents()
		require.Len(t, events, 2)
		_, ok := events[0].(RealmUpdated)
		assert.True(t, ok)
		_, ok = events[1].(RealmDeleted)
		assert.True(t, ok)
	})
}
