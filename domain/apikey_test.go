package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiKey(t *testing.T) {
	now := time.Now()

	newKey := func(t *testing.T, expiresOn *time.Time) (*ApiKey, string) {
		t.Helper()
		secret := GenerateSecret()
		hash, err := HashSecret(secret)
		require.NoError(t, err)
		k := CreateApiKey("key-1", nil, "CI pipeline", hash, expiresOn)
		k.ClearUncommittedEvents()
		return k, secret
	}

	t.Run("create raises a single event", func(t *testing.T) {
		expires := now.Add(24 * time.Hour)
		secret := GenerateSecret()
		hash, err := HashSecret(secret)
		require.NoError(t, err)
		k := CreateApiKey("key-1", nil, "CI pipeline", hash, &expires)

		events := k.UncommittedEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(ApiKeyCreated)
		require.True(t, ok)
		assert.Equal(t, "CI pipeline", created.DisplayName)
		assert.NotEqual(t, secret, created.SecretHash)
	})

	t.Run("mutations coalesce into one updated event", func(t *testing.T) {
		k, _ := newKey(t, nil)

		description := "deploys the main branch"
		require.NoError(t, k.SetDisplayName("CD pipeline"))
		require.NoError(t, k.SetDescription(&description))
		require.NoError(t, k.AddRole("role-1"))
		require.NoError(t, k.AddRole("role-2"))
		require.NoError(t, k.RemoveRole("role-2"))

		events := k.UncommittedEvents()
		require.Len(t, events, 1)
		updated, ok := events[0].(ApiKeyUpdated)
		require.True(t, ok)
		require.NotNil(t, updated.DisplayName)
		assert.Equal(t, "CD pipeline", *updated.DisplayName)
		assert.Equal(t, map[string]bool{"role-1": true}, updated.Roles)
	})

	t.Run("expiry can only move earlier", func(t *testing.T) {
		expires := now.Add(24 * time.Hour)
		k, _ := newKey(t, &expires)

		err := k.SetExpiresOn(now.Add(48 * time.Hour))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))

		require.NoError(t, k.SetExpiresOn(now.Add(time.Hour)))
		assert.Len(t, k.UncommittedEvents(), 1)
	})

	t.Run("authenticate succeeds before expiry", func(t *testing.T) {
		expires := now.Add(24 * time.Hour)
		k, secret := newKey(t, &expires)

		require.NoError(t, k.Authenticate(secret, now))

		events := k.UncommittedEvents()
		require.Len(t, events, 1)
		_, ok := events[0].(ApiKeyAuthenticated)
		assert.True(t, ok)
	})

	t.Run("authenticate fails after expiry", func(t *testing.T) {
		expires := now.Add(time.Hour)
		k, secret := newKey(t, &expires)

		err := k.Authenticate(secret, now.Add(2*time.Hour))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))
		assert.Empty(t, k.UncommittedEvents())
	})

	t.Run("authenticate fails with a wrong secret", func(t *testing.T) {
		k, _ := newKey(t, nil)

		err := k.Authenticate("not-the-secret", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("delete is terminal", func(t *testing.T) {
		k, secret := newKey(t, nil)
		require.NoError(t, k.Delete())
		assert.True(t, k.IsDeleted())

		err := k.Authenticate(secret, now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))

		err = k.SetDisplayName("other")
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("replay reproduces state", func(t *testing.T) {
		expires := now.Add(24 * time.Hour)
		hash, err := HashSecret(GenerateSecret())
		require.NoError(t, err)
		k := CreateApiKey("key-1", nil, "CI pipeline", hash, &expires)
		description := "deploys the main branch"
		require.NoError(t, k.SetDescription(&description))
		require.NoError(t, k.AddRole("role-1"))

		replayed := NewApiKey("key-1")
		for _, event := range k.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}

		assert.Equal(t, k.DisplayName(), replayed.DisplayName())
		assert.Equal(t, k.Description(), replayed.Description())
		assert.ElementsMatch(t, k.Roles(), replayed.Roles())
	})
}
