package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	now := time.Now()

	t.Run("sign in creates an ephemeral session", func(t *testing.T) {
		s := SignIn("session-1", "user-1", nil, now)

		events := s.UncommittedEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(SessionCreated)
		require.True(t, ok)
		assert.Equal(t, "user-1", created.UserID)
		assert.Nil(t, created.SecretHash)
		assert.False(t, s.IsPersistent())
		assert.True(t, s.IsActive())
	})

	t.Run("persistent session renews with the right secret", func(t *testing.T) {
		secret := GenerateSecret()
		hash, err := HashSecret(secret)
		require.NoError(t, err)
		s := SignIn("session-1", "user-1", &hash, now)
		s.ClearUncommittedEvents()

		next := GenerateSecret()
		nextHash, err := HashSecret(next)
		require.NoError(t, err)
		require.NoError(t, s.Renew(secret, nextHash, now.Add(time.Hour)))

		events := s.UncommittedEvents()
		require.Len(t, events, 1)
		renewed, ok := events[0].(SessionRenewed)
		require.True(t, ok)
		assert.Equal(t, nextHash, renewed.SecretHash)

		// The old secret no longer renews.
		err = s.Renew(secret, nextHash, now.Add(2*time.Hour))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("ephemeral session cannot renew", func(t *testing.T) {
		s := SignIn("session-1", "user-1", nil, now)

		err := s.Renew("anything", "hash", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("sign out is terminal", func(t *testing.T) {
		s := SignIn("session-1", "user-1", nil, now)
		require.NoError(t, s.SignOut(now))
		assert.False(t, s.IsActive())

		err := s.SignOut(now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))

		err = s.Renew("anything", "hash", now)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("replay reproduces state", func(t *testing.T) {
		secret := GenerateSecret()
		hash, err := HashSecret(secret)
		require.NoError(t, err)
		s := SignIn("session-1", "user-1", &hash, now)
		require.NoError(t, s.SignOut(now.Add(time.Hour)))

		replayed := NewSession("session-1")
		for _, event := range s.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}

		assert.Equal(t, "user-1", replayed.UserID())
		assert.True(t, replayed.IsPersistent())
		assert.False(t, replayed.IsActive())
	})
}
