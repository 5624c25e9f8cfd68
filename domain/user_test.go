package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashedPassword(t *testing.T, password string) *string {
	t.Helper()
	hash, err := HashSecret(password)
	require.NoError(t, err)
	return &hash
}

func TestUser(t *testing.T) {
	tenant := "realm-1"

	t.Run("create raises a single event", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", hashedPassword(t, "Test123!"))

		events := u.UncommittedEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(UserCreated)
		require.True(t, ok)
		assert.Equal(t, "alice", created.UniqueName)
		require.NotNil(t, created.TenantID)
		assert.Equal(t, tenant, *created.TenantID)
		require.NotNil(t, created.PasswordHash)
		assert.NotEqual(t, "Test123!", *created.PasswordHash)
	})

	t.Run("profile mutations coalesce into one updated event", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		u.ClearUncommittedEvents()

		first := "Alice"
		last := "Smith"
		email := "alice@example.com"
		require.NoError(t, u.SetFirstName(&first))
		require.NoError(t, u.SetLastName(&last))
		require.NoError(t, u.SetEmail(&email))
		require.NoError(t, u.AddRole("role-1"))

		events := u.UncommittedEvents()
		require.Len(t, events, 1)
		updated, ok := events[0].(UserUpdated)
		require.True(t, ok)
		require.NotNil(t, updated.FirstName)
		assert.Equal(t, first, *updated.FirstName.Value)
		require.NotNil(t, updated.Email)
		assert.Equal(t, email, *updated.Email.Value)
		assert.Equal(t, map[string]bool{"role-1": true}, updated.Roles)
	})

	t.Run("role add then remove within one cycle is a no-op", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		u.ClearUncommittedEvents()

		require.NoError(t, u.AddRole("role-1"))
		require.NoError(t, u.RemoveRole("role-1"))

		assert.Empty(t, u.UncommittedEvents())
		assert.False(t, u.HasRole("role-1"))
	})

	t.Run("full name assembles present parts", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		first := "Alice"
		last := "Smith"
		require.NoError(t, u.SetFirstName(&first))
		require.NoError(t, u.SetLastName(&last))

		full := u.FullName()
		require.NotNil(t, full)
		assert.Equal(t, "Alice Smith", *full)
	})

	t.Run("change password validates against the policy", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		u.ClearUncommittedEvents()

		err := u.ChangePassword("weak", DefaultPasswordSettings())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Empty(t, u.UncommittedEvents())

		require.NoError(t, u.ChangePassword("Test123!", DefaultPasswordSettings()))
		events := u.UncommittedEvents()
		require.Len(t, events, 1)
		changed, ok := events[0].(UserPasswordChanged)
		require.True(t, ok)
		assert.NotEqual(t, "Test123!", changed.PasswordHash)
		assert.True(t, u.HasPassword())
	})

	t.Run("authenticate succeeds with the right password", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", hashedPassword(t, "Test123!"))
		u.ClearUncommittedEvents()
		now := time.Now()

		require.NoError(t, u.Authenticate("Test123!", now))

		events := u.UncommittedEvents()
		require.Len(t, events, 1)
		authenticated, ok := events[0].(UserAuthenticated)
		require.True(t, ok)
		assert.Equal(t, now.UTC(), authenticated.At)
		require.NotNil(t, u.AuthenticatedAt())
	})

	t.Run("authenticate fails with a wrong password and raises nothing", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", hashedPassword(t, "Test123!"))
		u.ClearUncommittedEvents()

		err := u.Authenticate("Wrong123!", time.Now())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Empty(t, u.UncommittedEvents())
	})

	t.Run("authenticate fails on a disabled account", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", hashedPassword(t, "Test123!"))
		require.NoError(t, u.SetDisabled(true))
		u.ClearUncommittedEvents()

		err := u.Authenticate("Test123!", time.Now())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("identifiers set, overwrite and remove", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		u.ClearUncommittedEvents()

		require.NoError(t, u.SetIdentifier("google", "sub-123"))
		require.NoError(t, u.SetIdentifier("google", "sub-123"))
		require.NoError(t, u.SetIdentifier("google", "sub-456"))
		require.NoError(t, u.RemoveIdentifier("google"))
		require.NoError(t, u.RemoveIdentifier("missing"))

		events := u.UncommittedEvents()
		require.Len(t, events, 3)
		assert.Equal(t, UserIdentifierSet{Key: "google", Value: "sub-123"}, events[0])
		assert.Equal(t, UserIdentifierSet{Key: "google", Value: "sub-456"}, events[1])
		assert.Equal(t, UserIdentifierRemoved{Key: "google"}, events[2])
		assert.Empty(t, u.Identifiers())
	})

	t.Run("replay reproduces mutated state", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", hashedPassword(t, "Test123!"))
		first := "Alice"
		locale := Locale("fr")
		require.NoError(t, u.SetFirstName(&first))
		require.NoError(t, u.SetLocale(&locale))
		require.NoError(t, u.AddRole("role-1"))
		require.NoError(t, u.SetIdentifier("google", "sub-123"))

		replayed := NewUser("user-1")
		for _, event := range u.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}

		assert.Equal(t, u.UniqueName(), replayed.UniqueName())
		assert.Equal(t, u.FirstName(), replayed.FirstName())
		assert.Equal(t, u.Locale(), replayed.Locale())
		assert.ElementsMatch(t, u.Roles(), replayed.Roles())
		assert.Equal(t, u.Identifiers(), replayed.Identifiers())
		assert.True(t, replayed.HasPassword())
	})

	t.Run("deleted user rejects further mutation", func(t *testing.T) {
		u := CreateUser("user-1", &tenant, "alice", nil)
		require.NoError(t, u.Delete())

		err := u.SetUniqueName("bob")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})
}
