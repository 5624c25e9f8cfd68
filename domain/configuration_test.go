package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration(t *testing.T) {
	t.Run("initialize raises a single event with defaults", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)

		events := c.UncommittedEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(ConfigurationInitialized)
		require.True(t, ok)
		assert.Equal(t, DefaultLocale, created.DefaultLocale)
		assert.GreaterOrEqual(t, len(created.Secret), MinSecretLength)
		assert.Equal(t, DefaultUniqueNameSettings(), created.UniqueNameSettings)
		assert.Equal(t, DefaultPasswordSettings(), created.PasswordSettings)
	})

	t.Run("multiple mutations coalesce into one updated event", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)
		c.ClearUncommittedEvents()

		fr, err := NewLocale("fr")
		require.NoError(t, err)
		c.SetDefaultLocale(fr)
		c.SetSecret("0123456789abcdef0123456789abcdef")

		events := c.UncommittedEvents()
		require.Len(t, events, 1)
		updated, ok := events[0].(ConfigurationUpdated)
		require.True(t, ok)
		require.NotNil(t, updated.DefaultLocale)
		assert.Equal(t, fr, *updated.DefaultLocale)
		require.NotNil(t, updated.Secret)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", *updated.Secret)
		assert.Nil(t, updated.PasswordSettings)
		assert.Nil(t, updated.UniqueNameSettings)
	})

	t.Run("no-op mutation raises nothing", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)
		c.ClearUncommittedEvents()

		c.SetDefaultLocale(c.DefaultLocale())
		c.SetPasswordSettings(c.PasswordSettings())

		assert.Empty(t, c.UncommittedEvents())
	})

	t.Run("setting a field back to its original value drops the slot", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)
		c.ClearUncommittedEvents()

		fr, err := NewLocale("fr")
		require.NoError(t, err)
		c.SetDefaultLocale(fr)
		c.SetDefaultLocale(DefaultLocale)

		assert.Empty(t, c.UncommittedEvents())
		assert.Equal(t, DefaultLocale, c.DefaultLocale())
	})

	t.Run("rotate secret changes the secret", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)
		c.ClearUncommittedEvents()
		before := c.Secret()

		c.RotateSecret()

		assert.NotEqual(t, before, c.Secret())
		events := c.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(ConfigurationUpdated)
		require.NotNil(t, updated.Secret)
		assert.Equal(t, c.Secret(), *updated.Secret)
	})

	t.Run("replay reproduces mutated state", func(t *testing.T) {
		c := InitializeConfiguration(DefaultLocale)
		fr, err := NewLocale("fr")
		require.NoError(t, err)
		c.SetDefaultLocale(fr)
		settings := c.PasswordSettings()
		settings.RequiredLength = 12
		c.SetPasswordSettings(settings)

		replayed := NewConfiguration()
		for _, event := range c.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}

		assert.Equal(t, c.DefaultLocale(), replayed.DefaultLocale())
		assert.Equal(t, c.Secret(), replayed.Secret())
		assert.Equal(t, c.PasswordSettings(), replayed.PasswordSettings())
		assert.Equal(t, c.UniqueNameSettings(), replayed.UniqueNameSettings())
	})

	t.Run("unknown event type is rejected", func(t *testing.T) {
		c := NewConfiguration()
		err := c.ApplyEvent(struct{ X int }{1})
		assert.Error(t, err)
	})
}
