package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender(t *testing.T) {
	t.Run("email sender requires an email provider", func(t *testing.T) {
		_, err := CreateEmailSender("sender-1", nil, ProviderTwilio, "no-reply@acme.example.com")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))

		s, err := CreateEmailSender("sender-1", nil, ProviderSendGrid, "no-reply@acme.example.com")
		require.NoError(t, err)
		require.NotNil(t, s.EmailAddress())
		assert.Equal(t, "no-reply@acme.example.com", *s.EmailAddress())
	})

	t.Run("sms sender requires a phone provider", func(t *testing.T) {
		_, err := CreateSmsSender("sender-1", nil, ProviderMailgun, "+15551234567")
		require.Error(t, err)

		s, err := CreateSmsSender("sender-1", nil, ProviderTwilio, "+15551234567")
		require.NoError(t, err)
		require.NotNil(t, s.PhoneNumber())
		assert.Nil(t, s.EmailAddress())
	})

	t.Run("settings coalesce and round trip", func(t *testing.T) {
		s, err := CreateEmailSender("sender-1", nil, ProviderSendGrid, "no-reply@acme.example.com")
		require.NoError(t, err)
		s.ClearUncommittedEvents()

		name := "Acme Notifications"
		require.NoError(t, s.SetDisplayName(&name))
		require.NoError(t, s.SetSetting("apiKey", "SG.xxx"))
		require.NoError(t, s.SetSetting("domain", "mail.acme.example.com"))
		require.NoError(t, s.RemoveSetting("domain"))

		events := s.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(SenderUpdated)
		require.NotNil(t, updated.DisplayName)
		require.Contains(t, updated.Settings, "apiKey")
		assert.NotContains(t, updated.Settings, "domain")
		assert.Equal(t, map[string]string{"apiKey": "SG.xxx"}, s.Settings())
	})

	t.Run("set default raises its own event", func(t *testing.T) {
		s, err := CreateEmailSender("sender-1", nil, ProviderSendGrid, "no-reply@acme.example.com")
		require.NoError(t, err)
		s.ClearUncommittedEvents()

		require.NoError(t, s.SetDefault(true))
		require.NoError(t, s.SetDefault(true))

		events := s.UncommittedEvents()
		require.Len(t, events, 1)
		assert.Equal(t, SenderSetDefault{IsDefault: true}, events[0])
		assert.True(t, s.IsDefault())
	})

	t.Run("deleted sender rejects further mutation", func(t *testing.T) {
		s, err := CreateEmailSender("sender-1", nil, ProviderSendGrid, "no-reply@acme.example.com")
		require.NoError(t, err)
		require.NoError(t, s.Delete())

		err = s.SetDefault(true)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})
}

func TestTemplate(t *testing.T) {
	content, err := NewTemplateContent("text/html", "<p>Hello {name}</p>")
	require.NoError(t, err)

	t.Run("content type is constrained", func(t *testing.T) {
		_, err := NewTemplateContent("application/json", "{}")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("mutations coalesce and replay", func(t *testing.T) {
		tmpl := CreateTemplate("template-1", nil, "PasswordRecovery", "Reset your password", content)
		name := "Password recovery"
		require.NoError(t, tmpl.SetDisplayName(&name))
		require.NoError(t, tmpl.SetSubject("Reset your Acme password"))

		events := tmpl.UncommittedEvents()
		require.Len(t, events, 2)

		replayed := NewTemplate("template-1")
		for _, event := range events {
			require.NoError(t, replayed.ApplyEvent(event))
		}
		assert.Equal(t, tmpl.Subject(), replayed.Subject())
		assert.Equal(t, tmpl.DisplayName(), replayed.DisplayName())
		assert.Equal(t, tmpl.Content(), replayed.Content())
	})

	t.Run("empty subject is rejected", func(t *testing.T) {
		tmpl := CreateTemplate("template-1", nil, "PasswordRecovery", "Reset your password", content)
		err := tmpl.SetSubject("")
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestDictionary(t *testing.T) {
	t.Run("entries coalesce into one updated event", func(t *testing.T) {
		d := CreateDictionary("dictionary-1", nil, "fr")
		d.ClearUncommittedEvents()

		require.NoError(t, d.SetEntry("Greeting", "Bonjour"))
		require.NoError(t, d.SetEntry("Farewell", "Au revoir"))
		require.NoError(t, d.RemoveEntry("Farewell"))

		events := d.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(DictionaryUpdated)
		require.Contains(t, updated.Entries, "Greeting")
		assert.NotContains(t, updated.Entries, "Farewell")

		value, ok := d.Entry("Greeting")
		require.True(t, ok)
		assert.Equal(t, "Bonjour", value)
	})

	t.Run("removing a committed entry carries a nil delta", func(t *testing.T) {
		d := CreateDictionary("dictionary-1", nil, "fr")
		require.NoError(t, d.SetEntry("Greeting", "Bonjour"))
		require.Len(t, d.UncommittedEvents(), 2)
		d.ClearUncommittedEvents()

		require.NoError(t, d.RemoveEntry("Greeting"))

		events := d.UncommittedEvents()
		require.Len(t, events, 1)
		updated := events[0].(DictionaryUpdated)
		require.Contains(t, updated.Entries, "Greeting")
		assert.Nil(t, updated.Entries["Greeting"])
	})

	t.Run("replay reproduces entries", func(t *testing.T) {
		d := CreateDictionary("dictionary-1", nil, "fr")
		require.NoError(t, d.SetEntry("Greeting", "Bonjour"))
		require.NoError(t, d.SetEntry("Farewell", "Au revoir"))

		replayed := NewDictionary("dictionary-1")
		for _, event := range d.UncommittedEvents() {
			require.NoError(t, replayed.ApplyEvent(event))
		}
		assert.Equal(t, d.Entries(), replayed.Entries())
		assert.Equal(t, Locale("fr"), replayed.Locale())
	})
}
