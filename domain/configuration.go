package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// ConfigurationID is the fixed identifier of the process-wide configuration
// aggregate. The runtime treats it like any other stream.
const ConfigurationID = "configuration"

// AggregateTypeConfiguration is the stream category for configurations.
const AggregateTypeConfiguration = "Configuration"

// ConfigurationInitialized is raised when the portal is first configured.
type ConfigurationInitialized struct {
	DefaultLocale      Locale             `json:"defaultLocale"`
	Secret             string             `json:"secret"`
	UniqueNameSettings UniqueNameSettings `json:"uniqueNameSettings"`
	PasswordSettings   PasswordSettings   `json:"passwordSettings"`
}

// ConfigurationUpdated coalesces all property changes made within one
// load-mutate-save cycle. Nil slots mean "no change".
type ConfigurationUpdated struct {
	DefaultLocale      *Locale             `json:"defaultLocale,omitempty"`
	Secret             *string             `json:"secret,omitempty"`
	UniqueNameSettings *UniqueNameSettings `json:"uniqueNameSettings,omitempty"`
	PasswordSettings   *PasswordSettings   `json:"passwordSettings,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e ConfigurationUpdated) IsEmpty() bool {
	return e.DefaultLocale == nil && e.Secret == nil &&
		e.UniqueNameSettings == nil && e.PasswordSettings == nil
}

// configurationState snapshots the committed values a pending update is
// compared against, so a field set back to its original value drops its slot.
type configurationState struct {
	defaultLocale      Locale
	secret             string
	uniqueNameSettings UniqueNameSettings
	passwordSettings   PasswordSettings
}

// Configuration is the process-wide singleton aggregate holding portal-level
// settings and the token signing secret.
type Configuration struct {
	eventstore.AggregateBase

	state   configurationState
	pending *ConfigurationUpdated
	base    configurationState
}

// NewConfiguration constructs an empty Configuration ready for replay.
func NewConfiguration() *Configuration {
	return &Configuration{
		AggregateBase: eventstore.NewAggregateBase(ConfigurationID, AggregateTypeConfiguration),
	}
}

// InitializeConfiguration raises the initial event with defaults for every
// setting not supplied.
func InitializeConfiguration(defaultLocale Locale) *Configuration {
	c := NewConfiguration()
	e := ConfigurationInitialized{
		DefaultLocale:      defaultLocale,
		Secret:             GenerateSecret(),
		UniqueNameSettings: DefaultUniqueNameSettings(),
		PasswordSettings:   DefaultPasswordSettings(),
	}
	c.Raise(e)
	c.applyInitialized(e)
	return c
}

// DefaultLocale returns the configured default locale.
func (c *Configuration) DefaultLocale() Locale {
	return c.state.defaultLocale
}

// Secret returns the current signing secret.
func (c *Configuration) Secret() string {
	return c.state.secret
}

// UniqueNameSettings returns the unique name policy.
func (c *Configuration) UniqueNameSettings() UniqueNameSettings {
	return c.state.uniqueNameSettings
}

// PasswordSettings returns the password policy.
func (c *Configuration) PasswordSettings() PasswordSettings {
	return c.state.passwordSettings
}

// SetDefaultLocale stages a default locale change in the pending update.
func (c *Configuration) SetDefaultLocale(locale Locale) {
	if locale == c.state.defaultLocale {
		return
	}
	u := c.pendingUpdate()
	c.state.defaultLocale = locale
	if locale == c.base.defaultLocale {
		u.DefaultLocale = nil
	} else {
		u.DefaultLocale = &locale
	}
}

// SetSecret stages a signing secret change in the pending update.
func (c *Configuration) SetSecret(secret string) {
	if secret == c.state.secret {
		return
	}
	u := c.pendingUpdate()
	c.state.secret = secret
	if secret == c.base.secret {
		u.Secret = nil
	} else {
		u.Secret = &secret
	}
}

// RotateSecret replaces the signing secret with a newly generated one.
func (c *Configuration) RotateSecret() {
	c.SetSecret(GenerateSecret())
}

// SetUniqueNameSettings stages a unique name policy change.
func (c *Configuration) SetUniqueNameSettings(settings UniqueNameSettings) {
	if settings == c.state.uniqueNameSettings {
		return
	}
	u := c.pendingUpdate()
	c.state.uniqueNameSettings = settings
	if settings == c.base.uniqueNameSettings {
		u.UniqueNameSettings = nil
	} else {
		u.UniqueNameSettings = &settings
	}
}

// SetPasswordSettings stages a password policy change.
func (c *Configuration) SetPasswordSettings(settings PasswordSettings) {
	if settings == c.state.passwordSettings {
		return
	}
	u := c.pendingUpdate()
	c.state.passwordSettings = settings
	if settings == c.base.passwordSettings {
		u.PasswordSettings = nil
	} else {
		u.PasswordSettings = &settings
	}
}

// UncommittedEvents flushes the pending update, if any, before returning the
// uncommitted event list.
func (c *Configuration) UncommittedEvents() []any {
	c.flushPending()
	return c.AggregateBase.UncommittedEvents()
}

func (c *Configuration) pendingUpdate() *ConfigurationUpdated {
	if c.pending == nil {
		c.pending = &ConfigurationUpdated{}
		c.base = c.state
	}
	return c.pending
}

func (c *Configuration) flushPending() {
	if c.pending == nil {
		return
	}
	if !c.pending.IsEmpty() {
		c.Raise(*c.pending)
	}
	c.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (c *Configuration) ApplyEvent(event any) error {
	switch e := event.(type) {
	case ConfigurationInitialized:
		c.applyInitialized(e)
	case ConfigurationUpdated:
		if e.DefaultLocale != nil {
			c.state.defaultLocale = *e.DefaultLocale
		}
		if e.Secret != nil {
			c.state.secret = *e.Secret
		}
		if e.UniqueNameSettings != nil {
			c.state.uniqueNameSettings = *e.UniqueNameSettings
		}
		if e.PasswordSettings != nil {
			c.state.passwordSettings = *e.PasswordSettings
		}
	default:
		return fmt.Errorf("domain: configuration cannot apply event %T", event)
	}
	return nil
}

func (c *Configuration) applyInitialized(e ConfigurationInitialized) {
	c.state.defaultLocale = e.DefaultLocale
	c.state.secret = e.Secret
	c.state.uniqueNameSettings = e.UniqueNameSettings
	c.state.passwordSettings = e.PasswordSettings
}
