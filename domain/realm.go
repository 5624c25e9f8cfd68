package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeRealm is the stream category for realms.
const AggregateTypeRealm = "Realm"

// RealmCreated is raised when a tenant realm is created.
type RealmCreated struct {
	UniqueSlug         Slug               `json:"uniqueSlug"`
	Secret             string             `json:"secret"`
	UniqueNameSettings UniqueNameSettings `json:"uniqueNameSettings"`
	PasswordSettings   PasswordSettings   `json:"passwordSettings"`
}

// RealmUpdated coalesces realm property changes. Nil slots mean "no change";
// a Change with a nil value clears the field. Map deltas use a nil value to
// remove the key.
type RealmUpdated struct {
	UniqueSlug              *Slug               `json:"uniqueSlug,omitempty"`
	DisplayName             *Change[string]     `json:"displayName,omitempty"`
	Description             *Change[string]     `json:"description,omitempty"`
	DefaultLocale           *Change[Locale]     `json:"defaultLocale,omitempty"`
	Secret                  *string             `json:"secret,omitempty"`
	URL                     *Change[string]     `json:"url,omitempty"`
	RequireUniqueEmail      *bool               `json:"requireUniqueEmail,omitempty"`
	RequireConfirmedAccount *bool               `json:"requireConfirmedAccount,omitempty"`
	UniqueNameSettings      *UniqueNameSettings `json:"uniqueNameSettings,omitempty"`
	PasswordSettings        *PasswordSettings   `json:"passwordSettings,omitempty"`

	ClaimMappings    map[string]*ClaimMapping `json:"claimMappings,omitempty"`
	CustomAttributes map[string]*string       `json:"customAttributes,omitempty"`

	PasswordRecoverySenderID   *Change[string] `json:"passwordRecoverySenderId,omitempty"`
	PasswordRecoveryTemplateID *Change[string] `json:"passwordRecoveryTemplateId,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e RealmUpdated) IsEmpty() bool {
	return e.UniqueSlug == nil && e.DisplayName == nil && e.Description == nil &&
		e.DefaultLocale == nil && e.Secret == nil && e.URL == nil &&
		e.RequireUniqueEmail == nil && e.RequireConfirmedAccount == nil &&
		e.UniqueNameSettings == nil && e.PasswordSettings == nil &&
		len(e.ClaimMappings) == 0 && len(e.CustomAttributes) == 0 &&
		e.PasswordRecoverySenderID == nil && e.PasswordRecoveryTemplateID == nil
}

// RealmDeleted marks the realm as deleted.
type RealmDeleted struct{}

type realmState struct {
	uniqueSlug              Slug
	displayName             *string
	description             *string
	defaultLocale           *Locale
	secret                  string
	url                     *string
	requireUniqueEmail      bool
	requireConfirmedAccount bool
	uniqueNameSettings      UniqueNameSettings
	passwordSettings        PasswordSettings

	claimMappings    map[string]ClaimMapping
	customAttributes map[string]string

	passwordRecoverySenderID   *string
	passwordRecoveryTemplateID *string

	deleted bool
}

func (s realmState) clone() realmState {
	c := s
	c.displayName = copyPtr(s.displayName)
	c.description = copyPtr(s.description)
	c.defaultLocale = copyPtr(s.defaultLocale)
	c.url = copyPtr(s.url)
	c.claimMappings = copyMap(s.claimMappings)
	c.customAttributes = copyMap(s.customAttributes)
	c.passwordRecoverySenderID = copyPtr(s.passwordRecoverySenderID)
	c.passwordRecoveryTemplateID = copyPtr(s.passwordRecoveryTemplateID)
	return c
}

// Realm is a tenant: an isolation boundary grouping users, roles, senders,
// templates and dictionaries.
type Realm struct {
	eventstore.AggregateBase

	state   realmState
	pending *RealmUpdated
	base    realmState
}

// NewRealm constructs an empty Realm ready for replay.
func NewRealm(id string) *Realm {
	return &Realm{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeRealm),
	}
}

// CreateRealm raises the creation event with a fresh signing secret and
// default settings.
func CreateRealm(id string, uniqueSlug Slug) *Realm {
	r := NewRealm(id)
	e := RealmCreated{
		UniqueSlug:         uniqueSlug,
		Secret:             GenerateSecret(),
		UniqueNameSettings: DefaultUniqueNameSettings(),
		PasswordSettings:   DefaultPasswordSettings(),
	}
	r.Raise(e)
	r.applyCreated(e)
	return r
}

func (r *Realm) UniqueSlug() Slug                       { return r.state.uniqueSlug }
func (r *Realm) DisplayName() *string                   { return r.state.displayName }
func (r *Realm) Description() *string                   { return r.state.description }
func (r *Realm) DefaultLocale() *Locale                 { return r.state.defaultLocale }
func (r *Realm) Secret() string                         { return r.state.secret }
func (r *Realm) URL() *string                           { return r.state.url }
func (r *Realm) RequireUniqueEmail() bool               { return r.state.requireUniqueEmail }
func (r *Realm) RequireConfirmedAccount() bool          { return r.state.requireConfirmedAccount }
func (r *Realm) UniqueNameSettings() UniqueNameSettings { return r.state.uniqueNameSettings }
func (r *Realm) PasswordSettings() PasswordSettings     { return r.state.passwordSettings }
func (r *Realm) PasswordRecoverySenderID() *string      { return r.state.passwordRecoverySenderID }
func (r *Realm) PasswordRecoveryTemplateID() *string    { return r.state.passwordRecoveryTemplateID }
func (r *Realm) IsDeleted() bool                        { return r.state.deleted }

// ClaimMappings returns a copy of the claim mappings keyed by attribute key.
func (r *Realm) ClaimMappings() map[string]ClaimMapping {
	return copyMap(r.state.claimMappings)
}

// CustomAttributes returns a copy of the custom attributes.
func (r *Realm) CustomAttributes() map[string]string {
	return copyMap(r.state.customAttributes)
}

// SetUniqueSlug stages a slug change in the pending update.
func (r *Realm) SetUniqueSlug(slug Slug) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if slug == r.state.uniqueSlug {
		return nil
	}
	u := r.pendingUpdate()
	r.state.uniqueSlug = slug
	if slug == r.base.uniqueSlug {
		u.UniqueSlug = nil
	} else {
		u.UniqueSlug = &slug
	}
	return nil
}

// SetDisplayName stages a display name change; nil clears it.
func (r *Realm) SetDisplayName(name *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(name, r.state.displayName) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.displayName = copyPtr(name)
	if ptrEqual(name, r.base.displayName) {
		u.DisplayName = nil
	} else {
		u.DisplayName = changeOf(name)
	}
	return nil
}

// SetDescription stages a description change; nil clears it.
func (r *Realm) SetDescription(description *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(description, r.state.description) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.description = copyPtr(description)
	if ptrEqual(description, r.base.description) {
		u.Description = nil
	} else {
		u.Description = changeOf(description)
	}
	return nil
}

// SetDefaultLocale stages a default locale change; nil falls back to the
// portal configuration's default.
func (r *Realm) SetDefaultLocale(locale *Locale) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(locale, r.state.defaultLocale) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.defaultLocale = copyPtr(locale)
	if ptrEqual(locale, r.base.defaultLocale) {
		u.DefaultLocale = nil
	} else {
		u.DefaultLocale = changeOf(locale)
	}
	return nil
}

// SetSecret stages a signing secret change.
func (r *Realm) SetSecret(secret string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if secret == r.state.secret {
		return nil
	}
	u := r.pendingUpdate()
	r.state.secret = secret
	if secret == r.base.secret {
		u.Secret = nil
	} else {
		u.Secret = &secret
	}
	return nil
}

// RotateSecret replaces the realm signing secret with a newly generated one.
func (r *Realm) RotateSecret() error {
	return r.SetSecret(GenerateSecret())
}

// SetURL stages a URL change; nil clears it.
func (r *Realm) SetURL(url *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(url, r.state.url) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.url = copyPtr(url)
	if ptrEqual(url, r.base.url) {
		u.URL = nil
	} else {
		u.URL = changeOf(url)
	}
	return nil
}

// SetRequireUniqueEmail stages the unique-email flag.
func (r *Realm) SetRequireUniqueEmail(v bool) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if v == r.state.requireUniqueEmail {
		return nil
	}
	u := r.pendingUpdate()
	r.state.requireUniqueEmail = v
	if v == r.base.requireUniqueEmail {
		u.RequireUniqueEmail = nil
	} else {
		u.RequireUniqueEmail = &v
	}
	return nil
}

// SetRequireConfirmedAccount stages the confirmed-account flag.
func (r *Realm) SetRequireConfirmedAccount(v bool) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if v == r.state.requireConfirmedAccount {
		return nil
	}
	u := r.pendingUpdate()
	r.state.requireConfirmedAccount = v
	if v == r.base.requireConfirmedAccount {
		u.RequireConfirmedAccount = nil
	} else {
		u.RequireConfirmedAccount = &v
	}
	return nil
}

// SetUniqueNameSettings stages a unique name policy change.
func (r *Realm) SetUniqueNameSettings(settings UniqueNameSettings) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if settings == r.state.uniqueNameSettings {
		return nil
	}
	u := r.pendingUpdate()
	r.state.uniqueNameSettings = settings
	if settings == r.base.uniqueNameSettings {
		u.UniqueNameSettings = nil
	} else {
		u.UniqueNameSettings = &settings
	}
	return nil
}

// SetPasswordSettings stages a password policy change.
func (r *Realm) SetPasswordSettings(settings PasswordSettings) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if settings == r.state.passwordSettings {
		return nil
	}
	u := r.pendingUpdate()
	r.state.passwordSettings = settings
	if settings == r.base.passwordSettings {
		u.PasswordSettings = nil
	} else {
		u.PasswordSettings = &settings
	}
	return nil
}

// SetClaimMapping stages a claim mapping for the given custom attribute key.
func (r *Realm) SetClaimMapping(key string, mapping ClaimMapping) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if current, ok := r.state.claimMappings[key]; ok && current == mapping {
		return nil
	}
	u := r.pendingUpdate()
	if r.state.claimMappings == nil {
		r.state.claimMappings = make(map[string]ClaimMapping)
	}
	r.state.claimMappings[key] = mapping
	if base, ok := r.base.claimMappings[key]; ok && base == mapping {
		delete(u.ClaimMappings, key)
	} else {
		if u.ClaimMappings == nil {
			u.ClaimMappings = make(map[string]*ClaimMapping)
		}
		m := mapping
		u.ClaimMappings[key] = &m
	}
	return nil
}

// RemoveClaimMapping stages removal of a claim mapping.
func (r *Realm) RemoveClaimMapping(key string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if _, ok := r.state.claimMappings[key]; !ok {
		return nil
	}
	u := r.pendingUpdate()
	delete(r.state.claimMappings, key)
	if _, ok := r.base.claimMappings[key]; !ok {
		delete(u.ClaimMappings, key)
	} else {
		if u.ClaimMappings == nil {
			u.ClaimMappings = make(map[string]*ClaimMapping)
		}
		u.ClaimMappings[key] = nil
	}
	return nil
}

// SetCustomAttribute stages a custom attribute value.
func (r *Realm) SetCustomAttribute(key, value string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if current, ok := r.state.customAttributes[key]; ok && current == value {
		return nil
	}
	u := r.pendingUpdate()
	if r.state.customAttributes == nil {
		r.state.customAttributes = make(map[string]string)
	}
	r.state.customAttributes[key] = value
	if base, ok := r.base.customAttributes[key]; ok && base == value {
		delete(u.CustomAttributes, key)
	} else {
		if u.CustomAttributes == nil {
			u.CustomAttributes = make(map[string]*string)
		}
		v := value
		u.CustomAttributes[key] = &v
	}
	return nil
}

// RemoveCustomAttribute stages removal of a custom attribute.
func (r *Realm) RemoveCustomAttribute(key string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if _, ok := r.state.customAttributes[key]; !ok {
		return nil
	}
	u := r.pendingUpdate()
	delete(r.state.customAttributes, key)
	if _, ok := r.base.customAttributes[key]; !ok {
		delete(u.CustomAttributes, key)
	} else {
		if u.CustomAttributes == nil {
			u.CustomAttributes = make(map[string]*string)
		}
		u.CustomAttributes[key] = nil
	}
	return nil
}

// SetPasswordRecoverySenderID stages the password recovery sender reference;
// nil clears it. Existence of the sender is checked by the caller against the
// read model.
func (r *Realm) SetPasswordRecoverySenderID(senderID *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(senderID, r.state.passwordRecoverySenderID) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.passwordRecoverySenderID = copyPtr(senderID)
	if ptrEqual(senderID, r.base.passwordRecoverySenderID) {
		u.PasswordRecoverySenderID = nil
	} else {
		u.PasswordRecoverySenderID = changeOf(senderID)
	}
	return nil
}

// SetPasswordRecoveryTemplateID stages the password recovery template
// reference; nil clears it.
func (r *Realm) SetPasswordRecoveryTemplateID(templateID *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(templateID, r.state.passwordRecoveryTemplateID) {
		return nil
	}
	u := r.pendingUpdate()
	r.state.passwordRecoveryTemplateID = copyPtr(templateID)
	if ptrEqual(templateID, r.base.passwordRecoveryTemplateID) {
		u.PasswordRecoveryTemplateID = nil
	} else {
		u.PasswordRecoveryTemplateID = changeOf(templateID)
	}
	return nil
}

// Delete marks the realm as deleted. Further mutations fail.
func (r *Realm) Delete() error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	r.flushPending()
	e := RealmDeleted{}
	r.Raise(e)
	r.state.deleted = true
	return nil
}

func (r *Realm) ensureActive() error {
	if r.state.deleted {
		return NewInvalidStateError(AggregateTypeRealm, r.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (r *Realm) UncommittedEvents() []any {
	r.flushPending()
	return r.AggregateBase.UncommittedEvents()
}

func (r *Realm) pendingUpdate() *RealmUpdated {
	if r.pending == nil {
		r.pending = &RealmUpdated{}
		r.base = r.state.clone()
	}
	return r.pending
}

func (r *Realm) flushPending() {
	if r.pending == nil {
		return
	}
	if !r.pending.IsEmpty() {
		r.Raise(*r.pending)
	}
	r.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (r *Realm) ApplyEvent(event any) error {
	switch e := event.(type) {
	case RealmCreated:
		r.applyCreated(e)
	case RealmUpdated:
		r.applyUpdated(e)
	case RealmDeleted:
		r.state.deleted = true
	default:
		return fmt.Errorf("domain: realm cannot apply event %T", event)
	}
	return nil
}

func (r *Realm) applyCreated(e RealmCreated) {
	r.state.uniqueSlug = e.UniqueSlug
	r.state.secret = e.Secret
	r.state.uniqueNameSettings = e.UniqueNameSettings
	r.state.passwordSettings = e.PasswordSettings
}

func (r *Realm) applyUpdated(e RealmUpdated) {
	if e.UniqueSlug != nil {
		r.state.uniqueSlug = *e.UniqueSlug
	}
	r.state.displayName = e.DisplayName.Apply(r.state.displayName)
	r.state.description = e.Description.Apply(r.state.description)
	r.state.defaultLocale = e.DefaultLocale.Apply(r.state.defaultLocale)
	if e.Secret != nil {
		r.state.secret = *e.Secret
	}
	r.state.url = e.URL.Apply(r.state.url)
	if e.RequireUniqueEmail != nil {
		r.state.requireUniqueEmail = *e.RequireUniqueEmail
	}
	if e.RequireConfirmedAccount != nil {
		r.state.requireConfirmedAccount = *e.RequireConfirmedAccount
	}
	if e.UniqueNameSettings != nil {
		r.state.uniqueNameSettings = *e.UniqueNameSettings
	}
	if e.PasswordSettings != nil {
		r.state.passwordSettings = *e.PasswordSettings
	}
	for key, mapping := range e.ClaimMappings {
		if mapping == nil {
			delete(r.state.claimMappings, key)
			continue
		}
		if r.state.claimMappings == nil {
			r.state.claimMappings = make(map[string]ClaimMapping)
		}
		r.state.claimMappings[key] = *mapping
	}
	for key, value := range e.CustomAttributes {
		if value == nil {
			delete(r.state.customAttributes, key)
			continue
		}
		if r.state.customAttributes == nil {
			r.state.customAttributes = make(map[string]string)
		}
		r.state.customAttributes[key] = *value
	}
	r.state.passwordRecoverySenderID = e.PasswordRecoverySenderID.Apply(r.state.passwordRecoverySenderID)
	r.state.passwordRecoveryTemplateID = e.PasswordRecoveryTemplateID.Apply(r.state.passwordRecoveryTemplateID)
}
