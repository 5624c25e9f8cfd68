package domain

import (
	"fmt"
	"time"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeApiKey is the stream category for API keys.
const AggregateTypeApiKey = "ApiKey"

// ApiKeyCreated is raised when an API key is issued. The plaintext secret is
// returned to the caller exactly once; only its hash is recorded.
type ApiKeyCreated struct {
	TenantID    *string    `json:"tenantId,omitempty"`
	DisplayName string     `json:"displayName"`
	SecretHash  string     `json:"secretHash"`
	ExpiresOn   *time.Time `json:"expiresOn,omitempty"`
}

// ApiKeyUpdated coalesces API key changes. Roles maps role IDs to true
// (granted) or false (revoked).
type ApiKeyUpdated struct {
	DisplayName *string         `json:"displayName,omitempty"`
	Description *Change[string] `json:"description,omitempty"`
	ExpiresOn   *time.Time      `json:"expiresOn,omitempty"`

	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`
	Roles            map[string]bool    `json:"roles,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e ApiKeyUpdated) IsEmpty() bool {
	return e.DisplayName == nil && e.Description == nil && e.ExpiresOn == nil &&
		len(e.CustomAttributes) == 0 && len(e.Roles) == 0
}

// ApiKeyAuthenticated records a successful secret check.
type ApiKeyAuthenticated struct {
	At time.Time `json:"at"`
}

// ApiKeyDeleted revokes the key. Terminal.
type ApiKeyDeleted struct{}

type apiKeyState struct {
	tenantID    *string
	displayName string
	description *string
	secretHash  string
	expiresOn   *time.Time

	customAttributes map[string]string
	roles            map[string]struct{}

	authenticatedAt *time.Time
	deleted         bool
}

func (s apiKeyState) clone() apiKeyState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.description = copyPtr(s.description)
	c.expiresOn = copyPtr(s.expiresOn)
	c.customAttributes = copyMap(s.customAttributes)
	c.roles = copyMap(s.roles)
	c.authenticatedAt = copyPtr(s.authenticatedAt)
	return c
}

// ApiKey is a long-lived machine credential, optionally scoped to a tenant.
type ApiKey struct {
	eventstore.AggregateBase

	state   apiKeyState
	pending *ApiKeyUpdated
	base    apiKeyState
}

// NewApiKey constructs an empty ApiKey ready for replay.
func NewApiKey(id string) *ApiKey {
	return &ApiKey{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeApiKey),
	}
}

// CreateApiKey issues a key with the given secret hash and optional expiry.
func CreateApiKey(id string, tenantID *string, displayName, secretHash string, expiresOn *time.Time) *ApiKey {
	k := NewApiKey(id)
	e := ApiKeyCreated{
		TenantID:    copyPtr(tenantID),
		DisplayName: displayName,
		SecretHash:  secretHash,
		ExpiresOn:   copyPtr(expiresOn),
	}
	k.Raise(e)
	k.applyCreated(e)
	return k
}

func (k *ApiKey) TenantID() *string           { return k.state.tenantID }
func (k *ApiKey) DisplayName() string         { return k.state.displayName }
func (k *ApiKey) Description() *string        { return k.state.description }
func (k *ApiKey) ExpiresOn() *time.Time       { return copyPtr(k.state.expiresOn) }
func (k *ApiKey) IsDeleted() bool             { return k.state.deleted }
func (k *ApiKey) AuthenticatedAt() *time.Time { return copyPtr(k.state.authenticatedAt) }

// IsExpired reports whether the key is expired at the given instant.
func (k *ApiKey) IsExpired(now time.Time) bool {
	return k.state.expiresOn != nil && !now.Before(*k.state.expiresOn)
}

// CustomAttributes returns a copy of the custom attributes.
func (k *ApiKey) CustomAttributes() map[string]string {
	return copyMap(k.state.customAttributes)
}

// Roles returns the granted role IDs.
func (k *ApiKey) Roles() []string {
	roles := make([]string, 0, len(k.state.roles))
	for id := range k.state.roles {
		roles = append(roles, id)
	}
	return roles
}

// SetDisplayName stages a display name change.
func (k *ApiKey) SetDisplayName(name string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if name == "" {
		return NewValidationError("displayName", "is required")
	}
	if name == k.state.displayName {
		return nil
	}
	p := k.pendingUpdate()
	k.state.displayName = name
	if name == k.base.displayName {
		p.DisplayName = nil
	} else {
		p.DisplayName = &name
	}
	return nil
}

// SetDescription stages a description change; nil clears it.
func (k *ApiKey) SetDescription(description *string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(description, k.state.description) {
		return nil
	}
	p := k.pendingUpdate()
	k.state.description = copyPtr(description)
	if ptrEqual(description, k.base.description) {
		p.Description = nil
	} else {
		p.Description = changeOf(description)
	}
	return nil
}

// SetExpiresOn stages an expiry change. The expiry can only move earlier; a
// key without one cannot gain one retroactively beyond its issue policy, so
// any new expiry is accepted but an existing one can never be extended.
func (k *ApiKey) SetExpiresOn(expiresOn time.Time) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	expiresOn = expiresOn.UTC()
	if k.state.expiresOn != nil {
		if expiresOn.Equal(*k.state.expiresOn) {
			return nil
		}
		if expiresOn.After(*k.state.expiresOn) {
			return NewValidationError("expiresOn", "cannot be extended")
		}
	}
	p := k.pendingUpdate()
	k.state.expiresOn = &expiresOn
	if k.base.expiresOn != nil && expiresOn.Equal(*k.base.expiresOn) {
		p.ExpiresOn = nil
	} else {
		p.ExpiresOn = &expiresOn
	}
	return nil
}

// SetCustomAttribute stages a custom attribute value.
func (k *ApiKey) SetCustomAttribute(key, value string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if current, ok := k.state.customAttributes[key]; ok && current == value {
		return nil
	}
	p := k.pendingUpdate()
	if k.state.customAttributes == nil {
		k.state.customAttributes = make(map[string]string)
	}
	k.state.customAttributes[key] = value
	if base, ok := k.base.customAttributes[key]; ok && base == value {
		delete(p.CustomAttributes, key)
	} else {
		if p.CustomAttributes == nil {
			p.CustomAttributes = make(map[string]*string)
		}
		v := value
		p.CustomAttributes[key] = &v
	}
	return nil
}

// RemoveCustomAttribute stages removal of a custom attribute.
func (k *ApiKey) RemoveCustomAttribute(key string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if _, ok := k.state.customAttributes[key]; !ok {
		return nil
	}
	p := k.pendingUpdate()
	delete(k.state.customAttributes, key)
	if _, ok := k.base.customAttributes[key]; !ok {
		delete(p.CustomAttributes, key)
	} else {
		if p.CustomAttributes == nil {
			p.CustomAttributes = make(map[string]*string)
		}
		p.CustomAttributes[key] = nil
	}
	return nil
}

// AddRole stages granting a role.
func (k *ApiKey) AddRole(roleID string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if _, ok := k.state.roles[roleID]; ok {
		return nil
	}
	p := k.pendingUpdate()
	if k.state.roles == nil {
		k.state.roles = make(map[string]struct{})
	}
	k.state.roles[roleID] = struct{}{}
	if _, ok := k.base.roles[roleID]; ok {
		delete(p.Roles, roleID)
	} else {
		if p.Roles == nil {
			p.Roles = make(map[string]bool)
		}
		p.Roles[roleID] = true
	}
	return nil
}

// RemoveRole stages revoking a role.
func (k *ApiKey) RemoveRole(roleID string) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if _, ok := k.state.roles[roleID]; !ok {
		return nil
	}
	p := k.pendingUpdate()
	delete(k.state.roles, roleID)
	if _, ok := k.base.roles[roleID]; !ok {
		delete(p.Roles, roleID)
	} else {
		if p.Roles == nil {
			p.Roles = make(map[string]bool)
		}
		p.Roles[roleID] = false
	}
	return nil
}

// Authenticate verifies the secret and checks expiry. On success it raises an
// authentication event.
func (k *ApiKey) Authenticate(secret string, now time.Time) error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	if k.IsExpired(now) {
		return NewInvalidStateError(AggregateTypeApiKey, k.AggregateID(), "expired")
	}
	ok, err := VerifySecret(secret, k.state.secretHash)
	if err != nil {
		return err
	}
	if !ok {
		return NewValidationError("secret", "is incorrect")
	}
	k.flushPending()
	at := now.UTC()
	e := ApiKeyAuthenticated{At: at}
	k.Raise(e)
	k.state.authenticatedAt = &at
	return nil
}

// Delete revokes the key. Further mutations fail.
func (k *ApiKey) Delete() error {
	if err := k.ensureActive(); err != nil {
		return err
	}
	k.flushPending()
	e := ApiKeyDeleted{}
	k.Raise(e)
	k.state.deleted = true
	return nil
}

func (k *ApiKey) ensureActive() error {
	if k.state.deleted {
		return NewInvalidStateError(AggregateTypeApiKey, k.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (k *ApiKey) UncommittedEvents() []any {
	k.flushPending()
	return k.AggregateBase.UncommittedEvents()
}

func (k *ApiKey) pendingUpdate() *ApiKeyUpdated {
	if k.pending == nil {
		k.pending = &ApiKeyUpdated{}
		k.base = k.state.clone()
	}
	return k.pending
}

func (k *ApiKey) flushPending() {
	if k.pending == nil {
		return
	}
	if !k.pending.IsEmpty() {
		k.Raise(*k.pending)
	}
	k.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (k *ApiKey) ApplyEvent(event any) error {
	switch e := event.(type) {
	case ApiKeyCreated:
		k.applyCreated(e)
	case ApiKeyUpdated:
		k.applyUpdated(e)
	case ApiKeyAuthenticated:
		at := e.At
		k.state.authenticatedAt = &at
	case ApiKeyDeleted:
		k.state.deleted = true
	default:
		return fmt.Errorf("domain: api key cannot apply event %T", event)
	}
	return nil
}

func (k *ApiKey) applyCreated(e ApiKeyCreated) {
	k.state.tenantID = copyPtr(e.TenantID)
	k.state.displayName = e.DisplayName
	k.state.secretHash = e.SecretHash
	k.state.expiresOn = copyPtr(e.ExpiresOn)
}

func (k *ApiKey) applyUpdated(e ApiKeyUpdated) {
	if e.DisplayName != nil {
		k.state.displayName = *e.DisplayName
	}
	k.state.description = e.Description.Apply(k.state.description)
	if e.ExpiresOn != nil {
		k.state.expiresOn = copyPtr(e.ExpiresOn)
	}
	for key, value := range e.CustomAttributes {
		if value == nil {
			delete(k.state.customAttributes, key)
			continue
		}
		if k.state.customAttributes == nil {
			k.state.customAttributes = make(map[string]string)
		}
		k.state.customAttributes[key] = *value
	}
	for roleID, granted := range e.Roles {
		if !granted {
			delete(k.state.roles, roleID)
			continue
		}
		if k.state.roles == nil {
			k.state.roles = make(map[string]struct{})
		}
		k.state.roles[roleID] = struct{}{}
	}
}
