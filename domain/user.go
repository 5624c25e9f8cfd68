package domain

import (
	"fmt"
	"time"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeUser is the stream category for users.
const AggregateTypeUser = "User"

// UserCreated is raised when a user account is created. TenantID is nil for
// portal-level users.
type UserCreated struct {
	TenantID     *string `json:"tenantId,omitempty"`
	UniqueName   string  `json:"uniqueName"`
	PasswordHash *string `json:"passwordHash,omitempty"`
}

// UserUpdated coalesces user profile changes. Nil slots mean "no change".
// Roles maps role IDs to true (granted) or false (revoked).
type UserUpdated struct {
	UniqueName *string         `json:"uniqueName,omitempty"`
	Email      *Change[string] `json:"email,omitempty"`
	FirstName  *Change[string] `json:"firstName,omitempty"`
	MiddleName *Change[string] `json:"middleName,omitempty"`
	LastName   *Change[string] `json:"lastName,omitempty"`
	Nickname   *Change[string] `json:"nickname,omitempty"`
	Locale     *Change[Locale] `json:"locale,omitempty"`
	Picture    *Change[string] `json:"picture,omitempty"`
	Website    *Change[string] `json:"website,omitempty"`
	Disabled   *bool           `json:"disabled,omitempty"`

	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`
	Roles            map[string]bool    `json:"roles,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e UserUpdated) IsEmpty() bool {
	return e.UniqueName == nil && e.Email == nil && e.FirstName == nil &&
		e.MiddleName == nil && e.LastName == nil && e.Nickname == nil &&
		e.Locale == nil && e.Picture == nil && e.Website == nil &&
		e.Disabled == nil && len(e.CustomAttributes) == 0 && len(e.Roles) == 0
}

// UserPasswordChanged replaces the user's password hash.
type UserPasswordChanged struct {
	PasswordHash string `json:"passwordHash"`
}

// UserAuthenticated records a successful credential check.
type UserAuthenticated struct {
	At time.Time `json:"at"`
}

// UserIdentifierSet sets an external identifier (e.g., a federated subject).
type UserIdentifierSet struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// UserIdentifierRemoved removes an external identifier.
type UserIdentifierRemoved struct {
	Key string `json:"key"`
}

// UserDeleted marks the user as deleted.
type UserDeleted struct{}

type userState struct {
	tenantID     *string
	uniqueName   string
	passwordHash *string

	email      *string
	firstName  *string
	middleName *string
	lastName   *string
	nickname   *string
	locale     *Locale
	picture    *string
	website    *string
	disabled   bool

	customAttributes map[string]string
	roles            map[string]struct{}
	identifiers      map[string]string

	authenticatedAt *time.Time
	deleted         bool
}

func (s userState) clone() userState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.passwordHash = copyPtr(s.passwordHash)
	c.email = copyPtr(s.email)
	c.firstName = copyPtr(s.firstName)
	c.middleName = copyPtr(s.middleName)
	c.lastName = copyPtr(s.lastName)
	c.nickname = copyPtr(s.nickname)
	c.locale = copyPtr(s.locale)
	c.picture = copyPtr(s.picture)
	c.website = copyPtr(s.website)
	c.customAttributes = copyMap(s.customAttributes)
	c.roles = copyMap(s.roles)
	c.identifiers = copyMap(s.identifiers)
	c.authenticatedAt = copyPtr(s.authenticatedAt)
	return c
}

// User is an identity within a realm (or at the portal level when TenantID is
// nil).
type User struct {
	eventstore.AggregateBase

	state   userState
	pending *UserUpdated
	base    userState
}

// NewUser constructs an empty User ready for replay.
func NewUser(id string) *User {
	return &User{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeUser),
	}
}

// CreateUser raises the creation event. passwordHash may be nil for users
// without a password (e.g., federated only).
func CreateUser(id string, tenantID *string, uniqueName string, passwordHash *string) *User {
	u := NewUser(id)
	e := UserCreated{
		TenantID:     copyPtr(tenantID),
		UniqueName:   uniqueName,
		PasswordHash: copyPtr(passwordHash),
	}
	u.Raise(e)
	u.applyCreated(e)
	return u
}

func (u *User) TenantID() *string           { return u.state.tenantID }
func (u *User) UniqueName() string          { return u.state.uniqueName }
func (u *User) HasPassword() bool           { return u.state.passwordHash != nil }
func (u *User) Email() *string              { return u.state.email }
func (u *User) FirstName() *string          { return u.state.firstName }
func (u *User) MiddleName() *string         { return u.state.middleName }
func (u *User) LastName() *string           { return u.state.lastName }
func (u *User) Nickname() *string           { return u.state.nickname }
func (u *User) Locale() *Locale             { return u.state.locale }
func (u *User) Picture() *string            { return u.state.picture }
func (u *User) Website() *string            { return u.state.website }
func (u *User) IsDisabled() bool            { return u.state.disabled }
func (u *User) IsDeleted() bool             { return u.state.deleted }
func (u *User) AuthenticatedAt() *time.Time { return copyPtr(u.state.authenticatedAt) }

// FullName assembles the display name from the name parts.
func (u *User) FullName() *string {
	var parts []string
	for _, p := range []*string{u.state.firstName, u.state.middleName, u.state.lastName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	full := parts[0]
	for _, p := range parts[1:] {
		full += " " + p
	}
	return &full
}

// CustomAttributes returns a copy of the custom attributes.
func (u *User) CustomAttributes() map[string]string {
	return copyMap(u.state.customAttributes)
}

// Roles returns the granted role IDs.
func (u *User) Roles() []string {
	roles := make([]string, 0, len(u.state.roles))
	for id := range u.state.roles {
		roles = append(roles, id)
	}
	return roles
}

// HasRole reports whether the role is granted.
func (u *User) HasRole(roleID string) bool {
	_, ok := u.state.roles[roleID]
	return ok
}

// Identifiers returns a copy of the external identifiers.
func (u *User) Identifiers() map[string]string {
	return copyMap(u.state.identifiers)
}

// SetUniqueName stages a unique name change in the pending update.
func (u *User) SetUniqueName(name string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if name == u.state.uniqueName {
		return nil
	}
	p := u.pendingUpdate()
	u.state.uniqueName = name
	if name == u.base.uniqueName {
		p.UniqueName = nil
	} else {
		p.UniqueName = &name
	}
	return nil
}

// SetEmail stages an email change; nil clears it.
func (u *User) SetEmail(email *string) error {
	return u.stageString(email, &u.state.email, u.base.email, func(p *UserUpdated, c *Change[string]) {
		p.Email = c
	})
}

// SetFirstName stages a first name change; nil clears it.
func (u *User) SetFirstName(v *string) error {
	return u.stageString(v, &u.state.firstName, u.base.firstName, func(p *UserUpdated, c *Change[string]) {
		p.FirstName = c
	})
}

// SetMiddleName stages a middle name change; nil clears it.
func (u *User) SetMiddleName(v *string) error {
	return u.stageString(v, &u.state.middleName, u.base.middleName, func(p *UserUpdated, c *Change[string]) {
		p.MiddleName = c
	})
}

// SetLastName stages a last name change; nil clears it.
func (u *User) SetLastName(v *string) error {
	return u.stageString(v, &u.state.lastName, u.base.lastName, func(p *UserUpdated, c *Change[string]) {
		p.LastName = c
	})
}

// SetNickname stages a nickname change; nil clears it.
func (u *User) SetNickname(v *string) error {
	return u.stageString(v, &u.state.nickname, u.base.nickname, func(p *UserUpdated, c *Change[string]) {
		p.Nickname = c
	})
}

// SetPicture stages a picture URL change; nil clears it.
func (u *User) SetPicture(v *string) error {
	return u.stageString(v, &u.state.picture, u.base.picture, func(p *UserUpdated, c *Change[string]) {
		p.Picture = c
	})
}

// SetWebsite stages a website URL change; nil clears it.
func (u *User) SetWebsite(v *string) error {
	return u.stageString(v, &u.state.website, u.base.website, func(p *UserUpdated, c *Change[string]) {
		p.Website = c
	})
}

// stageString applies the coalescing rule for a clearable string field.
func (u *User) stageString(v *string, field **string, baseVal *string, slot func(*UserUpdated, *Change[string])) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(v, *field) {
		return nil
	}
	p := u.pendingUpdate()
	*field = copyPtr(v)
	if ptrEqual(v, baseVal) {
		slot(p, nil)
	} else {
		slot(p, changeOf(v))
	}
	return nil
}

// SetLocale stages a locale change; nil clears it.
func (u *User) SetLocale(locale *Locale) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(locale, u.state.locale) {
		return nil
	}
	p := u.pendingUpdate()
	u.state.locale = copyPtr(locale)
	if ptrEqual(locale, u.base.locale) {
		p.Locale = nil
	} else {
		p.Locale = changeOf(locale)
	}
	return nil
}

// SetDisabled stages the disabled flag.
func (u *User) SetDisabled(disabled bool) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if disabled == u.state.disabled {
		return nil
	}
	p := u.pendingUpdate()
	u.state.disabled = disabled
	if disabled == u.base.disabled {
		p.Disabled = nil
	} else {
		p.Disabled = &disabled
	}
	return nil
}

// SetCustomAttribute stages a custom attribute value.
func (u *User) SetCustomAttribute(key, value string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if current, ok := u.state.customAttributes[key]; ok && current == value {
		return nil
	}
	p := u.pendingUpdate()
	if u.state.customAttributes == nil {
		u.state.customAttributes = make(map[string]string)
	}
	u.state.customAttributes[key] = value
	if base, ok := u.base.customAttributes[key]; ok && base == value {
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
func (u *User) RemoveCustomAttribute(key string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if _, ok := u.state.customAttributes[key]; !ok {
		return nil
	}
	p := u.pendingUpdate()
	delete(u.state.customAttributes, key)
	if _, ok := u.base.customAttributes[key]; !ok {
		delete(p.CustomAttributes, key)
	} else {
		if p.CustomAttributes == nil {
			p.CustomAttributes = make(map[string]*string)
		}
		p.CustomAttributes[key] = nil
	}
	return nil
}

// AddRole stages granting a role. Role existence is resolved by the caller
// against the read model.
func (u *User) AddRole(roleID string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if _, ok := u.state.roles[roleID]; ok {
		return nil
	}
	p := u.pendingUpdate()
	if u.state.roles == nil {
		u.state.roles = make(map[string]struct{})
	}
	u.state.roles[roleID] = struct{}{}
	if _, ok := u.base.roles[roleID]; ok {
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
func (u *User) RemoveRole(roleID string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if _, ok := u.state.roles[roleID]; !ok {
		return nil
	}
	p := u.pendingUpdate()
	delete(u.state.roles, roleID)
	if _, ok := u.base.roles[roleID]; !ok {
		delete(p.Roles, roleID)
	} else {
		if p.Roles == nil {
			p.Roles = make(map[string]bool)
		}
		p.Roles[roleID] = false
	}
	return nil
}

// ChangePassword validates the new password against the policy, hashes it and
// raises a password change event.
func (u *User) ChangePassword(password string, settings PasswordSettings) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if err := settings.Validate(password); err != nil {
		return err
	}
	hash, err := HashSecret(password)
	if err != nil {
		return err
	}
	u.flushPending()
	e := UserPasswordChanged{PasswordHash: hash}
	u.Raise(e)
	u.state.passwordHash = &hash
	return nil
}

// Authenticate verifies the password and, on success, raises an
// authentication event. A wrong password or a disabled account fails with a
// validation error and raises nothing.
func (u *User) Authenticate(password string, now time.Time) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if u.state.disabled {
		return NewInvalidStateError(AggregateTypeUser, u.AggregateID(), "disabled")
	}
	if u.state.passwordHash == nil {
		return NewValidationError("password", "no password is set for this user")
	}
	ok, err := VerifySecret(password, *u.state.passwordHash)
	if err != nil {
		return err
	}
	if !ok {
		return NewValidationError("password", "is incorrect")
	}
	u.flushPending()
	at := now.UTC()
	e := UserAuthenticated{At: at}
	u.Raise(e)
	u.state.authenticatedAt = &at
	return nil
}

// SetIdentifier sets an external identifier. The same value is a no-op.
func (u *User) SetIdentifier(key, value string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if key == "" {
		return NewValidationError("identifierKey", "is required")
	}
	if current, ok := u.state.identifiers[key]; ok && current == value {
		return nil
	}
	u.flushPending()
	e := UserIdentifierSet{Key: key, Value: value}
	u.Raise(e)
	if u.state.identifiers == nil {
		u.state.identifiers = make(map[string]string)
	}
	u.state.identifiers[key] = value
	return nil
}

// RemoveIdentifier removes an external identifier. A missing key is a no-op.
func (u *User) RemoveIdentifier(key string) error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	if _, ok := u.state.identifiers[key]; !ok {
		return nil
	}
	u.flushPending()
	e := UserIdentifierRemoved{Key: key}
	u.Raise(e)
	delete(u.state.identifiers, key)
	return nil
}

// Delete marks the user as deleted. Further mutations fail.
func (u *User) Delete() error {
	if err := u.ensureActive(); err != nil {
		return err
	}
	u.flushPending()
	e := UserDeleted{}
	u.Raise(e)
	u.state.deleted = true
	return nil
}

func (u *User) ensureActive() error {
	if u.state.deleted {
		return NewInvalidStateError(AggregateTypeUser, u.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (u *User) UncommittedEvents() []any {
	u.flushPending()
	return u.AggregateBase.UncommittedEvents()
}

func (u *User) pendingUpdate() *UserUpdated {
	if u.pending == nil {
		u.pending = &UserUpdated{}
		u.base = u.state.clone()
	}
	return u.pending
}

func (u *User) flushPending() {
	if u.pending == nil {
		return
	}
	if !u.pending.IsEmpty() {
		u.Raise(*u.pending)
	}
	u.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (u *User) ApplyEvent(event any) error {
	switch e := event.(type) {
	case UserCreated:
		u.applyCreated(e)
	case UserUpdated:
		u.applyUpdated(e)
	case UserPasswordChanged:
		hash := e.PasswordHash
		u.state.passwordHash = &hash
	case UserAuthenticated:
		at := e.At
		u.state.authenticatedAt = &at
	case UserIdentifierSet:
		if u.state.identifiers == nil {
			u.state.identifiers = make(map[string]string)
		}
		u.state.identifiers[e.Key] = e.Value
	case UserIdentifierRemoved:
		delete(u.state.identifiers, e.Key)
	case UserDeleted:
		u.state.deleted = true
	default:
		return fmt.Errorf("domain: user cannot apply event %T", event)
	}
	return nil
}

func (u *User) applyCreated(e UserCreated) {
	u.state.tenantID = copyPtr(e.TenantID)
	u.state.uniqueName = e.UniqueName
	u.state.passwordHash = copyPtr(e.PasswordHash)
}

func (u *User) applyUpdated(e UserUpdated) {
	if e.UniqueName != nil {
		u.state.uniqueName = *e.UniqueName
	}
	u.state.email = e.Email.Apply(u.state.email)
	u.state.firstName = e.FirstName.Apply(u.state.firstName)
	u.state.middleName = e.MiddleName.Apply(u.state.middleName)
	u.state.lastName = e.LastName.Apply(u.state.lastName)
	u.state.nickname = e.Nickname.Apply(u.state.nickname)
	u.state.locale = e.Locale.Apply(u.state.locale)
	u.state.picture = e.Picture.Apply(u.state.picture)
	u.state.website = e.Website.Apply(u.state.website)
	if e.Disabled != nil {
		u.state.disabled = *e.Disabled
	}
	for key, value := range e.CustomAttributes {
		if value == nil {
			delete(u.state.customAttributes, key)
			continue
		}
		if u.state.customAttributes == nil {
			u.state.customAttributes = make(map[string]string)
		}
		u.state.customAttributes[key] = *value
	}
	for roleID, granted := range e.Roles {
		if !granted {
			delete(u.state.roles, roleID)
			continue
		}
		if u.state.roles == nil {
			u.state.roles = make(map[string]struct{})
		}
		u.state.roles[roleID] = struct{}{}
	}
}
