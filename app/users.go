package app

import (
	"context"
	"strings"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateUser creates a user in a realm (or at the portal level when TenantID
// is empty). The unique name must not collide with another user of the same
// tenant, and the password, when given, must satisfy the effective policy.
type CreateUser struct {
	ID         string       `json:"id,omitempty"`
	TenantID   string       `json:"tenantId,omitempty"`
	UniqueName string       `json:"uniqueName" validate:"required"`
	Password   *cqrs.Secret `json:"password,omitempty"`
}

func (CreateUser) CommandType() string   { return "CreateUser" }
func (c CreateUser) AggregateID() string { return c.ID }
func (CreateUser) Validate() error       { return nil }

// UpdateUser changes user profile properties. Nil slots are untouched; a
// Change with a nil value clears the field. Roles maps a role ID to true to
// grant or false to revoke. All changes coalesce into one event.
type UpdateUser struct {
	ID string `json:"id" validate:"required"`

	UniqueName *string                `json:"uniqueName,omitempty"`
	Email      *domain.Change[string] `json:"email,omitempty"`
	FirstName  *domain.Change[string] `json:"firstName,omitempty"`
	MiddleName *domain.Change[string] `json:"middleName,omitempty"`
	LastName   *domain.Change[string] `json:"lastName,omitempty"`
	Nickname   *domain.Change[string] `json:"nickname,omitempty"`
	Locale     *domain.Change[string] `json:"locale,omitempty"`
	Picture    *domain.Change[string] `json:"picture,omitempty"`
	Website    *domain.Change[string] `json:"website,omitempty"`
	Disabled   *bool                  `json:"disabled,omitempty"`

	// CustomAttributes maps attribute keys to a value, or nil to remove.
	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`

	Roles map[string]bool `json:"roles,omitempty"`
}

func (UpdateUser) CommandType() string   { return "UpdateUser" }
func (c UpdateUser) AggregateID() string { return c.ID }
func (UpdateUser) Validate() error       { return nil }

// ChangeUserPassword sets a new password after checking it against the
// effective password policy.
type ChangeUserPassword struct {
	ID       string      `json:"id" validate:"required"`
	Password cqrs.Secret `json:"password" validate:"required"`
}

func (ChangeUserPassword) CommandType() string   { return "ChangeUserPassword" }
func (c ChangeUserPassword) AggregateID() string { return c.ID }
func (ChangeUserPassword) Validate() error       { return nil }

// AuthenticateUser verifies a password. Success appends an authentication
// event; a wrong password or a disabled account fails without appending.
type AuthenticateUser struct {
	ID       string      `json:"id" validate:"required"`
	Password cqrs.Secret `json:"password" validate:"required"`
}

func (AuthenticateUser) CommandType() string   { return "AuthenticateUser" }
func (c AuthenticateUser) AggregateID() string { return c.ID }
func (AuthenticateUser) Validate() error       { return nil }

// SetUserIdentifier sets an external identifier (e.g. a federation subject).
type SetUserIdentifier struct {
	ID    string `json:"id" validate:"required"`
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

func (SetUserIdentifier) CommandType() string   { return "SetUserIdentifier" }
func (c SetUserIdentifier) AggregateID() string { return c.ID }
func (SetUserIdentifier) Validate() error       { return nil }

// RemoveUserIdentifier removes an external identifier.
type RemoveUserIdentifier struct {
	ID  string `json:"id" validate:"required"`
	Key string `json:"key" validate:"required"`
}

func (RemoveUserIdentifier) CommandType() string   { return "RemoveUserIdentifier" }
func (c RemoveUserIdentifier) AggregateID() string { return c.ID }
func (RemoveUserIdentifier) Validate() error       { return nil }

// SignOutUser signs out every active session of the user.
type SignOutUser struct {
	ID string `json:"id" validate:"required"`
}

func (SignOutUser) CommandType() string   { return "SignOutUser" }
func (c SignOutUser) AggregateID() string { return c.ID }
func (SignOutUser) Validate() error       { return nil }

// DeleteUser removes a user and cascades to their sessions. Terminal.
type DeleteUser struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteUser) CommandType() string   { return "DeleteUser" }
func (c DeleteUser) AggregateID() string { return c.ID }
func (DeleteUser) Validate() error       { return nil }

func (p *Portal) registerUserHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateUser),
		cqrs.NewTypedHandler(p.handleUpdateUser),
		cqrs.NewTypedHandler(p.handleChangeUserPassword),
		cqrs.NewTypedHandler(p.handleAuthenticateUser),
		cqrs.NewTypedHandler(p.handleSetUserIdentifier),
		cqrs.NewTypedHandler(p.handleRemoveUserIdentifier),
		cqrs.NewTypedHandler(p.handleSignOutUser),
		cqrs.NewTypedHandler(p.handleDeleteUser),
	)
}

func (p *Portal) handleCreateUser(ctx context.Context, cmd CreateUser) (cqrs.CommandResult, error) {
	tenantID := tenantOf(cmd.TenantID)
	settings, err := p.effectiveSettings(ctx, tenantID)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := settings.uniqueName.Validate(cmd.UniqueName); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := p.ensureUserNameAvailable(ctx, tenantID, cmd.UniqueName, ""); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	var passwordHash *string
	if cmd.Password != nil && !cmd.Password.IsEmpty() {
		if err := settings.password.Validate(cmd.Password.Raw()); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		hash, err := domain.HashSecret(cmd.Password.Raw())
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		passwordHash = &hash
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	user := domain.CreateUser(id, tenantID, cmd.UniqueName, passwordHash)

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleUpdateUser(ctx context.Context, cmd UpdateUser) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.UniqueName != nil && *cmd.UniqueName != user.UniqueName() {
		settings, err := p.effectiveSettings(ctx, user.TenantID())
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := settings.uniqueName.Validate(*cmd.UniqueName); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := p.ensureUserNameAvailable(ctx, user.TenantID(), *cmd.UniqueName, cmd.ID); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := user.SetUniqueName(*cmd.UniqueName); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if err := p.applyUserChanges(ctx, user, cmd); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) applyUserChanges(ctx context.Context, user *domain.User, cmd UpdateUser) error {
	type stringSlot struct {
		change *domain.Change[string]
		set    func(*string) error
	}
	for _, slot := range []stringSlot{
		{cmd.Email, user.SetEmail},
		{cmd.FirstName, user.SetFirstName},
		{cmd.MiddleName, user.SetMiddleName},
		{cmd.LastName, user.SetLastName},
		{cmd.Nickname, user.SetNickname},
		{cmd.Picture, user.SetPicture},
		{cmd.Website, user.SetWebsite},
	} {
		if slot.change == nil {
			continue
		}
		if err := slot.set(slot.change.Value); err != nil {
			return err
		}
	}
	if cmd.Locale != nil {
		var locale *domain.Locale
		if cmd.Locale.Value != nil {
			parsed, err := domain.NewLocale(*cmd.Locale.Value)
			if err != nil {
				return err
			}
			locale = &parsed
		}
		if err := user.SetLocale(locale); err != nil {
			return err
		}
	}
	if cmd.Disabled != nil {
		if err := user.SetDisabled(*cmd.Disabled); err != nil {
			return err
		}
	}
	for key, value := range cmd.CustomAttributes {
		if value == nil {
			if err := user.RemoveCustomAttribute(key); err != nil {
				return err
			}
			continue
		}
		if err := user.SetCustomAttribute(key, *value); err != nil {
			return err
		}
	}
	for roleID, grant := range cmd.Roles {
		if !grant {
			if err := user.RemoveRole(roleID); err != nil {
				return err
			}
			continue
		}
		if err := p.ensureRoleExists(ctx, user.TenantID(), roleID); err != nil {
			return err
		}
		if err := user.AddRole(roleID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) handleChangeUserPassword(ctx context.Context, cmd ChangeUserPassword) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	settings, err := p.effectiveSettings(ctx, user.TenantID())
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := user.ChangePassword(cmd.Password.Raw(), settings.password); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleAuthenticateUser(ctx context.Context, cmd AuthenticateUser) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := user.Authenticate(cmd.Password.Raw(), p.clock()); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleSetUserIdentifier(ctx context.Context, cmd SetUserIdentifier) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := user.SetIdentifier(cmd.Key, cmd.Value); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleRemoveUserIdentifier(ctx context.Context, cmd RemoveUserIdentifier) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := user.RemoveIdentifier(cmd.Key); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleSignOutUser(ctx context.Context, cmd SignOutUser) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.signOutSessions(ctx, cmd.ID); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.userResult(ctx, user.AggregateID(), user.Version())
}

func (p *Portal) handleDeleteUser(ctx context.Context, cmd DeleteUser) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.ID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.signOutSessions(ctx, cmd.ID); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := user.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(user.AggregateID(), user.Version()), nil
}

// signOutSessions signs out every active session of the user, one stream at
// a time.
func (p *Portal) signOutSessions(ctx context.Context, userID string) error {
	views, err := p.stores.Sessions.Find(ctx, readmodel.NewQuery().
		Where("UserID", readmodel.FilterOpEq, userID).
		Where("IsActive", readmodel.FilterOpEq, true).
		Build())
	if err != nil {
		return err
	}
	for _, view := range views {
		session := domain.NewSession(view.ID)
		if err := p.load(ctx, session); err != nil {
			return err
		}
		if !session.IsActive() {
			continue
		}
		if err := session.SignOut(p.clock()); err != nil {
			return err
		}
		if err := p.save(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// effectiveSettings resolves the unique-name and password policies for a
// tenant: the realm's settings when the user belongs to one, otherwise the
// portal configuration's, otherwise the built-in defaults.
type policySettings struct {
	uniqueName domain.UniqueNameSettings
	password   domain.PasswordSettings
}

func (p *Portal) effectiveSettings(ctx context.Context, tenantID *string) (policySettings, error) {
	if tenantID != nil {
		realm, err := p.stores.Realms.Get(ctx, *tenantID)
		if err != nil {
			if viewNotFound(err) {
				return policySettings{}, domain.NewNotFoundError(domain.AggregateTypeRealm, *tenantID)
			}
			return policySettings{}, err
		}
		return policySettings{uniqueName: realm.UniqueNameSettings, password: realm.PasswordSettings}, nil
	}
	config, err := p.stores.Configurations.Get(ctx, domain.ConfigurationID)
	if err != nil {
		if viewNotFound(err) {
			return policySettings{
				uniqueName: domain.DefaultUniqueNameSettings(),
				password:   domain.DefaultPasswordSettings(),
			}, nil
		}
		return policySettings{}, err
	}
	return policySettings{uniqueName: config.UniqueNameSettings, password: config.PasswordSettings}, nil
}

// ensureUserNameAvailable rejects a unique name already used by another user
// of the same tenant, compared case-insensitively.
func (p *Portal) ensureUserNameAvailable(ctx context.Context, tenantID *string, uniqueName, selfID string) error {
	query := readmodel.NewQuery().
		Where("NormalizedName", readmodel.FilterOpEq, strings.ToUpper(uniqueName))
	if tenantID == nil {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, *tenantID)
	}
	existing, err := p.stores.Users.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return domain.NewValidationError("uniqueName", "is already used")
	}
	return nil
}

// ensureRoleExists checks a role grant against the read model. The role must
// live in the same tenant as the grantee.
func (p *Portal) ensureRoleExists(ctx context.Context, tenantID *string, roleID string) error {
	role, err := p.stores.Roles.Get(ctx, roleID)
	if err != nil {
		if viewNotFound(err) {
			return domain.NewNotFoundError(domain.AggregateTypeRole, roleID)
		}
		return err
	}
	if !ptrEqualString(role.TenantID, tenantID) {
		return domain.NewValidationError("roles", "must belong to the same tenant")
	}
	return nil
}

func ptrEqualString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (p *Portal) userResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Users.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadUser returns a user view by ID, or nil when none exists.
func (p *Portal) ReadUser(ctx context.Context, id string) (*readmodel.UserView, error) {
	view, err := p.stores.Users.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// ReadUserByUniqueName returns a user view by unique name within a tenant,
// compared case-insensitively. Returns nil when no user matches.
func (p *Portal) ReadUserByUniqueName(ctx context.Context, tenantID, uniqueName string) (*readmodel.UserView, error) {
	query := readmodel.NewQuery().
		Where("NormalizedName", readmodel.FilterOpEq, strings.ToUpper(uniqueName))
	if tenantID == "" {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, tenantID)
	}
	view, err := p.stores.Users.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchUsers lists users matching the payload within the tenant scope.
func (p *Portal) SearchUsers(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.UserView], error) {
	return search(ctx, p.stores.Users, payload, "NormalizedName", true)
}
