package readmodel

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/eventstore"
)

// Stores groups the view repositories the projector writes to and queriers
// read from. Each view type is owned exclusively by its projection handlers;
// no other path mutates it.
type Stores struct {
	Configurations Repository[ConfigurationView]
	Realms         Repository[RealmView]
	Users          Repository[UserView]
	Sessions       Repository[SessionView]
	ApiKeys        Repository[ApiKeyView]
	Roles          Repository[RoleView]
	Senders        Repository[SenderView]
	Templates      Repository[TemplateView]
	Dictionaries   Repository[DictionaryView]
}

// NewMemoryStores creates in-memory repositories for every view type.
func NewMemoryStores() Stores {
	return Stores{
		Configurations: NewInMemoryRepository(func(v *ConfigurationView) string { return v.ID }),
		Realms:         NewInMemoryRepository(func(v *RealmView) string { return v.ID }),
		Users:          NewInMemoryRepository(func(v *UserView) string { return v.ID }),
		Sessions:       NewInMemoryRepository(func(v *SessionView) string { return v.ID }),
		ApiKeys:        NewInMemoryRepository(func(v *ApiKeyView) string { return v.ID }),
		Roles:          NewInMemoryRepository(func(v *RoleView) string { return v.ID }),
		Senders:        NewInMemoryRepository(func(v *SenderView) string { return v.ID }),
		Templates:      NewInMemoryRepository(func(v *TemplateView) string { return v.ID }),
		Dictionaries:   NewInMemoryRepository(func(v *DictionaryView) string { return v.ID }),
	}
}

// Clear empties every repository.
func (s Stores) Clear(ctx context.Context) error {
	for _, clear := range []func(context.Context) error{
		s.Configurations.Clear, s.Realms.Clear, s.Users.Clear,
		s.Sessions.Clear, s.ApiKeys.Clear, s.Roles.Clear,
		s.Senders.Clear, s.Templates.Clear, s.Dictionaries.Clear,
	} {
		if err := clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Projector routes domain events to per-event-type handlers that keep the
// views synchronized. Handlers are idempotent and order-sensitive: an event
// whose version is at or below the view's version is a no-op.
type Projector struct {
	stores Stores
}

// NewProjector creates a projector writing to the given stores.
func NewProjector(stores Stores) *Projector {
	return &Projector{stores: stores}
}

// Register subscribes every projection handler on the bus.
func (p *Projector) Register(bus *eventstore.Bus) {
	handlers := map[string]func(context.Context, eventstore.Event) error{
		"ConfigurationInitialized": p.handleConfigurationInitialized,
		"ConfigurationUpdated":     p.handleConfigurationUpdated,
		"RealmCreated":             p.handleRealmCreated,
		"RealmUpdated":             p.handleRealmUpdated,
		"RealmDeleted":             p.handleRealmDeleted,
		"UserCreated":              p.handleUserCreated,
		"UserUpdated":              p.handleUserUpdated,
		"UserPasswordChanged":      p.handleUserPasswordChanged,
		"UserAuthenticated":        p.handleUserAuthenticated,
		"UserIdentifierSet":        p.handleUserIdentifierSet,
		"UserIdentifierRemoved":    p.handleUserIdentifierRemoved,
		"UserDeleted":              p.handleUserDeleted,
		"SessionCreated":           p.handleSessionCreated,
		"SessionRenewed":           p.handleSessionRenewed,
		"SessionSignedOut":         p.handleSessionSignedOut,
		"ApiKeyCreated":            p.handleApiKeyCreated,
		"ApiKeyUpdated":            p.handleApiKeyUpdated,
		"ApiKeyAuthenticated":      p.handleApiKeyAuthenticated,
		"ApiKeyDeleted":            p.handleApiKeyDeleted,
		"RoleCreated":              p.handleRoleCreated,
		"RoleUpdated":              p.handleRoleUpdated,
		"RoleDeleted":              p.handleRoleDeleted,
		"SenderCreated":            p.handleSenderCreated,
		"SenderUpdated":            p.handleSenderUpdated,
		"SenderSetDefault":         p.handleSenderSetDefault,
		"SenderDeleted":            p.handleSenderDeleted,
		"TemplateCreated":          p.handleTemplateCreated,
		"TemplateUpdated":          p.handleTemplateUpdated,
		"TemplateDeleted":          p.handleTemplateDeleted,
		"DictionaryCreated":        p.handleDictionaryCreated,
		"DictionaryUpdated":        p.handleDictionaryUpdated,
		"DictionaryDeleted":        p.handleDictionaryDeleted,
	}
	for eventType, handler := range handlers {
		bus.SubscribeFunc(eventType, handler)
	}
}

// projectedView is implemented by every view so the generic insert/update
// helpers can run the idempotence check and stamp audit fields.
type projectedView interface {
	viewVersion() int64
	record(version int64, at time.Time, actor string)
}

func (v *ConfigurationView) viewVersion() int64 { return v.Version }
func (v *RealmView) viewVersion() int64         { return v.Version }
func (v *UserView) viewVersion() int64          { return v.Version }
func (v *SessionView) viewVersion() int64       { return v.Version }
func (v *ApiKeyView) viewVersion() int64        { return v.Version }
func (v *RoleView) viewVersion() int64          { return v.Version }
func (v *SenderView) viewVersion() int64        { return v.Version }
func (v *TemplateView) viewVersion() int64      { return v.Version }
func (v *DictionaryView) viewVersion() int64    { return v.Version }

func (v *ConfigurationView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *RealmView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *UserView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *SessionView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *ApiKeyView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *RoleView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *SenderView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *TemplateView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}
func (v *DictionaryView) record(version int64, at time.Time, actor string) {
	v.Version, v.UpdatedAt, v.UpdatedBy = version, at, actor
}

// insertView applies a Created event: inserts if the row is absent, replaces
// a stale row, no-ops on redelivery.
func insertView[T any, PT interface {
	*T
	projectedView
}](ctx context.Context, repo Repository[T], id string, event eventstore.Event, build func() PT) error {
	existing, err := repo.Get(ctx, id)
	if err == nil {
		if event.Version <= PT(existing).viewVersion() {
			return nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	view := build()
	view.record(event.Version, event.OccurredAt, event.Metadata.ActorID)
	return repo.Upsert(ctx, (*T)(view))
}

// updateView applies a delta event to an existing row. A missing row is an
// error: the log says the aggregate exists.
func updateView[T any, PT interface {
	*T
	projectedView
}](ctx context.Context, repo Repository[T], id string, event eventstore.Event, apply func(PT) error) error {
	existing, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	view := PT(existing)
	if event.Version <= view.viewVersion() {
		return nil
	}
	if err := apply(view); err != nil {
		return err
	}
	view.record(event.Version, event.OccurredAt, event.Metadata.ActorID)
	return repo.Upsert(ctx, existing)
}

// deleteView removes a row. Redelivery after deletion is a no-op.
func deleteView[T any](ctx context.Context, repo Repository[T], id string) error {
	if err := repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func aggregateID(event eventstore.Event) (string, error) {
	sid, err := eventstore.ParseStreamID(event.StreamID)
	if err != nil {
		return "", err
	}
	return sid.ID, nil
}

func applyAttrDeltas(current map[string]string, deltas map[string]*string) map[string]string {
	if len(deltas) == 0 {
		return current
	}
	if current == nil {
		current = make(map[string]string, len(deltas))
	}
	for key, value := range deltas {
		if value == nil {
			delete(current, key)
		} else {
			current[key] = *value
		}
	}
	return current
}

// resolveRoles applies role grant/revoke deltas to an embedded role list,
// resolving granted role IDs into full role views.
func (p *Projector) resolveRoles(ctx context.Context, current []RoleView, deltas map[string]bool, referencedBy string) ([]RoleView, error) {
	for roleID, granted := range deltas {
		id := roleID
		if !granted {
			current = lo.Filter(current, func(r RoleView, _ int) bool { return r.ID != id })
			continue
		}
		if lo.ContainsBy(current, func(r RoleView) bool { return r.ID == id }) {
			continue
		}
		role, err := p.stores.Roles.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewReferencedEntityMissingError(domain.AggregateTypeRole, id, referencedBy)
			}
			return nil, err
		}
		current = append(current, *role)
	}
	return current, nil
}

func (p *Projector) handleConfigurationInitialized(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.ConfigurationInitialized](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Configurations, id, event, func() *ConfigurationView {
		return &ConfigurationView{
			ID:                 id,
			DefaultLocale:      e.DefaultLocale,
			Secret:             e.Secret,
			UniqueNameSettings: e.UniqueNameSettings,
			PasswordSettings:   e.PasswordSettings,
			CreatedAt:          event.OccurredAt,
			CreatedBy:          event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleConfigurationUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.ConfigurationUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Configurations, id, event, func(v *ConfigurationView) error {
		if e.DefaultLocale != nil {
			v.DefaultLocale = *e.DefaultLocale
		}
		if e.Secret != nil {
			v.Secret = *e.Secret
		}
		if e.UniqueNameSettings != nil {
			v.UniqueNameSettings = *e.UniqueNameSettings
		}
		if e.PasswordSettings != nil {
			v.PasswordSettings = *e.PasswordSettings
		}
		return nil
	})
}

func (p *Projector) handleRealmCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.RealmCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Realms, id, event, func() *RealmView {
		return &RealmView{
			ID:                 id,
			UniqueSlug:         e.UniqueSlug.String(),
			NormalizedSlug:     e.UniqueSlug.Normalized(),
			Secret:             e.Secret,
			UniqueNameSettings: e.UniqueNameSettings,
			PasswordSettings:   e.PasswordSettings,
			CreatedAt:          event.OccurredAt,
			CreatedBy:          event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleRealmUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.RealmUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Realms, id, event, func(v *RealmView) error {
		if e.UniqueSlug != nil {
			v.UniqueSlug = e.UniqueSlug.String()
			v.NormalizedSlug = e.UniqueSlug.Normalized()
		}
		v.DisplayName = e.DisplayName.Apply(v.DisplayName)
		v.Description = e.Description.Apply(v.Description)
		v.DefaultLocale = e.DefaultLocale.Apply(v.DefaultLocale)
		if e.Secret != nil {
			v.Secret = *e.Secret
		}
		v.URL = e.URL.Apply(v.URL)
		if e.RequireUniqueEmail != nil {
			v.RequireUniqueEmail = *e.RequireUniqueEmail
		}
		if e.RequireConfirmedAccount != nil {
			v.RequireConfirmedAccount = *e.RequireConfirmedAccount
		}
		if e.UniqueNameSettings != nil {
			v.UniqueNameSettings = *e.UniqueNameSettings
		}
		if e.PasswordSettings != nil {
			v.PasswordSettings = *e.PasswordSettings
		}
		for key, mapping := range e.ClaimMappings {
			if mapping == nil {
				delete(v.ClaimMappings, key)
				continue
			}
			if v.ClaimMappings == nil {
				v.ClaimMappings = make(map[string]domain.ClaimMapping)
			}
			v.ClaimMappings[key] = *mapping
		}
		v.CustomAttributes = applyAttrDeltas(v.CustomAttributes, e.CustomAttributes)

		if e.PasswordRecoverySenderID != nil {
			if e.PasswordRecoverySenderID.Value == nil {
				v.PasswordRecoverySender = nil
			} else {
				senderID := *e.PasswordRecoverySenderID.Value
				sender, err := p.stores.Senders.Get(ctx, senderID)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						return NewReferencedEntityMissingError(domain.AggregateTypeSender, senderID, event.StreamID)
					}
					return err
				}
				v.PasswordRecoverySender = NewSenderSummary(sender)
			}
		}
		if e.PasswordRecoveryTemplateID != nil {
			if e.PasswordRecoveryTemplateID.Value == nil {
				v.PasswordRecoveryTemplate = nil
			} else {
				templateID := *e.PasswordRecoveryTemplateID.Value
				template, err := p.stores.Templates.Get(ctx, templateID)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						return NewReferencedEntityMissingError(domain.AggregateTypeTemplate, templateID, event.StreamID)
					}
					return err
				}
				v.PasswordRecoveryTemplate = NewTemplateSummary(template)
			}
		}
		return nil
	})
}

func (p *Projector) handleRealmDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	return deleteView(ctx, p.stores.Realms, id)
}

func (p *Projector) handleUserCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Users, id, event, func() *UserView {
		return &UserView{
			ID:             id,
			TenantID:       e.TenantID,
			UniqueName:     e.UniqueName,
			NormalizedName: normalize(e.UniqueName),
			PasswordHash:   e.PasswordHash,
			HasPassword:    e.PasswordHash != nil,
			CreatedAt:      event.OccurredAt,
			CreatedBy:      event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleUserUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserUpdated](event)
	if err != nil {
		return err
	}
	err = updateView(ctx, p.stores.Users, id, event, func(v *UserView) error {
		if e.UniqueName != nil {
			v.UniqueName = *e.UniqueName
			v.NormalizedName = normalize(*e.UniqueName)
		}
		v.Email = e.Email.Apply(v.Email)
		v.FirstName = e.FirstName.Apply(v.FirstName)
		v.MiddleName = e.MiddleName.Apply(v.MiddleName)
		v.LastName = e.LastName.Apply(v.LastName)
		v.Nickname = e.Nickname.Apply(v.Nickname)
		v.Locale = e.Locale.Apply(v.Locale)
		v.Picture = e.Picture.Apply(v.Picture)
		v.Website = e.Website.Apply(v.Website)
		if e.Disabled != nil {
			v.Disabled = *e.Disabled
		}
		v.FullName = assembleFullName(v.FirstName, v.MiddleName, v.LastName)
		v.CustomAttributes = applyAttrDeltas(v.CustomAttributes, e.CustomAttributes)

		roles, err := p.resolveRoles(ctx, v.Roles, e.Roles, event.StreamID)
		if err != nil {
			return err
		}
		v.Roles = roles
		return nil
	})
	if err != nil {
		return err
	}
	return p.refreshUserSummaries(ctx, id)
}

func (p *Projector) handleUserPasswordChanged(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserPasswordChanged](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Users, id, event, func(v *UserView) error {
		hash := e.PasswordHash
		v.PasswordHash = &hash
		v.HasPassword = true
		return nil
	})
}

func (p *Projector) handleUserAuthenticated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserAuthenticated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Users, id, event, func(v *UserView) error {
		at := e.At
		v.AuthenticatedAt = &at
		return nil
	})
}

func (p *Projector) handleUserIdentifierSet(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserIdentifierSet](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Users, id, event, func(v *UserView) error {
		if v.Identifiers == nil {
			v.Identifiers = make(map[string]string)
		}
		v.Identifiers[e.Key] = e.Value
		return nil
	})
}

func (p *Projector) handleUserIdentifierRemoved(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.UserIdentifierRemoved](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Users, id, event, func(v *UserView) error {
		delete(v.Identifiers, e.Key)
		return nil
	})
}

func (p *Projector) handleUserDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	// The user's sessions go with the user.
	sessions, err := p.stores.Sessions.Find(ctx, NewQuery().Where("UserID", FilterOpEq, id).Build())
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := deleteView(ctx, p.stores.Sessions, session.ID); err != nil {
			return err
		}
	}
	return deleteView(ctx, p.stores.Users, id)
}

func (p *Projector) handleSessionCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SessionCreated](event)
	if err != nil {
		return err
	}
	user, err := p.stores.Users.Get(ctx, e.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewReferencedEntityMissingError(domain.AggregateTypeUser, e.UserID, event.StreamID)
		}
		return err
	}
	return insertView(ctx, p.stores.Sessions, id, event, func() *SessionView {
		return &SessionView{
			ID:           id,
			UserID:       e.UserID,
			User:         NewUserSummary(user),
			IsPersistent: e.SecretHash != nil,
			IsActive:     true,
			SignedInAt:   e.SignedInAt,
			CreatedAt:    event.OccurredAt,
			CreatedBy:    event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleSessionRenewed(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SessionRenewed](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Sessions, id, event, func(v *SessionView) error {
		at := e.RenewedAt
		v.RenewedAt = &at
		return nil
	})
}

func (p *Projector) handleSessionSignedOut(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SessionSignedOut](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Sessions, id, event, func(v *SessionView) error {
		at := e.SignedOutAt
		v.IsActive = false
		v.SignedOutAt = &at
		return nil
	})
}

func (p *Projector) handleApiKeyCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.ApiKeyCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.ApiKeys, id, event, func() *ApiKeyView {
		return &ApiKeyView{
			ID:          id,
			TenantID:    e.TenantID,
			DisplayName: e.DisplayName,
			ExpiresOn:   e.ExpiresOn,
			CreatedAt:   event.OccurredAt,
			CreatedBy:   event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleApiKeyUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.ApiKeyUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.ApiKeys, id, event, func(v *ApiKeyView) error {
		if e.DisplayName != nil {
			v.DisplayName = *e.DisplayName
		}
		v.Description = e.Description.Apply(v.Description)
		if e.ExpiresOn != nil {
			at := *e.ExpiresOn
			v.ExpiresOn = &at
		}
		v.CustomAttributes = applyAttrDeltas(v.CustomAttributes, e.CustomAttributes)

		roles, err := p.resolveRoles(ctx, v.Roles, e.Roles, event.StreamID)
		if err != nil {
			return err
		}
		v.Roles = roles
		return nil
	})
}

func (p *Projector) handleApiKeyAuthenticated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.ApiKeyAuthenticated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.ApiKeys, id, event, func(v *ApiKeyView) error {
		at := e.At
		v.AuthenticatedAt = &at
		return nil
	})
}

func (p *Projector) handleApiKeyDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	return deleteView(ctx, p.stores.ApiKeys, id)
}

func (p *Projector) handleRoleCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.RoleCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Roles, id, event, func() *RoleView {
		return &RoleView{
			ID:             id,
			TenantID:       e.TenantID,
			UniqueName:     e.UniqueName,
			NormalizedName: normalize(e.UniqueName),
			CreatedAt:      event.OccurredAt,
			CreatedBy:      event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleRoleUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.RoleUpdated](event)
	if err != nil {
		return err
	}
	err = updateView(ctx, p.stores.Roles, id, event, func(v *RoleView) error {
		if e.UniqueName != nil {
			v.UniqueName = *e.UniqueName
			v.NormalizedName = normalize(*e.UniqueName)
		}
		v.DisplayName = e.DisplayName.Apply(v.DisplayName)
		v.Description = e.Description.Apply(v.Description)
		v.CustomAttributes = applyAttrDeltas(v.CustomAttributes, e.CustomAttributes)
		return nil
	})
	if err != nil {
		return err
	}
	return p.refreshEmbeddedRole(ctx, id)
}

func (p *Projector) handleRoleDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	if err := p.removeEmbeddedRole(ctx, id); err != nil {
		return err
	}
	return deleteView(ctx, p.stores.Roles, id)
}

func (p *Projector) handleSenderCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SenderCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Senders, id, event, func() *SenderView {
		return &SenderView{
			ID:           id,
			TenantID:     e.TenantID,
			Provider:     e.Provider,
			EmailAddress: e.EmailAddress,
			PhoneNumber:  e.PhoneNumber,
			CreatedAt:    event.OccurredAt,
			CreatedBy:    event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleSenderUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SenderUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Senders, id, event, func(v *SenderView) error {
		if e.EmailAddress != nil {
			v.EmailAddress = e.EmailAddress
		}
		if e.PhoneNumber != nil {
			v.PhoneNumber = e.PhoneNumber
		}
		v.DisplayName = e.DisplayName.Apply(v.DisplayName)
		v.Description = e.Description.Apply(v.Description)
		v.Settings = applyAttrDeltas(v.Settings, e.Settings)
		return nil
	})
}

func (p *Projector) handleSenderSetDefault(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.SenderSetDefault](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Senders, id, event, func(v *SenderView) error {
		v.IsDefault = e.IsDefault
		return nil
	})
}

func (p *Projector) handleSenderDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	return deleteView(ctx, p.stores.Senders, id)
}

func (p *Projector) handleTemplateCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.TemplateCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Templates, id, event, func() *TemplateView {
		return &TemplateView{
			ID:        id,
			TenantID:  e.TenantID,
			UniqueKey: e.UniqueKey,
			Subject:   e.Subject,
			Content:   e.Content,
			CreatedAt: event.OccurredAt,
			CreatedBy: event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleTemplateUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.TemplateUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Templates, id, event, func(v *TemplateView) error {
		if e.UniqueKey != nil {
			v.UniqueKey = *e.UniqueKey
		}
		v.DisplayName = e.DisplayName.Apply(v.DisplayName)
		v.Description = e.Description.Apply(v.Description)
		if e.Subject != nil {
			v.Subject = *e.Subject
		}
		if e.Content != nil {
			v.Content = *e.Content
		}
		return nil
	})
}

func (p *Projector) handleTemplateDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	return deleteView(ctx, p.stores.Templates, id)
}

func (p *Projector) handleDictionaryCreated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.DictionaryCreated](event)
	if err != nil {
		return err
	}
	return insertView(ctx, p.stores.Dictionaries, id, event, func() *DictionaryView {
		return &DictionaryView{
			ID:        id,
			TenantID:  e.TenantID,
			Locale:    e.Locale,
			CreatedAt: event.OccurredAt,
			CreatedBy: event.Metadata.ActorID,
		}
	})
}

func (p *Projector) handleDictionaryUpdated(ctx context.Context, event eventstore.Event) error {
	e, id, err := payload[domain.DictionaryUpdated](event)
	if err != nil {
		return err
	}
	return updateView(ctx, p.stores.Dictionaries, id, event, func(v *DictionaryView) error {
		if e.Locale != nil {
			v.Locale = *e.Locale
		}
		v.Entries = applyAttrDeltas(v.Entries, e.Entries)
		v.EntryCount = len(v.Entries)
		return nil
	})
}

func (p *Projector) handleDictionaryDeleted(ctx context.Context, event eventstore.Event) error {
	id, err := aggregateID(event)
	if err != nil {
		return err
	}
	return deleteView(ctx, p.stores.Dictionaries, id)
}

// refreshEmbeddedRole rewrites the embedded copy of a role in every user and
// API key view that carries it. These rewrites do not bump the owning view's
// version; they track the role's stream, and overwriting is idempotent.
func (p *Projector) refreshEmbeddedRole(ctx context.Context, roleID string) error {
	role, err := p.stores.Roles.Get(ctx, roleID)
	if err != nil {
		return err
	}
	users, err := p.stores.Users.Find(ctx, Query{})
	if err != nil {
		return err
	}
	for _, user := range users {
		if !lo.ContainsBy(user.Roles, func(r RoleView) bool { return r.ID == roleID }) {
			continue
		}
		err := p.stores.Users.Update(ctx, user.ID, func(v *UserView) {
			v.Roles = lo.Map(v.Roles, func(r RoleView, _ int) RoleView {
				if r.ID == roleID {
					return *role
				}
				return r
			})
		})
		if err != nil {
			return err
		}
	}
	keys, err := p.stores.ApiKeys.Find(ctx, Query{})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !lo.ContainsBy(key.Roles, func(r RoleView) bool { return r.ID == roleID }) {
			continue
		}
		err := p.stores.ApiKeys.Update(ctx, key.ID, func(v *ApiKeyView) {
			v.Roles = lo.Map(v.Roles, func(r RoleView, _ int) RoleView {
				if r.ID == roleID {
					return *role
				}
				return r
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// removeEmbeddedRole strips a deleted role from every user and API key view.
func (p *Projector) removeEmbeddedRole(ctx context.Context, roleID string) error {
	users, err := p.stores.Users.Find(ctx, Query{})
	if err != nil {
		return err
	}
	for _, user := range users {
		if !lo.ContainsBy(user.Roles, func(r RoleView) bool { return r.ID == roleID }) {
			continue
		}
		err := p.stores.Users.Update(ctx, user.ID, func(v *UserView) {
			v.Roles = lo.Filter(v.Roles, func(r RoleView, _ int) bool { return r.ID != roleID })
		})
		if err != nil {
			return err
		}
	}
	keys, err := p.stores.ApiKeys.Find(ctx, Query{})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !lo.ContainsBy(key.Roles, func(r RoleView) bool { return r.ID == roleID }) {
			continue
		}
		err := p.stores.ApiKeys.Update(ctx, key.ID, func(v *ApiKeyView) {
			v.Roles = lo.Filter(v.Roles, func(r RoleView, _ int) bool { return r.ID != roleID })
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// refreshUserSummaries rewrites the user summary embedded in the user's
// session views after a profile change.
func (p *Projector) refreshUserSummaries(ctx context.Context, userID string) error {
	user, err := p.stores.Users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	sessions, err := p.stores.Sessions.Find(ctx, NewQuery().Where("UserID", FilterOpEq, userID).Build())
	if err != nil {
		return err
	}
	for _, session := range sessions {
		err := p.stores.Sessions.Update(ctx, session.ID, func(v *SessionView) {
			v.User = NewUserSummary(user)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// payload extracts the typed event payload and the aggregate ID.
func payload[E any](event eventstore.Event) (E, string, error) {
	var zero E
	e, ok := event.Data.(E)
	if !ok {
		id, _ := aggregateID(event)
		return zero, id, &eventstore.SerializationError{
			EventType: event.Type,
			Operation: "deserialize",
			Cause:     errors.New("readmodel: unexpected payload type"),
		}
	}
	id, err := aggregateID(event)
	if err != nil {
		return zero, "", err
	}
	return e, id, nil
}

func assembleFullName(parts ...*string) *string {
	var full string
	for _, part := range parts {
		if part == nil || *part == "" {
			continue
		}
		if full != "" {
			full += " "
		}
		full += *part
	}
	if full == "" {
		return nil
	}
	return &full
}

func normalize(s string) string {
	return domain.Slug(s).Normalized()
}
