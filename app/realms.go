package app

import (
	"context"
	"strings"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateRealm creates a tenant realm. The slug must be unique across the
// portal, compared case-insensitively.
type CreateRealm struct {
	// ID is optional; a UUID is assigned when empty.
	ID         string `json:"id,omitempty"`
	UniqueSlug string `json:"uniqueSlug" validate:"required"`
}

func (CreateRealm) CommandType() string { return "CreateRealm" }
func (c CreateRealm) AggregateID() string {
	return c.ID
}

func (c CreateRealm) Validate() error {
	_, err := domain.NewSlug(c.UniqueSlug)
	return err
}

// UpdateRealm changes realm properties. Nil slots are untouched; a Change
// with a nil value clears the field. All changes coalesce into one event.
type UpdateRealm struct {
	ID string `json:"id" validate:"required"`

	UniqueSlug              *string                    `json:"uniqueSlug,omitempty"`
	DisplayName             *domain.Change[string]     `json:"displayName,omitempty"`
	Description             *domain.Change[string]     `json:"description,omitempty"`
	DefaultLocale           *domain.Change[string]     `json:"defaultLocale,omitempty"`
	Secret                  *cqrs.Secret               `json:"secret,omitempty"`
	URL                     *domain.Change[string]     `json:"url,omitempty"`
	RequireUniqueEmail      *bool                      `json:"requireUniqueEmail,omitempty"`
	RequireConfirmedAccount *bool                      `json:"requireConfirmedAccount,omitempty"`
	UniqueNameSettings      *domain.UniqueNameSettings `json:"uniqueNameSettings,omitempty"`
	PasswordSettings        *domain.PasswordSettings   `json:"passwordSettings,omitempty"`

	// ClaimMappings maps claim keys to a mapping, or nil to remove the key.
	ClaimMappings map[string]*domain.ClaimMapping `json:"claimMappings,omitempty"`

	// CustomAttributes maps attribute keys to a value, or nil to remove.
	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`

	PasswordRecoverySenderID   *domain.Change[string] `json:"passwordRecoverySenderId,omitempty"`
	PasswordRecoveryTemplateID *domain.Change[string] `json:"passwordRecoveryTemplateId,omitempty"`
}

func (UpdateRealm) CommandType() string   { return "UpdateRealm" }
func (c UpdateRealm) AggregateID() string { return c.ID }

func (c UpdateRealm) Validate() error {
	if c.UniqueSlug != nil {
		if _, err := domain.NewSlug(*c.UniqueSlug); err != nil {
			return err
		}
	}
	return nil
}

// RotateRealmSecret replaces the realm signing secret with a generated one.
type RotateRealmSecret struct {
	ID string `json:"id" validate:"required"`
}

func (RotateRealmSecret) CommandType() string   { return "RotateRealmSecret" }
func (c RotateRealmSecret) AggregateID() string { return c.ID }
func (RotateRealmSecret) Validate() error       { return nil }

// DeleteRealm removes a realm. Terminal.
type DeleteRealm struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteRealm) CommandType() string   { return "DeleteRealm" }
func (c DeleteRealm) AggregateID() string { return c.ID }
func (DeleteRealm) Validate() error       { return nil }

func (p *Portal) registerRealmHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateRealm),
		cqrs.NewTypedHandler(p.handleUpdateRealm),
		cqrs.NewTypedHandler(p.handleRotateRealmSecret),
		cqrs.NewTypedHandler(p.handleDeleteRealm),
	)
}

func (p *Portal) handleCreateRealm(ctx context.Context, cmd CreateRealm) (cqrs.CommandResult, error) {
	slug, err := domain.NewSlug(cmd.UniqueSlug)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.ensureSlugAvailable(ctx, slug, ""); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	realm := domain.CreateRealm(id, slug)

	if err := p.save(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.realmResult(ctx, realm.AggregateID(), realm.Version())
}

func (p *Portal) handleUpdateRealm(ctx context.Context, cmd UpdateRealm) (cqrs.CommandResult, error) {
	realm := domain.NewRealm(cmd.ID)
	if err := p.load(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.UniqueSlug != nil {
		slug, err := domain.NewSlug(*cmd.UniqueSlug)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := p.ensureSlugAvailable(ctx, slug, cmd.ID); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := realm.SetUniqueSlug(slug); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if err := p.applyRealmChanges(ctx, realm, cmd); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.realmResult(ctx, realm.AggregateID(), realm.Version())
}

func (p *Portal) applyRealmChanges(ctx context.Context, realm *domain.Realm, cmd UpdateRealm) error {
	if cmd.DisplayName != nil {
		if err := realm.SetDisplayName(cmd.DisplayName.Value); err != nil {
			return err
		}
	}
	if cmd.Description != nil {
		if err := realm.SetDescription(cmd.Description.Value); err != nil {
			return err
		}
	}
	if cmd.DefaultLocale != nil {
		var locale *domain.Locale
		if cmd.DefaultLocale.Value != nil {
			parsed, err := domain.NewLocale(*cmd.DefaultLocale.Value)
			if err != nil {
				return err
			}
			locale = &parsed
		}
		if err := realm.SetDefaultLocale(locale); err != nil {
			return err
		}
	}
	if cmd.Secret != nil {
		secret, err := domain.NewSecret(cmd.Secret.Raw())
		if err != nil {
			return err
		}
		if err := realm.SetSecret(secret); err != nil {
			return err
		}
	}
	if cmd.URL != nil {
		var url *string
		if cmd.URL.Value != nil {
			validated, err := domain.NewURL(*cmd.URL.Value)
			if err != nil {
				return err
			}
			url = &validated
		}
		if err := realm.SetURL(url); err != nil {
			return err
		}
	}
	if cmd.RequireUniqueEmail != nil {
		if err := realm.SetRequireUniqueEmail(*cmd.RequireUniqueEmail); err != nil {
			return err
		}
	}
	if cmd.RequireConfirmedAccount != nil {
		if err := realm.SetRequireConfirmedAccount(*cmd.RequireConfirmedAccount); err != nil {
			return err
		}
	}
	if cmd.UniqueNameSettings != nil {
		if err := realm.SetUniqueNameSettings(*cmd.UniqueNameSettings); err != nil {
			return err
		}
	}
	if cmd.PasswordSettings != nil {
		if err := realm.SetPasswordSettings(*cmd.PasswordSettings); err != nil {
			return err
		}
	}
	for key, mapping := range cmd.ClaimMappings {
		if mapping == nil {
			if err := realm.RemoveClaimMapping(key); err != nil {
				return err
			}
			continue
		}
		if err := realm.SetClaimMapping(key, *mapping); err != nil {
			return err
		}
	}
	for key, value := range cmd.CustomAttributes {
		if value == nil {
			if err := realm.RemoveCustomAttribute(key); err != nil {
				return err
			}
			continue
		}
		if err := realm.SetCustomAttribute(key, *value); err != nil {
			return err
		}
	}
	if cmd.PasswordRecoverySenderID != nil {
		if cmd.PasswordRecoverySenderID.Value != nil {
			if _, err := p.stores.Senders.Get(ctx, *cmd.PasswordRecoverySenderID.Value); err != nil {
				if viewNotFound(err) {
					return domain.NewNotFoundError(domain.AggregateTypeSender, *cmd.PasswordRecoverySenderID.Value)
				}
				return err
			}
		}
		if err := realm.SetPasswordRecoverySenderID(cmd.PasswordRecoverySenderID.Value); err != nil {
			return err
		}
	}
	if cmd.PasswordRecoveryTemplateID != nil {
		if cmd.PasswordRecoveryTemplateID.Value != nil {
			if _, err := p.stores.Templates.Get(ctx, *cmd.PasswordRecoveryTemplateID.Value); err != nil {
				if viewNotFound(err) {
					return domain.NewNotFoundError(domain.AggregateTypeTemplate, *cmd.PasswordRecoveryTemplateID.Value)
				}
				return err
			}
		}
		if err := realm.SetPasswordRecoveryTemplateID(cmd.PasswordRecoveryTemplateID.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) handleRotateRealmSecret(ctx context.Context, cmd RotateRealmSecret) (cqrs.CommandResult, error) {
	realm := domain.NewRealm(cmd.ID)
	if err := p.load(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := realm.RotateSecret(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.realmResult(ctx, realm.AggregateID(), realm.Version())
}

func (p *Portal) handleDeleteRealm(ctx context.Context, cmd DeleteRealm) (cqrs.CommandResult, error) {
	realm := domain.NewRealm(cmd.ID)
	if err := p.load(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := realm.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, realm); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(realm.AggregateID(), realm.Version()), nil
}

// ensureSlugAvailable rejects a slug already used by another realm.
func (p *Portal) ensureSlugAvailable(ctx context.Context, slug domain.Slug, selfID string) error {
	existing, err := p.stores.Realms.FindOne(ctx,
		readmodel.NewQuery().Where("NormalizedSlug", readmodel.FilterOpEq, slug.Normalized()).Build())
	if err != nil {
		if viewNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return domain.NewValidationError("uniqueSlug", "is already used")
	}
	return nil
}

func (p *Portal) realmResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Realms.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadRealm returns a realm by ID or by unique slug, compared
// case-insensitively. Returns nil when no realm matches.
func (p *Portal) ReadRealm(ctx context.Context, idOrSlug string) (*readmodel.RealmView, error) {
	view, err := p.stores.Realms.Get(ctx, idOrSlug)
	if err == nil {
		return view, nil
	}
	if !viewNotFound(err) {
		return nil, err
	}

	normalized := strings.ToUpper(idOrSlug)
	view, err = p.stores.Realms.FindOne(ctx,
		readmodel.NewQuery().Where("NormalizedSlug", readmodel.FilterOpEq, normalized).Build())
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchRealms lists realms matching the payload. Realms are portal-level,
// so the tenant scope is ignored.
func (p *Portal) SearchRealms(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.RealmView], error) {
	payload.All = true
	return search(ctx, p.stores.Realms, payload, "NormalizedSlug", false)
}
