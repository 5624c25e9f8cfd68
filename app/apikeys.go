package app

import (
	"context"
	"time"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateApiKey creates an API key. The clear-text secret is generated here
// and returned once in the result; only its hash is stored.
type CreateApiKey struct {
	ID          string     `json:"id,omitempty"`
	TenantID    string     `json:"tenantId,omitempty"`
	DisplayName string     `json:"displayName" validate:"required"`
	ExpiresOn   *time.Time `json:"expiresOn,omitempty"`
}

func (CreateApiKey) CommandType() string   { return "CreateApiKey" }
func (c CreateApiKey) AggregateID() string { return c.ID }
func (CreateApiKey) Validate() error       { return nil }

// UpdateApiKey changes API key properties. The expiration can only be moved
// earlier; Roles maps a role ID to true to grant or false to revoke.
type UpdateApiKey struct {
	ID string `json:"id" validate:"required"`

	DisplayName *string                `json:"displayName,omitempty"`
	Description *domain.Change[string] `json:"description,omitempty"`
	ExpiresOn   *time.Time             `json:"expiresOn,omitempty"`

	// CustomAttributes maps attribute keys to a value, or nil to remove.
	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`

	Roles map[string]bool `json:"roles,omitempty"`
}

func (UpdateApiKey) CommandType() string   { return "UpdateApiKey" }
func (c UpdateApiKey) AggregateID() string { return c.ID }
func (UpdateApiKey) Validate() error       { return nil }

// AuthenticateApiKey verifies an API key secret and checks expiry.
type AuthenticateApiKey struct {
	ID     string      `json:"id" validate:"required"`
	Secret cqrs.Secret `json:"secret" validate:"required"`
}

func (AuthenticateApiKey) CommandType() string   { return "AuthenticateApiKey" }
func (c AuthenticateApiKey) AggregateID() string { return c.ID }
func (AuthenticateApiKey) Validate() error       { return nil }

// DeleteApiKey removes an API key. Terminal.
type DeleteApiKey struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteApiKey) CommandType() string   { return "DeleteApiKey" }
func (c DeleteApiKey) AggregateID() string { return c.ID }
func (DeleteApiKey) Validate() error       { return nil }

// ApiKeyResult is the data of a successful CreateApiKey. The secret appears
// exactly once, here; it cannot be recovered later.
type ApiKeyResult struct {
	ApiKey *readmodel.ApiKeyView `json:"apiKey"`
	Secret string                `json:"secret,omitempty"`
}

func (p *Portal) registerApiKeyHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateApiKey),
		cqrs.NewTypedHandler(p.handleUpdateApiKey),
		cqrs.NewTypedHandler(p.handleAuthenticateApiKey),
		cqrs.NewTypedHandler(p.handleDeleteApiKey),
	)
}

func (p *Portal) handleCreateApiKey(ctx context.Context, cmd CreateApiKey) (cqrs.CommandResult, error) {
	tenantID := tenantOf(cmd.TenantID)
	if tenantID != nil {
		if _, err := p.stores.Realms.Get(ctx, *tenantID); err != nil {
			if viewNotFound(err) {
				err = domain.NewNotFoundError(domain.AggregateTypeRealm, *tenantID)
			}
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.ExpiresOn != nil && !cmd.ExpiresOn.After(p.clock()) {
		err := domain.NewValidationError("expiresOn", "must be in the future")
		return cqrs.NewErrorResult(err), err
	}

	secret := domain.GenerateSecret()
	hash, err := domain.HashSecret(secret)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	key := domain.CreateApiKey(id, tenantID, cmd.DisplayName, hash, cmd.ExpiresOn)

	if err := p.save(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.apiKeyResult(ctx, key.AggregateID(), key.Version(), secret)
}

func (p *Portal) handleUpdateApiKey(ctx context.Context, cmd UpdateApiKey) (cqrs.CommandResult, error) {
	key := domain.NewApiKey(cmd.ID)
	if err := p.load(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.applyApiKeyChanges(ctx, key, cmd); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.apiKeyResult(ctx, key.AggregateID(), key.Version(), "")
}

func (p *Portal) applyApiKeyChanges(ctx context.Context, key *domain.ApiKey, cmd UpdateApiKey) error {
	if cmd.DisplayName != nil {
		if err := key.SetDisplayName(*cmd.DisplayName); err != nil {
			return err
		}
	}
	if cmd.Description != nil {
		if err := key.SetDescription(cmd.Description.Value); err != nil {
			return err
		}
	}
	if cmd.ExpiresOn != nil {
		if err := key.SetExpiresOn(*cmd.ExpiresOn); err != nil {
			return err
		}
	}
	for attr, value := range cmd.CustomAttributes {
		if value == nil {
			if err := key.RemoveCustomAttribute(attr); err != nil {
				return err
			}
			continue
		}
		if err := key.SetCustomAttribute(attr, *value); err != nil {
			return err
		}
	}
	for roleID, grant := range cmd.Roles {
		if !grant {
			if err := key.RemoveRole(roleID); err != nil {
				return err
			}
			continue
		}
		if err := p.ensureRoleExists(ctx, key.TenantID(), roleID); err != nil {
			return err
		}
		if err := key.AddRole(roleID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) handleAuthenticateApiKey(ctx context.Context, cmd AuthenticateApiKey) (cqrs.CommandResult, error) {
	key := domain.NewApiKey(cmd.ID)
	if err := p.load(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := key.Authenticate(cmd.Secret.Raw(), p.clock()); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.apiKeyResult(ctx, key.AggregateID(), key.Version(), "")
}

func (p *Portal) handleDeleteApiKey(ctx context.Context, cmd DeleteApiKey) (cqrs.CommandResult, error) {
	key := domain.NewApiKey(cmd.ID)
	if err := p.load(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := key.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, key); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(key.AggregateID(), key.Version()), nil
}

func (p *Portal) apiKeyResult(ctx context.Context, id string, version int64, secret string) (cqrs.CommandResult, error) {
	view, err := p.stores.ApiKeys.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, &ApiKeyResult{
		ApiKey: view,
		Secret: secret,
	}), nil
}

// ReadApiKey returns an API key view by ID, or nil when none exists.
func (p *Portal) ReadApiKey(ctx context.Context, id string) (*readmodel.ApiKeyView, error) {
	view, err := p.stores.ApiKeys.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchApiKeys lists API keys matching the payload within the tenant scope.
func (p *Portal) SearchApiKeys(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.ApiKeyView], error) {
	return search(ctx, p.stores.ApiKeys, payload, "DisplayName", true)
}
