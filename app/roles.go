package app

import (
	"context"
	"strings"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateRole creates a role. The unique name must not collide with another
// role of the same tenant, compared case-insensitively.
type CreateRole struct {
	ID         string `json:"id,omitempty"`
	TenantID   string `json:"tenantId,omitempty"`
	UniqueName string `json:"uniqueName" validate:"required"`
}

func (CreateRole) CommandType() string   { return "CreateRole" }
func (c CreateRole) AggregateID() string { return c.ID }
func (CreateRole) Validate() error       { return nil }

// UpdateRole changes role properties. Nil slots are untouched; a Change with
// a nil value clears the field. All changes coalesce into one event.
type UpdateRole struct {
	ID string `json:"id" validate:"required"`

	UniqueName  *string                `json:"uniqueName,omitempty"`
	DisplayName *domain.Change[string] `json:"displayName,omitempty"`
	Description *domain.Change[string] `json:"description,omitempty"`

	// CustomAttributes maps attribute keys to a value, or nil to remove.
	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`
}

func (UpdateRole) CommandType() string   { return "UpdateRole" }
func (c UpdateRole) AggregateID() string { return c.ID }
func (UpdateRole) Validate() error       { return nil }

// DeleteRole removes a role; projections strip it from users and API keys
// that embed it. Terminal.
type DeleteRole struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteRole) CommandType() string   { return "DeleteRole" }
func (c DeleteRole) AggregateID() string { return c.ID }
func (DeleteRole) Validate() error       { return nil }

func (p *Portal) registerRoleHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateRole),
		cqrs.NewTypedHandler(p.handleUpdateRole),
		cqrs.NewTypedHandler(p.handleDeleteRole),
	)
}

func (p *Portal) handleCreateRole(ctx context.Context, cmd CreateRole) (cqrs.CommandResult, error) {
	tenantID := tenantOf(cmd.TenantID)
	if tenantID != nil {
		if _, err := p.stores.Realms.Get(ctx, *tenantID); err != nil {
			if viewNotFound(err) {
				err = domain.NewNotFoundError(domain.AggregateTypeRealm, *tenantID)
			}
			return cqrs.NewErrorResult(err), err
		}
	}
	if err := p.ensureRoleNameAvailable(ctx, tenantID, cmd.UniqueName, ""); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	role := domain.CreateRole(id, tenantID, cmd.UniqueName)

	if err := p.save(ctx, role); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.roleResult(ctx, role.AggregateID(), role.Version())
}

func (p *Portal) handleUpdateRole(ctx context.Context, cmd UpdateRole) (cqrs.CommandResult, error) {
	role := domain.NewRole(cmd.ID)
	if err := p.load(ctx, role); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.UniqueName != nil && *cmd.UniqueName != role.UniqueName() {
		if err := p.ensureRoleNameAvailable(ctx, role.TenantID(), *cmd.UniqueName, cmd.ID); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := role.SetUniqueName(*cmd.UniqueName); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.DisplayName != nil {
		if err := role.SetDisplayName(cmd.DisplayName.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.Description != nil {
		if err := role.SetDescription(cmd.Description.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	for key, value := range cmd.CustomAttributes {
		var err error
		if value == nil {
			err = role.RemoveCustomAttribute(key)
		} else {
			err = role.SetCustomAttribute(key, *value)
		}
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}

	if err := p.save(ctx, role); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.roleResult(ctx, role.AggregateID(), role.Version())
}

func (p *Portal) handleDeleteRole(ctx context.Context, cmd DeleteRole) (cqrs.CommandResult, error) {
	role := domain.NewRole(cmd.ID)
	if err := p.load(ctx, role); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := role.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, role); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(role.AggregateID(), role.Version()), nil
}

func (p *Portal) ensureRoleNameAvailable(ctx context.Context, tenantID *string, uniqueName, selfID string) error {
	query := readmodel.NewQuery().
		Where("NormalizedName", readmodel.FilterOpEq, strings.ToUpper(uniqueName))
	if tenantID == nil {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, *tenantID)
	}
	existing, err := p.stores.Roles.FindOne(ctx, query.Build())
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

func (p *Portal) roleResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Roles.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadRole returns a role view by ID, or nil when none exists.
func (p *Portal) ReadRole(ctx context.Context, id string) (*readmodel.RoleView, error) {
	view, err := p.stores.Roles.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchRoles lists roles matching the payload within the tenant scope.
func (p *Portal) SearchRoles(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.RoleView], error) {
	return search(ctx, p.stores.Roles, payload, "NormalizedName", true)
}
