package app

import (
	"context"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateTemplate creates a message template. The unique key must not collide
// with another template of the same tenant.
type CreateTemplate struct {
	ID          string `json:"id,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
	UniqueKey   string `json:"uniqueKey" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	ContentText string `json:"contentText" validate:"required"`
}

func (CreateTemplate) CommandType() string   { return "CreateTemplate" }
func (c CreateTemplate) AggregateID() string { return c.ID }

func (c CreateTemplate) Validate() error {
	_, err := domain.NewTemplateContent(c.ContentType, c.ContentText)
	return err
}

// UpdateTemplate changes template properties. Content requires both type and
// text when present.
type UpdateTemplate struct {
	ID string `json:"id" validate:"required"`

	UniqueKey   *string                `json:"uniqueKey,omitempty"`
	DisplayName *domain.Change[string] `json:"displayName,omitempty"`
	Description *domain.Change[string] `json:"description,omitempty"`
	Subject     *string                `json:"subject,omitempty"`
	ContentType *string                `json:"contentType,omitempty"`
	ContentText *string                `json:"contentText,omitempty"`
}

func (UpdateTemplate) CommandType() string   { return "UpdateTemplate" }
func (c UpdateTemplate) AggregateID() string { return c.ID }

func (c UpdateTemplate) Validate() error {
	if (c.ContentType == nil) != (c.ContentText == nil) {
		return domain.NewValidationError("content", "requires both contentType and contentText")
	}
	return nil
}

// DeleteTemplate removes a template. Terminal.
type DeleteTemplate struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteTemplate) CommandType() string   { return "DeleteTemplate" }
func (c DeleteTemplate) AggregateID() string { return c.ID }
func (DeleteTemplate) Validate() error       { return nil }

func (p *Portal) registerTemplateHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateTemplate),
		cqrs.NewTypedHandler(p.handleUpdateTemplate),
		cqrs.NewTypedHandler(p.handleDeleteTemplate),
	)
}

func (p *Portal) handleCreateTemplate(ctx context.Context, cmd CreateTemplate) (cqrs.CommandResult, error) {
	content, err := domain.NewTemplateContent(cmd.ContentType, cmd.ContentText)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}

	tenantID := tenantOf(cmd.TenantID)
	if tenantID != nil {
		if _, err := p.stores.Realms.Get(ctx, *tenantID); err != nil {
			if viewNotFound(err) {
				err = domain.NewNotFoundError(domain.AggregateTypeRealm, *tenantID)
			}
			return cqrs.NewErrorResult(err), err
		}
	}
	if err := p.ensureTemplateKeyAvailable(ctx, tenantID, cmd.UniqueKey, ""); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	template := domain.CreateTemplate(id, tenantID, cmd.UniqueKey, cmd.Subject, content)

	if err := p.save(ctx, template); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.templateResult(ctx, template.AggregateID(), template.Version())
}

func (p *Portal) handleUpdateTemplate(ctx context.Context, cmd UpdateTemplate) (cqrs.CommandResult, error) {
	template := domain.NewTemplate(cmd.ID)
	if err := p.load(ctx, template); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.UniqueKey != nil && *cmd.UniqueKey != template.UniqueKey() {
		if err := p.ensureTemplateKeyAvailable(ctx, template.TenantID(), *cmd.UniqueKey, cmd.ID); err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := template.SetUniqueKey(*cmd.UniqueKey); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.DisplayName != nil {
		if err := template.SetDisplayName(cmd.DisplayName.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.Description != nil {
		if err := template.SetDescription(cmd.Description.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.Subject != nil {
		if err := template.SetSubject(*cmd.Subject); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.ContentType != nil && cmd.ContentText != nil {
		content, err := domain.NewTemplateContent(*cmd.ContentType, *cmd.ContentText)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if err := template.SetContent(content); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}

	if err := p.save(ctx, template); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.templateResult(ctx, template.AggregateID(), template.Version())
}

func (p *Portal) handleDeleteTemplate(ctx context.Context, cmd DeleteTemplate) (cqrs.CommandResult, error) {
	template := domain.NewTemplate(cmd.ID)
	if err := p.load(ctx, template); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := template.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, template); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(template.AggregateID(), template.Version()), nil
}

func (p *Portal) ensureTemplateKeyAvailable(ctx context.Context, tenantID *string, uniqueKey, selfID string) error {
	query := readmodel.NewQuery().Where("UniqueKey", readmodel.FilterOpEq, uniqueKey)
	if tenantID == nil {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, *tenantID)
	}
	existing, err := p.stores.Templates.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return domain.NewValidationError("uniqueKey", "is already used")
	}
	return nil
}

func (p *Portal) templateResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Templates.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadTemplate returns a template view by ID, or nil when none exists.
func (p *Portal) ReadTemplate(ctx context.Context, id string) (*readmodel.TemplateView, error) {
	view, err := p.stores.Templates.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// ReadTemplateByKey returns a template view by unique key within a tenant,
// or nil when none matches.
func (p *Portal) ReadTemplateByKey(ctx context.Context, tenantID, uniqueKey string) (*readmodel.TemplateView, error) {
	query := readmodel.NewQuery().Where("UniqueKey", readmodel.FilterOpEq, uniqueKey)
	if tenantID == "" {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, tenantID)
	}
	view, err := p.stores.Templates.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchTemplates lists templates matching the payload within the tenant
// scope.
func (p *Portal) SearchTemplates(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.TemplateView], error) {
	return search(ctx, p.stores.Templates, payload, "UniqueKey", true)
}
