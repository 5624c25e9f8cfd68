package app

import (
	"context"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateSender registers a message sender. Email providers require an email
// address, SMS providers a phone number.
type CreateSender struct {
	ID           string `json:"id,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
	Provider     string `json:"provider" validate:"required"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

func (CreateSender) CommandType() string   { return "CreateSender" }
func (c CreateSender) AggregateID() string { return c.ID }

func (c CreateSender) Validate() error {
	provider, err := domain.NewSenderProvider(c.Provider)
	if err != nil {
		return err
	}
	if provider.IsPhone() {
		if c.PhoneNumber == "" {
			return domain.NewValidationError("phoneNumber", "is required")
		}
	} else if c.EmailAddress == "" {
		return domain.NewValidationError("emailAddress", "is required")
	}
	return nil
}

// UpdateSender changes sender properties. Settings maps provider setting
// keys to a value, or nil to remove the key.
type UpdateSender struct {
	ID string `json:"id" validate:"required"`

	EmailAddress *string                `json:"emailAddress,omitempty"`
	PhoneNumber  *string                `json:"phoneNumber,omitempty"`
	DisplayName  *domain.Change[string] `json:"displayName,omitempty"`
	Description  *domain.Change[string] `json:"description,omitempty"`

	Settings map[string]*string `json:"settings,omitempty"`
}

func (UpdateSender) CommandType() string   { return "UpdateSender" }
func (c UpdateSender) AggregateID() string { return c.ID }
func (UpdateSender) Validate() error       { return nil }

// SetDefaultSender marks a sender as the tenant default, unsetting the
// previous default of the same tenant.
type SetDefaultSender struct {
	ID string `json:"id" validate:"required"`
}

func (SetDefaultSender) CommandType() string   { return "SetDefaultSender" }
func (c SetDefaultSender) AggregateID() string { return c.ID }
func (SetDefaultSender) Validate() error       { return nil }

// DeleteSender removes a sender. Terminal.
type DeleteSender struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteSender) CommandType() string   { return "DeleteSender" }
func (c DeleteSender) AggregateID() string { return c.ID }
func (DeleteSender) Validate() error       { return nil }

func (p *Portal) registerSenderHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateSender),
		cqrs.NewTypedHandler(p.handleUpdateSender),
		cqrs.NewTypedHandler(p.handleSetDefaultSender),
		cqrs.NewTypedHandler(p.handleDeleteSender),
	)
}

func (p *Portal) handleCreateSender(ctx context.Context, cmd CreateSender) (cqrs.CommandResult, error) {
	provider, err := domain.NewSenderProvider(cmd.Provider)
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

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	var sender *domain.Sender
	if provider.IsPhone() {
		sender, err = domain.CreateSmsSender(id, tenantID, provider, cmd.PhoneNumber)
	} else {
		sender, err = domain.CreateEmailSender(id, tenantID, provider, cmd.EmailAddress)
	}
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.senderResult(ctx, sender.AggregateID(), sender.Version())
}

func (p *Portal) handleUpdateSender(ctx context.Context, cmd UpdateSender) (cqrs.CommandResult, error) {
	sender := domain.NewSender(cmd.ID)
	if err := p.load(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.EmailAddress != nil {
		if err := sender.SetEmailAddress(*cmd.EmailAddress); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.PhoneNumber != nil {
		if err := sender.SetPhoneNumber(*cmd.PhoneNumber); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.DisplayName != nil {
		if err := sender.SetDisplayName(cmd.DisplayName.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	if cmd.Description != nil {
		if err := sender.SetDescription(cmd.Description.Value); err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}
	for key, value := range cmd.Settings {
		var err error
		if value == nil {
			err = sender.RemoveSetting(key)
		} else {
			err = sender.SetSetting(key, *value)
		}
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}

	if err := p.save(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.senderResult(ctx, sender.AggregateID(), sender.Version())
}

func (p *Portal) handleSetDefaultSender(ctx context.Context, cmd SetDefaultSender) (cqrs.CommandResult, error) {
	sender := domain.NewSender(cmd.ID)
	if err := p.load(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	// Unset the current default of the same tenant first, so at most one
	// sender is default at any point.
	if err := p.unsetDefaultSender(ctx, sender.TenantID(), cmd.ID); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := sender.SetDefault(true); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := p.save(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.senderResult(ctx, sender.AggregateID(), sender.Version())
}

func (p *Portal) unsetDefaultSender(ctx context.Context, tenantID *string, selfID string) error {
	query := readmodel.NewQuery().Where("IsDefault", readmodel.FilterOpEq, true)
	if tenantID == nil {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, *tenantID)
	}
	views, err := p.stores.Senders.Find(ctx, query.Build())
	if err != nil {
		return err
	}
	for _, view := range views {
		if view.ID == selfID {
			continue
		}
		current := domain.NewSender(view.ID)
		if err := p.load(ctx, current); err != nil {
			return err
		}
		if err := current.SetDefault(false); err != nil {
			return err
		}
		if err := p.save(ctx, current); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) handleDeleteSender(ctx context.Context, cmd DeleteSender) (cqrs.CommandResult, error) {
	sender := domain.NewSender(cmd.ID)
	if err := p.load(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := sender.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, sender); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(sender.AggregateID(), sender.Version()), nil
}

func (p *Portal) senderResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Senders.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadSender returns a sender view by ID, or nil when none exists.
func (p *Portal) ReadSender(ctx context.Context, id string) (*readmodel.SenderView, error) {
	view, err := p.stores.Senders.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// ReadDefaultSender returns the default sender of a tenant, or nil when none
// is marked default.
func (p *Portal) ReadDefaultSender(ctx context.Context, tenantID string) (*readmodel.SenderView, error) {
	query := readmodel.NewQuery().Where("IsDefault", readmodel.FilterOpEq, true)
	if tenantID == "" {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, tenantID)
	}
	view, err := p.stores.Senders.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchSenders lists senders matching the payload within the tenant scope.
func (p *Portal) SearchSenders(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.SenderView], error) {
	return search(ctx, p.stores.Senders, payload, "DisplayName", true)
}
