package app

import (
	"context"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/eventstore"
	"github.com/tessera-id/portal/readmodel"
)

// InitializeConfiguration creates the singleton portal configuration. It
// fails if the configuration already exists.
type InitializeConfiguration struct {
	DefaultLocale string `json:"defaultLocale"`
}

func (InitializeConfiguration) CommandType() string { return "InitializeConfiguration" }

func (c InitializeConfiguration) Validate() error {
	if c.DefaultLocale != "" {
		if _, err := domain.NewLocale(c.DefaultLocale); err != nil {
			return err
		}
	}
	return nil
}

// UpdateConfiguration changes configuration properties. Nil fields are left
// untouched; all changes in one command coalesce into a single event.
type UpdateConfiguration struct {
	DefaultLocale      *string                    `json:"defaultLocale,omitempty"`
	Secret             *cqrs.Secret               `json:"secret,omitempty"`
	UniqueNameSettings *domain.UniqueNameSettings `json:"uniqueNameSettings,omitempty"`
	PasswordSettings   *domain.PasswordSettings   `json:"passwordSettings,omitempty"`
}

func (UpdateConfiguration) CommandType() string { return "UpdateConfiguration" }

func (c UpdateConfiguration) Validate() error {
	if c.DefaultLocale != nil {
		if _, err := domain.NewLocale(*c.DefaultLocale); err != nil {
			return err
		}
	}
	if c.Secret != nil && !c.Secret.IsEmpty() {
		if _, err := domain.NewSecret(c.Secret.Raw()); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceConfiguration overwrites every configuration property at once. The
// caller supplies the version it based its edit on; a mismatch fails with a
// concurrency conflict instead of silently discarding the other write.
type ReplaceConfiguration struct {
	ExpectedVersion    int64                     `json:"expectedVersion" validate:"gt=0"`
	DefaultLocale      string                    `json:"defaultLocale" validate:"required"`
	UniqueNameSettings domain.UniqueNameSettings `json:"uniqueNameSettings"`
	PasswordSettings   domain.PasswordSettings   `json:"passwordSettings"`
}

func (ReplaceConfiguration) CommandType() string { return "ReplaceConfiguration" }

func (c ReplaceConfiguration) Validate() error {
	_, err := domain.NewLocale(c.DefaultLocale)
	return err
}

// RotateConfigurationSecret replaces the signing secret with a generated one.
type RotateConfigurationSecret struct{}

func (RotateConfigurationSecret) CommandType() string { return "RotateConfigurationSecret" }
func (RotateConfigurationSecret) Validate() error     { return nil }

func (p *Portal) registerConfigurationHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleInitializeConfiguration),
		cqrs.NewTypedHandler(p.handleReplaceConfiguration),
		cqrs.NewTypedHandler(p.handleUpdateConfiguration),
		cqrs.NewTypedHandler(p.handleRotateConfigurationSecret),
	)
}

func (p *Portal) handleInitializeConfiguration(ctx context.Context, cmd InitializeConfiguration) (cqrs.CommandResult, error) {
	locale := domain.DefaultLocale
	if cmd.DefaultLocale != "" {
		parsed, err := domain.NewLocale(cmd.DefaultLocale)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		locale = parsed
	}

	// A fresh aggregate saves with expected version 0; a second
	// initialization races into a concurrency conflict.
	config := domain.InitializeConfiguration(locale)
	if err := p.save(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.configurationResult(ctx, config.Version())
}

func (p *Portal) handleReplaceConfiguration(ctx context.Context, cmd ReplaceConfiguration) (cqrs.CommandResult, error) {
	config := domain.NewConfiguration()
	if err := p.load(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if config.Version() != cmd.ExpectedVersion {
		err := eventstore.NewConcurrencyError(
			eventstore.NewStreamID(config.AggregateType(), config.AggregateID()).String(),
			cmd.ExpectedVersion, config.Version())
		return cqrs.NewErrorResult(err), err
	}

	locale, err := domain.NewLocale(cmd.DefaultLocale)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	config.SetDefaultLocale(locale)
	config.SetUniqueNameSettings(cmd.UniqueNameSettings)
	config.SetPasswordSettings(cmd.PasswordSettings)

	if err := p.save(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.configurationResult(ctx, config.Version())
}

func (p *Portal) handleUpdateConfiguration(ctx context.Context, cmd UpdateConfiguration) (cqrs.CommandResult, error) {
	config := domain.NewConfiguration()
	if err := p.load(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.DefaultLocale != nil {
		locale, err := domain.NewLocale(*cmd.DefaultLocale)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		config.SetDefaultLocale(locale)
	}
	if cmd.Secret != nil {
		secret, err := domain.NewSecret(cmd.Secret.Raw())
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		config.SetSecret(secret)
	}
	if cmd.UniqueNameSettings != nil {
		config.SetUniqueNameSettings(*cmd.UniqueNameSettings)
	}
	if cmd.PasswordSettings != nil {
		config.SetPasswordSettings(*cmd.PasswordSettings)
	}

	if err := p.save(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.configurationResult(ctx, config.Version())
}

func (p *Portal) handleRotateConfigurationSecret(ctx context.Context, cmd RotateConfigurationSecret) (cqrs.CommandResult, error) {
	config := domain.NewConfiguration()
	if err := p.load(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	config.RotateSecret()

	if err := p.save(ctx, config); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.configurationResult(ctx, config.Version())
}

func (p *Portal) configurationResult(ctx context.Context, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Configurations.Get(ctx, domain.ConfigurationID)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(domain.ConfigurationID, version, view), nil
}

// ReadConfiguration returns the configuration view, or nil when the portal
// has not been initialized.
func (p *Portal) ReadConfiguration(ctx context.Context) (*readmodel.ConfigurationView, error) {
	view, err := p.stores.Configurations.Get(ctx, domain.ConfigurationID)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}
