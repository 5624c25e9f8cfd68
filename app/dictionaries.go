package app

import (
	"context"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// CreateDictionary creates a localization dictionary. A tenant can hold at
// most one dictionary per locale.
type CreateDictionary struct {
	ID       string `json:"id,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	Locale   string `json:"locale" validate:"required"`
}

func (CreateDictionary) CommandType() string   { return "CreateDictionary" }
func (c CreateDictionary) AggregateID() string { return c.ID }

func (c CreateDictionary) Validate() error {
	_, err := domain.NewLocale(c.Locale)
	return err
}

// UpdateDictionary changes the locale and stages entry writes and removals.
// Entries maps a key to a value, or nil to remove the key.
type UpdateDictionary struct {
	ID string `json:"id" validate:"required"`

	Locale  *string            `json:"locale,omitempty"`
	Entries map[string]*string `json:"entries,omitempty"`
}

func (UpdateDictionary) CommandType() string   { return "UpdateDictionary" }
func (c UpdateDictionary) AggregateID() string { return c.ID }

func (c UpdateDictionary) Validate() error {
	if c.Locale != nil {
		if _, err := domain.NewLocale(*c.Locale); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDictionary removes a dictionary. Terminal.
type DeleteDictionary struct {
	ID string `json:"id" validate:"required"`
}

func (DeleteDictionary) CommandType() string   { return "DeleteDictionary" }
func (c DeleteDictionary) AggregateID() string { return c.ID }
func (DeleteDictionary) Validate() error       { return nil }

func (p *Portal) registerDictionaryHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleCreateDictionary),
		cqrs.NewTypedHandler(p.handleUpdateDictionary),
		cqrs.NewTypedHandler(p.handleDeleteDictionary),
	)
}

func (p *Portal) handleCreateDictionary(ctx context.Context, cmd CreateDictionary) (cqrs.CommandResult, error) {
	locale, err := domain.NewLocale(cmd.Locale)
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
	if err := p.ensureDictionaryLocaleAvailable(ctx, tenantID, locale, ""); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	dictionary := domain.CreateDictionary(id, tenantID, locale)

	if err := p.save(ctx, dictionary); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.dictionaryResult(ctx, dictionary.AggregateID(), dictionary.Version())
}

func (p *Portal) handleUpdateDictionary(ctx context.Context, cmd UpdateDictionary) (cqrs.CommandResult, error) {
	dictionary := domain.NewDictionary(cmd.ID)
	if err := p.load(ctx, dictionary); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if cmd.Locale != nil {
		locale, err := domain.NewLocale(*cmd.Locale)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		if locale != dictionary.Locale() {
			if err := p.ensureDictionaryLocaleAvailable(ctx, dictionary.TenantID(), locale, cmd.ID); err != nil {
				return cqrs.NewErrorResult(err), err
			}
			if err := dictionary.SetLocale(locale); err != nil {
				return cqrs.NewErrorResult(err), err
			}
		}
	}
	for key, value := range cmd.Entries {
		var err error
		if value == nil {
			err = dictionary.RemoveEntry(key)
		} else {
			err = dictionary.SetEntry(key, *value)
		}
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
	}

	if err := p.save(ctx, dictionary); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.dictionaryResult(ctx, dictionary.AggregateID(), dictionary.Version())
}

func (p *Portal) handleDeleteDictionary(ctx context.Context, cmd DeleteDictionary) (cqrs.CommandResult, error) {
	dictionary := domain.NewDictionary(cmd.ID)
	if err := p.load(ctx, dictionary); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := dictionary.Delete(); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, dictionary); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResult(dictionary.AggregateID(), dictionary.Version()), nil
}

func (p *Portal) ensureDictionaryLocaleAvailable(ctx context.Context, tenantID *string, locale domain.Locale, selfID string) error {
	query := readmodel.NewQuery().Where("Locale", readmodel.FilterOpEq, locale)
	if tenantID == nil {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, *tenantID)
	}
	existing, err := p.stores.Dictionaries.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return domain.NewValidationError("locale", "already has a dictionary")
	}
	return nil
}

func (p *Portal) dictionaryResult(ctx context.Context, id string, version int64) (cqrs.CommandResult, error) {
	view, err := p.stores.Dictionaries.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, view), nil
}

// ReadDictionary returns a dictionary view by ID, or nil when none exists.
func (p *Portal) ReadDictionary(ctx context.Context, id string) (*readmodel.DictionaryView, error) {
	view, err := p.stores.Dictionaries.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// ReadDictionaryByLocale returns the dictionary of a tenant for a locale, or
// nil when none exists.
func (p *Portal) ReadDictionaryByLocale(ctx context.Context, tenantID, locale string) (*readmodel.DictionaryView, error) {
	parsed, err := domain.NewLocale(locale)
	if err != nil {
		return nil, err
	}
	query := readmodel.NewQuery().Where("Locale", readmodel.FilterOpEq, parsed)
	if tenantID == "" {
		query = query.Where("TenantID", readmodel.FilterOpIsNull, nil)
	} else {
		query = query.Where("TenantID", readmodel.FilterOpEq, tenantID)
	}
	view, err := p.stores.Dictionaries.FindOne(ctx, query.Build())
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchDictionaries lists dictionaries matching the payload within the
// tenant scope.
func (p *Portal) SearchDictionaries(ctx context.Context, payload SearchPayload) (SearchResults[readmodel.DictionaryView], error) {
	return search(ctx, p.stores.Dictionaries, payload, "Locale", true)
}
