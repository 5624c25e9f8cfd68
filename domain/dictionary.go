package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeDictionary is the stream category for dictionaries.
const AggregateTypeDictionary = "Dictionary"

// DictionaryCreated is raised when a localization dictionary is created for a
// locale. One dictionary per (tenant, locale).
type DictionaryCreated struct {
	TenantID *string `json:"tenantId,omitempty"`
	Locale   Locale  `json:"locale"`
}

// DictionaryUpdated coalesces entry changes; a nil value removes the key.
type DictionaryUpdated struct {
	Locale  *Locale            `json:"locale,omitempty"`
	Entries map[string]*string `json:"entries,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e DictionaryUpdated) IsEmpty() bool {
	return e.Locale == nil && len(e.Entries) == 0
}

// DictionaryDeleted marks the dictionary as deleted.
type DictionaryDeleted struct{}

type dictionaryState struct {
	tenantID *string
	locale   Locale
	entries  map[string]string

	deleted bool
}

func (s dictionaryState) clone() dictionaryState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.entries = copyMap(s.entries)
	return c
}

// Dictionary holds localized message strings for one locale of a tenant.
type Dictionary struct {
	eventstore.AggregateBase

	state   dictionaryState
	pending *DictionaryUpdated
	base    dictionaryState
}

// NewDictionary constructs an empty Dictionary ready for replay.
func NewDictionary(id string) *Dictionary {
	return &Dictionary{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeDictionary),
	}
}

// CreateDictionary raises the creation event.
func CreateDictionary(id string, tenantID *string, locale Locale) *Dictionary {
	d := NewDictionary(id)
	e := DictionaryCreated{TenantID: copyPtr(tenantID), Locale: locale}
	d.Raise(e)
	d.applyCreated(e)
	return d
}

func (d *Dictionary) TenantID() *string { return d.state.tenantID }
func (d *Dictionary) Locale() Locale    { return d.state.locale }
func (d *Dictionary) IsDeleted() bool   { return d.state.deleted }

// Entries returns a copy of the dictionary entries.
func (d *Dictionary) Entries() map[string]string {
	return copyMap(d.state.entries)
}

// Entry returns the value for a key, if present.
func (d *Dictionary) Entry(key string) (string, bool) {
	v, ok := d.state.entries[key]
	return v, ok
}

// SetLocale stages a locale change.
func (d *Dictionary) SetLocale(locale Locale) error {
	if err := d.ensureActive(); err != nil {
		return err
	}
	if locale == d.state.locale {
		return nil
	}
	p := d.pendingUpdate()
	d.state.locale = locale
	if locale == d.base.locale {
		p.Locale = nil
	} else {
		p.Locale = &locale
	}
	return nil
}

// SetEntry stages an entry value.
func (d *Dictionary) SetEntry(key, value string) error {
	if err := d.ensureActive(); err != nil {
		return err
	}
	if key == "" {
		return NewValidationError("key", "is required")
	}
	if current, ok := d.state.entries[key]; ok && current == value {
		return nil
	}
	p := d.pendingUpdate()
	if d.state.entries == nil {
		d.state.entries = make(map[string]string)
	}
	d.state.entries[key] = value
	if base, ok := d.base.entries[key]; ok && base == value {
		delete(p.Entries, key)
	} else {
		if p.Entries == nil {
			p.Entries = make(map[string]*string)
		}
		v := value
		p.Entries[key] = &v
	}
	return nil
}

// RemoveEntry stages removal of an entry.
func (d *Dictionary) RemoveEntry(key string) error {
	if err := d.ensureActive(); err != nil {
		return err
	}
	if _, ok := d.state.entries[key]; !ok {
		return nil
	}
	p := d.pendingUpdate()
	delete(d.state.entries, key)
	if _, ok := d.base.entries[key]; !ok {
		delete(p.Entries, key)
	} else {
		if p.Entries == nil {
			p.Entries = make(map[string]*string)
		}
		p.Entries[key] = nil
	}
	return nil
}

// Delete marks the dictionary as deleted. Further mutations fail.
func (d *Dictionary) Delete() error {
	if err := d.ensureActive(); err != nil {
		return err
	}
	d.flushPending()
	e := DictionaryDeleted{}
	d.Raise(e)
	d.state.deleted = true
	return nil
}

func (d *Dictionary) ensureActive() error {
	if d.state.deleted {
		return NewInvalidStateError(AggregateTypeDictionary, d.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (d *Dictionary) UncommittedEvents() []any {
	d.flushPending()
	return d.AggregateBase.UncommittedEvents()
}

func (d *Dictionary) pendingUpdate() *DictionaryUpdated {
	if d.pending == nil {
		d.pending = &DictionaryUpdated{}
		d.base = d.state.clone()
	}
	return d.pending
}

func (d *Dictionary) flushPending() {
	if d.pending == nil {
		return
	}
	if !d.pending.IsEmpty() {
		d.Raise(*d.pending)
	}
	d.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (d *Dictionary) ApplyEvent(event any) error {
	switch e := event.(type) {
	case DictionaryCreated:
		d.applyCreated(e)
	case DictionaryUpdated:
		d.applyUpdated(e)
	case DictionaryDeleted:
		d.state.deleted = true
	default:
		return fmt.Errorf("domain: dictionary cannot apply event %T", event)
	}
	return nil
}

func (d *Dictionary) applyCreated(e DictionaryCreated) {
	d.state.tenantID = copyPtr(e.TenantID)
	d.state.locale = e.Locale
}

func (d *Dictionary) applyUpdated(e DictionaryUpdated) {
	if e.Locale != nil {
		d.state.locale = *e.Locale
	}
	for key, value := range e.Entries {
		if value == nil {
			delete(d.state.entries, key)
			continue
		}
		if d.state.entries == nil {
			d.state.entries = make(map[string]string)
		}
		d.state.entries[key] = *value
	}
}
