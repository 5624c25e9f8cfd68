package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeRole is the stream category for roles.
const AggregateTypeRole = "Role"

// RoleCreated is raised when a role is created.
type RoleCreated struct {
	TenantID   *string `json:"tenantId,omitempty"`
	UniqueName string  `json:"uniqueName"`
}

// RoleUpdated coalesces role property changes.
type RoleUpdated struct {
	UniqueName  *string         `json:"uniqueName,omitempty"`
	DisplayName *Change[string] `json:"displayName,omitempty"`
	Description *Change[string] `json:"description,omitempty"`

	CustomAttributes map[string]*string `json:"customAttributes,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e RoleUpdated) IsEmpty() bool {
	return e.UniqueName == nil && e.DisplayName == nil && e.Description == nil &&
		len(e.CustomAttributes) == 0
}

// RoleDeleted marks the role as deleted.
type RoleDeleted struct{}

type roleState struct {
	tenantID    *string
	uniqueName  string
	displayName *string
	description *string

	customAttributes map[string]string

	deleted bool
}

func (s roleState) clone() roleState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.displayName = copyPtr(s.displayName)
	c.description = copyPtr(s.description)
	c.customAttributes = copyMap(s.customAttributes)
	return c
}

// Role names a grantable permission set within a tenant.
type Role struct {
	eventstore.AggregateBase

	state   roleState
	pending *RoleUpdated
	base    roleState
}

// NewRole constructs an empty Role ready for replay.
func NewRole(id string) *Role {
	return &Role{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeRole),
	}
}

// CreateRole raises the creation event.
func CreateRole(id string, tenantID *string, uniqueName string) *Role {
	r := NewRole(id)
	e := RoleCreated{TenantID: copyPtr(tenantID), UniqueName: uniqueName}
	r.Raise(e)
	r.applyCreated(e)
	return r
}

func (r *Role) TenantID() *string    { return r.state.tenantID }
func (r *Role) UniqueName() string   { return r.state.uniqueName }
func (r *Role) DisplayName() *string { return r.state.displayName }
func (r *Role) Description() *string { return r.state.description }
func (r *Role) IsDeleted() bool      { return r.state.deleted }

// CustomAttributes returns a copy of the custom attributes.
func (r *Role) CustomAttributes() map[string]string {
	return copyMap(r.state.customAttributes)
}

// SetUniqueName stages a unique name change.
func (r *Role) SetUniqueName(name string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if name == r.state.uniqueName {
		return nil
	}
	p := r.pendingUpdate()
	r.state.uniqueName = name
	if name == r.base.uniqueName {
		p.UniqueName = nil
	} else {
		p.UniqueName = &name
	}
	return nil
}

// SetDisplayName stages a display name change; nil clears it.
func (r *Role) SetDisplayName(name *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(name, r.state.displayName) {
		return nil
	}
	p := r.pendingUpdate()
	r.state.displayName = copyPtr(name)
	if ptrEqual(name, r.base.displayName) {
		p.DisplayName = nil
	} else {
		p.DisplayName = changeOf(name)
	}
	return nil
}

// SetDescription stages a description change; nil clears it.
func (r *Role) SetDescription(description *string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(description, r.state.description) {
		return nil
	}
	p := r.pendingUpdate()
	r.state.description = copyPtr(description)
	if ptrEqual(description, r.base.description) {
		p.Description = nil
	} else {
		p.Description = changeOf(description)
	}
	return nil
}

// SetCustomAttribute stages a custom attribute value.
func (r *Role) SetCustomAttribute(key, value string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if current, ok := r.state.customAttributes[key]; ok && current == value {
		return nil
	}
	p := r.pendingUpdate()
	if r.state.customAttributes == nil {
		r.state.customAttributes = make(map[string]string)
	}
	r.state.customAttributes[key] = value
	if base, ok := r.base.customAttributes[key]; ok && base == value {
		delete(p.CustomAttributes, key)
	} else {
		if p.CustomAttributes == nil {
			p.CustomAttributes = make(map[string]*string)
		}
		v := value
		p.CustomAttributes[key] = &v
	}
	return nil
}

// RemoveCustomAttribute stages removal of a custom attribute.
func (r *Role) RemoveCustomAttribute(key string) error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	if _, ok := r.state.customAttributes[key]; !ok {
		return nil
	}
	p := r.pendingUpdate()
	delete(r.state.customAttributes, key)
	if _, ok := r.base.customAttributes[key]; !ok {
		delete(p.CustomAttributes, key)
	} else {
		if p.CustomAttributes == nil {
			p.CustomAttributes = make(map[string]*string)
		}
		p.CustomAttributes[key] = nil
	}
	return nil
}

// Delete marks the role as deleted. Further mutations fail.
func (r *Role) Delete() error {
	if err := r.ensureActive(); err != nil {
		return err
	}
	r.flushPending()
	e := RoleDeleted{}
	r.Raise(e)
	r.state.deleted = true
	return nil
}

func (r *Role) ensureActive() error {
	if r.state.deleted {
		return NewInvalidStateError(AggregateTypeRole, r.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (r *Role) UncommittedEvents() []any {
	r.flushPending()
	return r.AggregateBase.UncommittedEvents()
}

func (r *Role) pendingUpdate() *RoleUpdated {
	if r.pending == nil {
		r.pending = &RoleUpdated{}
		r.base = r.state.clone()
	}
	return r.pending
}

func (r *Role) flushPending() {
	if r.pending == nil {
		return
	}
	if !r.pending.IsEmpty() {
		r.Raise(*r.pending)
	}
	r.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (r *Role) ApplyEvent(event any) error {
	switch e := event.(type) {
	case RoleCreated:
		r.applyCreated(e)
	case RoleUpdated:
		r.applyUpdated(e)
	case RoleDeleted:
		r.state.deleted = true
	default:
		return fmt.Errorf("domain: role cannot apply event %T", event)
	}
	return nil
}

func (r *Role) applyCreated(e RoleCreated) {
	r.state.tenantID = copyPtr(e.TenantID)
	r.state.uniqueName = e.UniqueName
}

func (r *Role) applyUpdated(e RoleUpdated) {
	if e.UniqueName != nil {
		r.state.uniqueName = *e.UniqueName
	}
	r.state.displayName = e.DisplayName.Apply(r.state.displayName)
	r.state.description = e.Description.Apply(r.state.description)
	for key, value := range e.CustomAttributes {
		if value == nil {
			delete(r.state.customAttributes, key)
			continue
		}
		if r.state.customAttributes == nil {
			r.state.customAttributes = make(map[string]string)
		}
		r.state.customAttributes[key] = *value
	}
}
