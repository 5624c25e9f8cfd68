package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeTemplate is the stream category for message templates.
const AggregateTypeTemplate = "Template"

// TemplateContent is the body of a message template.
type TemplateContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTemplateContent validates a template body. Type must be text/plain or
// text/html.
func NewTemplateContent(contentType, text string) (TemplateContent, error) {
	switch contentType {
	case "text/plain", "text/html":
	default:
		return TemplateContent{}, NewValidationError("contentType", "must be text/plain or text/html")
	}
	if text == "" {
		return TemplateContent{}, NewValidationError("contents", "are required")
	}
	return TemplateContent{Type: contentType, Text: text}, nil
}

// TemplateCreated is raised when a message template is created. UniqueKey is
// the stable key notifications are sent by (e.g., "PasswordRecovery").
type TemplateCreated struct {
	TenantID  *string         `json:"tenantId,omitempty"`
	UniqueKey string          `json:"uniqueKey"`
	Subject   string          `json:"subject"`
	Content   TemplateContent `json:"content"`
}

// TemplateUpdated coalesces template changes.
type TemplateUpdated struct {
	UniqueKey   *string          `json:"uniqueKey,omitempty"`
	DisplayName *Change[string]  `json:"displayName,omitempty"`
	Description *Change[string]  `json:"description,omitempty"`
	Subject     *string          `json:"subject,omitempty"`
	Content     *TemplateContent `json:"content,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e TemplateUpdated) IsEmpty() bool {
	return e.UniqueKey == nil && e.DisplayName == nil && e.Description == nil &&
		e.Subject == nil && e.Content == nil
}

// TemplateDeleted marks the template as deleted.
type TemplateDeleted struct{}

type templateState struct {
	tenantID    *string
	uniqueKey   string
	displayName *string
	description *string
	subject     string
	content     TemplateContent

	deleted bool
}

func (s templateState) clone() templateState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.displayName = copyPtr(s.displayName)
	c.description = copyPtr(s.description)
	return c
}

// Template is a renderable message body within a tenant.
type Template struct {
	eventstore.AggregateBase

	state   templateState
	pending *TemplateUpdated
	base    templateState
}

// NewTemplate constructs an empty Template ready for replay.
func NewTemplate(id string) *Template {
	return &Template{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeTemplate),
	}
}

// CreateTemplate raises the creation event.
func CreateTemplate(id string, tenantID *string, uniqueKey, subject string, content TemplateContent) *Template {
	t := NewTemplate(id)
	e := TemplateCreated{
		TenantID:  copyPtr(tenantID),
		UniqueKey: uniqueKey,
		Subject:   subject,
		Content:   content,
	}
	t.Raise(e)
	t.applyCreated(e)
	return t
}

func (t *Template) TenantID() *string        { return t.state.tenantID }
func (t *Template) UniqueKey() string        { return t.state.uniqueKey }
func (t *Template) DisplayName() *string     { return t.state.displayName }
func (t *Template) Description() *string     { return t.state.description }
func (t *Template) Subject() string          { return t.state.subject }
func (t *Template) Content() TemplateContent { return t.state.content }
func (t *Template) IsDeleted() bool          { return t.state.deleted }

// SetUniqueKey stages a key change.
func (t *Template) SetUniqueKey(key string) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if key == t.state.uniqueKey {
		return nil
	}
	p := t.pendingUpdate()
	t.state.uniqueKey = key
	if key == t.base.uniqueKey {
		p.UniqueKey = nil
	} else {
		p.UniqueKey = &key
	}
	return nil
}

// SetDisplayName stages a display name change; nil clears it.
func (t *Template) SetDisplayName(name *string) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(name, t.state.displayName) {
		return nil
	}
	p := t.pendingUpdate()
	t.state.displayName = copyPtr(name)
	if ptrEqual(name, t.base.displayName) {
		p.DisplayName = nil
	} else {
		p.DisplayName = changeOf(name)
	}
	return nil
}

// SetDescription stages a description change; nil clears it.
func (t *Template) SetDescription(description *string) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(description, t.state.description) {
		return nil
	}
	p := t.pendingUpdate()
	t.state.description = copyPtr(description)
	if ptrEqual(description, t.base.description) {
		p.Description = nil
	} else {
		p.Description = changeOf(description)
	}
	return nil
}

// SetSubject stages a subject change.
func (t *Template) SetSubject(subject string) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if subject == "" {
		return NewValidationError("subject", "is required")
	}
	if subject == t.state.subject {
		return nil
	}
	p := t.pendingUpdate()
	t.state.subject = subject
	if subject == t.base.subject {
		p.Subject = nil
	} else {
		p.Subject = &subject
	}
	return nil
}

// SetContent stages a content change.
func (t *Template) SetContent(content TemplateContent) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if content == t.state.content {
		return nil
	}
	p := t.pendingUpdate()
	t.state.content = content
	if content == t.base.content {
		p.Content = nil
	} else {
		p.Content = &content
	}
	return nil
}

// Delete marks the template as deleted. Further mutations fail.
func (t *Template) Delete() error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	t.flushPending()
	e := TemplateDeleted{}
	t.Raise(e)
	t.state.deleted = true
	return nil
}

func (t *Template) ensureActive() error {
	if t.state.deleted {
		return NewInvalidStateError(AggregateTypeTemplate, t.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (t *Template) UncommittedEvents() []any {
	t.flushPending()
	return t.AggregateBase.UncommittedEvents()
}

func (t *Template) pendingUpdate() *TemplateUpdated {
	if t.pending == nil {
		t.pending = &TemplateUpdated{}
		t.base = t.state.clone()
	}
	return t.pending
}

func (t *Template) flushPending() {
	if t.pending == nil {
		return
	}
	if !t.pending.IsEmpty() {
		t.Raise(*t.pending)
	}
	t.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (t *Template) ApplyEvent(event any) error {
	switch e := event.(type) {
	case TemplateCreated:
		t.applyCreated(e)
	case TemplateUpdated:
		t.applyUpdated(e)
	case TemplateDeleted:
		t.state.deleted = true
	default:
		return fmt.Errorf("domain: template cannot apply event %T", event)
	}
	return nil
}

func (t *Template) applyCreated(e TemplateCreated) {
	t.state.tenantID = copyPtr(e.TenantID)
	t.state.uniqueKey = e.UniqueKey
	t.state.subject = e.Subject
	t.state.content = e.Content
}

func (t *Template) applyUpdated(e TemplateUpdated) {
	if e.UniqueKey != nil {
		t.state.uniqueKey = *e.UniqueKey
	}
	t.state.displayName = e.DisplayName.Apply(t.state.displayName)
	t.state.description = e.Description.Apply(t.state.description)
	if e.Subject != nil {
		t.state.subject = *e.Subject
	}
	if e.Content != nil {
		t.state.content = *e.Content
	}
}
