package domain

import (
	"fmt"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeSender is the stream category for senders.
const AggregateTypeSender = "Sender"

// SenderProvider identifies the messaging provider behind a sender.
type SenderProvider string

const (
	ProviderSendGrid SenderProvider = "SendGrid"
	ProviderMailgun  SenderProvider = "Mailgun"
	ProviderTwilio   SenderProvider = "Twilio"
)

// NewSenderProvider validates a provider name.
func NewSenderProvider(s string) (SenderProvider, error) {
	switch SenderProvider(s) {
	case ProviderSendGrid, ProviderMailgun, ProviderTwilio:
		return SenderProvider(s), nil
	}
	return "", NewValidationError("provider", "is not a supported provider: "+s)
}

// IsPhone reports whether the provider sends SMS rather than email.
func (p SenderProvider) IsPhone() bool {
	return p == ProviderTwilio
}

// SenderCreated is raised when a message sender is registered. Email senders
// carry EmailAddress; SMS senders carry PhoneNumber.
type SenderCreated struct {
	TenantID     *string        `json:"tenantId,omitempty"`
	Provider     SenderProvider `json:"provider"`
	EmailAddress *string        `json:"emailAddress,omitempty"`
	PhoneNumber  *string        `json:"phoneNumber,omitempty"`
}

// SenderUpdated coalesces sender changes. Settings is the provider-specific
// key-value bag (API keys, domains); a nil value removes the key.
type SenderUpdated struct {
	EmailAddress *string         `json:"emailAddress,omitempty"`
	PhoneNumber  *string         `json:"phoneNumber,omitempty"`
	DisplayName  *Change[string] `json:"displayName,omitempty"`
	Description  *Change[string] `json:"description,omitempty"`

	Settings map[string]*string `json:"settings,omitempty"`
}

// IsEmpty reports whether the event carries no changes.
func (e SenderUpdated) IsEmpty() bool {
	return e.EmailAddress == nil && e.PhoneNumber == nil && e.DisplayName == nil &&
		e.Description == nil && len(e.Settings) == 0
}

// SenderSetDefault toggles the tenant's default sender flag.
type SenderSetDefault struct {
	IsDefault bool `json:"isDefault"`
}

// SenderDeleted marks the sender as deleted.
type SenderDeleted struct{}

type senderState struct {
	tenantID     *string
	provider     SenderProvider
	emailAddress *string
	phoneNumber  *string
	displayName  *string
	description  *string
	isDefault    bool

	settings map[string]string

	deleted bool
}

func (s senderState) clone() senderState {
	c := s
	c.tenantID = copyPtr(s.tenantID)
	c.emailAddress = copyPtr(s.emailAddress)
	c.phoneNumber = copyPtr(s.phoneNumber)
	c.displayName = copyPtr(s.displayName)
	c.description = copyPtr(s.description)
	c.settings = copyMap(s.settings)
	return c
}

// Sender is a configured message origin (email or SMS) within a tenant.
type Sender struct {
	eventstore.AggregateBase

	state   senderState
	pending *SenderUpdated
	base    senderState
}

// NewSender constructs an empty Sender ready for replay.
func NewSender(id string) *Sender {
	return &Sender{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeSender),
	}
}

// CreateEmailSender registers an email sender.
func CreateEmailSender(id string, tenantID *string, provider SenderProvider, emailAddress string) (*Sender, error) {
	if provider.IsPhone() {
		return nil, NewValidationError("provider", "does not send email")
	}
	s := NewSender(id)
	e := SenderCreated{
		TenantID:     copyPtr(tenantID),
		Provider:     provider,
		EmailAddress: &emailAddress,
	}
	s.Raise(e)
	s.applyCreated(e)
	return s, nil
}

// CreateSmsSender registers an SMS sender.
func CreateSmsSender(id string, tenantID *string, provider SenderProvider, phoneNumber string) (*Sender, error) {
	if !provider.IsPhone() {
		return nil, NewValidationError("provider", "does not send SMS")
	}
	s := NewSender(id)
	e := SenderCreated{
		TenantID:    copyPtr(tenantID),
		Provider:    provider,
		PhoneNumber: &phoneNumber,
	}
	s.Raise(e)
	s.applyCreated(e)
	return s, nil
}

func (s *Sender) TenantID() *string        { return s.state.tenantID }
func (s *Sender) Provider() SenderProvider { return s.state.provider }
func (s *Sender) EmailAddress() *string    { return s.state.emailAddress }
func (s *Sender) PhoneNumber() *string     { return s.state.phoneNumber }
func (s *Sender) DisplayName() *string     { return s.state.displayName }
func (s *Sender) Description() *string     { return s.state.description }
func (s *Sender) IsDefault() bool          { return s.state.isDefault }
func (s *Sender) IsDeleted() bool          { return s.state.deleted }

// Settings returns a copy of the provider settings.
func (s *Sender) Settings() map[string]string {
	return copyMap(s.state.settings)
}

// SetEmailAddress stages an email address change on an email sender.
func (s *Sender) SetEmailAddress(address string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if s.state.provider.IsPhone() {
		return NewValidationError("emailAddress", "does not apply to an SMS sender")
	}
	if s.state.emailAddress != nil && address == *s.state.emailAddress {
		return nil
	}
	p := s.pendingUpdate()
	s.state.emailAddress = &address
	if ptrEqual(&address, s.base.emailAddress) {
		p.EmailAddress = nil
	} else {
		p.EmailAddress = &address
	}
	return nil
}

// SetPhoneNumber stages a phone number change on an SMS sender.
func (s *Sender) SetPhoneNumber(number string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if !s.state.provider.IsPhone() {
		return NewValidationError("phoneNumber", "does not apply to an email sender")
	}
	if s.state.phoneNumber != nil && number == *s.state.phoneNumber {
		return nil
	}
	p := s.pendingUpdate()
	s.state.phoneNumber = &number
	if ptrEqual(&number, s.base.phoneNumber) {
		p.PhoneNumber = nil
	} else {
		p.PhoneNumber = &number
	}
	return nil
}

// SetDisplayName stages a display name change; nil clears it.
func (s *Sender) SetDisplayName(name *string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(name, s.state.displayName) {
		return nil
	}
	p := s.pendingUpdate()
	s.state.displayName = copyPtr(name)
	if ptrEqual(name, s.base.displayName) {
		p.DisplayName = nil
	} else {
		p.DisplayName = changeOf(name)
	}
	return nil
}

// SetDescription stages a description change; nil clears it.
func (s *Sender) SetDescription(description *string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if ptrEqual(description, s.state.description) {
		return nil
	}
	p := s.pendingUpdate()
	s.state.description = copyPtr(description)
	if ptrEqual(description, s.base.description) {
		p.Description = nil
	} else {
		p.Description = changeOf(description)
	}
	return nil
}

// SetSetting stages a provider setting value.
func (s *Sender) SetSetting(key, value string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if current, ok := s.state.settings[key]; ok && current == value {
		return nil
	}
	p := s.pendingUpdate()
	if s.state.settings == nil {
		s.state.settings = make(map[string]string)
	}
	s.state.settings[key] = value
	if base, ok := s.base.settings[key]; ok && base == value {
		delete(p.Settings, key)
	} else {
		if p.Settings == nil {
			p.Settings = make(map[string]*string)
		}
		v := value
		p.Settings[key] = &v
	}
	return nil
}

// RemoveSetting stages removal of a provider setting.
func (s *Sender) RemoveSetting(key string) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if _, ok := s.state.settings[key]; !ok {
		return nil
	}
	p := s.pendingUpdate()
	delete(s.state.settings, key)
	if _, ok := s.base.settings[key]; !ok {
		delete(p.Settings, key)
	} else {
		if p.Settings == nil {
			p.Settings = make(map[string]*string)
		}
		p.Settings[key] = nil
	}
	return nil
}

// SetDefault raises a default-flag change. The previous default, if any, is
// un-flagged by the caller in the same unit of work.
func (s *Sender) SetDefault(isDefault bool) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if isDefault == s.state.isDefault {
		return nil
	}
	s.flushPending()
	e := SenderSetDefault{IsDefault: isDefault}
	s.Raise(e)
	s.state.isDefault = isDefault
	return nil
}

// Delete marks the sender as deleted. Further mutations fail.
func (s *Sender) Delete() error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.flushPending()
	e := SenderDeleted{}
	s.Raise(e)
	s.state.deleted = true
	return nil
}

func (s *Sender) ensureActive() error {
	if s.state.deleted {
		return NewInvalidStateError(AggregateTypeSender, s.AggregateID(), "deleted")
	}
	return nil
}

// UncommittedEvents flushes the pending update before returning the
// uncommitted event list.
func (s *Sender) UncommittedEvents() []any {
	s.flushPending()
	return s.AggregateBase.UncommittedEvents()
}

func (s *Sender) pendingUpdate() *SenderUpdated {
	if s.pending == nil {
		s.pending = &SenderUpdated{}
		s.base = s.state.clone()
	}
	return s.pending
}

func (s *Sender) flushPending() {
	if s.pending == nil {
		return
	}
	if !s.pending.IsEmpty() {
		s.Raise(*s.pending)
	}
	s.pending = nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (s *Sender) ApplyEvent(event any) error {
	switch e := event.(type) {
	case SenderCreated:
		s.applyCreated(e)
	case SenderUpdated:
		s.applyUpdated(e)
	case SenderSetDefault:
		s.state.isDefault = e.IsDefault
	case SenderDeleted:
		s.state.deleted = true
	default:
		return fmt.Errorf("domain: sender cannot apply event %T", event)
	}
	return nil
}

func (s *Sender) applyCreated(e SenderCreated) {
	s.state.tenantID = copyPtr(e.TenantID)
	s.state.provider = e.Provider
	s.state.emailAddress = copyPtr(e.EmailAddress)
	s.state.phoneNumber = copyPtr(e.PhoneNumber)
}

func (s *Sender) applyUpdated(e SenderUpdated) {
	if e.EmailAddress != nil {
		s.state.emailAddress = copyPtr(e.EmailAddress)
	}
	if e.PhoneNumber != nil {
		s.state.phoneNumber = copyPtr(e.PhoneNumber)
	}
	s.state.displayName = e.DisplayName.Apply(s.state.displayName)
	s.state.description = e.Description.Apply(s.state.description)
	for key, value := range e.Settings {
		if value == nil {
			delete(s.state.settings, key)
			continue
		}
		if s.state.settings == nil {
			s.state.settings = make(map[string]string)
		}
		s.state.settings[key] = *value
	}
}
