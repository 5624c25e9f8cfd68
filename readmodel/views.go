package readmodel

import (
	"time"

	"github.com/tessera-id/portal/domain"
)

// Views are denormalized projections of aggregate state. Each carries the
// Version of the last event applied to it, which makes projection handlers
// idempotent: an event at or below the view's version is a no-op.

// ConfigurationView mirrors the portal configuration.
type ConfigurationView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	DefaultLocale      domain.Locale             `json:"defaultLocale"`
	Secret             string                    `json:"-"`
	UniqueNameSettings domain.UniqueNameSettings `json:"uniqueNameSettings"`
	PasswordSettings   domain.PasswordSettings   `json:"passwordSettings"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// RealmView mirrors a realm, with its password recovery sender and template
// references resolved into summaries.
type RealmView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	UniqueSlug     string `json:"uniqueSlug"`
	NormalizedSlug string `json:"-"`

	DisplayName   *string        `json:"displayName,omitempty"`
	Description   *string        `json:"description,omitempty"`
	DefaultLocale *domain.Locale `json:"defaultLocale,omitempty"`
	Secret        string         `json:"-"`
	URL           *string        `json:"url,omitempty"`

	RequireUniqueEmail      bool `json:"requireUniqueEmail"`
	RequireConfirmedAccount bool `json:"requireConfirmedAccount"`

	UniqueNameSettings domain.UniqueNameSettings `json:"uniqueNameSettings"`
	PasswordSettings   domain.PasswordSettings   `json:"passwordSettings"`

	ClaimMappings    map[string]domain.ClaimMapping `json:"claimMappings,omitempty"`
	CustomAttributes map[string]string              `json:"customAttributes,omitempty"`

	PasswordRecoverySender   *SenderSummary   `json:"passwordRecoverySender,omitempty"`
	PasswordRecoveryTemplate *TemplateSummary `json:"passwordRecoveryTemplate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// UserView mirrors a user, with granted roles resolved into role views.
type UserView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	UniqueName     string `json:"uniqueName"`
	NormalizedName string `json:"-"`

	// PasswordHash is the argon2id encoding of the password, never the
	// plaintext.
	PasswordHash *string `json:"-"`
	HasPassword  bool    `json:"hasPassword"`

	Email      *string        `json:"email,omitempty"`
	FirstName  *string        `json:"firstName,omitempty"`
	MiddleName *string        `json:"middleName,omitempty"`
	LastName   *string        `json:"lastName,omitempty"`
	FullName   *string        `json:"fullName,omitempty"`
	Nickname   *string        `json:"nickname,omitempty"`
	Locale     *domain.Locale `json:"locale,omitempty"`
	Picture    *string        `json:"picture,omitempty"`
	Website    *string        `json:"website,omitempty"`
	Disabled   bool           `json:"disabled"`

	CustomAttributes map[string]string `json:"customAttributes,omitempty"`
	Identifiers      map[string]string `json:"identifiers,omitempty"`
	Roles            []RoleView        `json:"roles,omitempty"`

	AuthenticatedAt *time.Time `json:"authenticatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// SessionView mirrors a session with its user resolved into a summary.
type SessionView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	UserID string      `json:"userId"`
	User   UserSummary `json:"user"`

	IsPersistent bool       `json:"isPersistent"`
	IsActive     bool       `json:"isActive"`
	SignedInAt   time.Time  `json:"signedInAt"`
	RenewedAt    *time.Time `json:"renewedAt,omitempty"`
	SignedOutAt  *time.Time `json:"signedOutAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// ApiKeyView mirrors an API key with granted roles resolved into role views.
type ApiKeyView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	DisplayName string  `json:"displayName"`
	Description *string `json:"description,omitempty"`

	ExpiresOn       *time.Time `json:"expiresOn,omitempty"`
	AuthenticatedAt *time.Time `json:"authenticatedAt,omitempty"`

	CustomAttributes map[string]string `json:"customAttributes,omitempty"`
	Roles            []RoleView        `json:"roles,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// RoleView mirrors a role.
type RoleView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	UniqueName     string `json:"uniqueName"`
	NormalizedName string `json:"-"`

	DisplayName *string `json:"displayName,omitempty"`
	Description *string `json:"description,omitempty"`

	CustomAttributes map[string]string `json:"customAttributes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// SenderView mirrors a message sender. Settings hold provider credentials and
// are excluded from JSON output.
type SenderView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	Provider     domain.SenderProvider `json:"provider"`
	EmailAddress *string               `json:"emailAddress,omitempty"`
	PhoneNumber  *string               `json:"phoneNumber,omitempty"`
	DisplayName  *string               `json:"displayName,omitempty"`
	Description  *string               `json:"description,omitempty"`
	IsDefault    bool                  `json:"isDefault"`

	Settings map[string]string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// TemplateView mirrors a message template.
type TemplateView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	UniqueKey   string  `json:"uniqueKey"`
	DisplayName *string `json:"displayName,omitempty"`
	Description *string `json:"description,omitempty"`

	Subject string                 `json:"subject"`
	Content domain.TemplateContent `json:"content"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// DictionaryView mirrors a localization dictionary.
type DictionaryView struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	TenantID *string `json:"tenantId,omitempty"`

	Locale     domain.Locale     `json:"locale"`
	Entries    map[string]string `json:"entries,omitempty"`
	EntryCount int               `json:"entryCount"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// SenderSummary is the compact sender form embedded in other views.
type SenderSummary struct {
	ID           string                `json:"id"`
	Provider     domain.SenderProvider `json:"provider"`
	EmailAddress *string               `json:"emailAddress,omitempty"`
	PhoneNumber  *string               `json:"phoneNumber,omitempty"`
	DisplayName  *string               `json:"displayName,omitempty"`
}

// TemplateSummary is the compact template form embedded in other views.
type TemplateSummary struct {
	ID          string  `json:"id"`
	UniqueKey   string  `json:"uniqueKey"`
	DisplayName *string `json:"displayName,omitempty"`
}

// UserSummary is the compact user form embedded in session views.
type UserSummary struct {
	ID         string  `json:"id"`
	UniqueName string  `json:"uniqueName"`
	FullName   *string `json:"fullName,omitempty"`
	Picture    *string `json:"picture,omitempty"`
}

// NewSenderSummary builds a summary from a sender view.
func NewSenderSummary(v *SenderView) *SenderSummary {
	return &SenderSummary{
		ID:           v.ID,
		Provider:     v.Provider,
		EmailAddress: v.EmailAddress,
		PhoneNumber:  v.PhoneNumber,
		DisplayName:  v.DisplayName,
	}
}

// NewTemplateSummary builds a summary from a template view.
func NewTemplateSummary(v *TemplateView) *TemplateSummary {
	return &TemplateSummary{
		ID:          v.ID,
		UniqueKey:   v.UniqueKey,
		DisplayName: v.DisplayName,
	}
}

// NewUserSummary builds a summary from a user view.
func NewUserSummary(v *UserView) UserSummary {
	return UserSummary{
		ID:         v.ID,
		UniqueName: v.UniqueName,
		FullName:   v.FullName,
		Picture:    v.Picture,
	}
}
