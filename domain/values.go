package domain

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// DefaultLocale is the locale used when none is configured.
const DefaultLocale = Locale("en")

// Locale is a BCP-47 language tag (e.g., "en", "fr-CA").
type Locale string

// NewLocale validates and normalizes a locale tag.
func NewLocale(s string) (Locale, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("locale", "is required")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", NewValidationError("locale", "is not a valid language tag: "+s)
	}
	return Locale(tag.String()), nil
}

// String returns the locale tag.
func (l Locale) String() string {
	return string(l)
}

// Slug is a unique, URL-safe identifier for a tenant-level resource.
// Uniqueness is case-insensitive: compare normalized forms.
type Slug string

// NewSlug validates a slug: non-empty, at most 255 characters, letters,
// digits, hyphens and underscores only.
func NewSlug(s string) (Slug, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("uniqueSlug", "is required")
	}
	if len(s) > 255 {
		return "", NewValidationError("uniqueSlug", "must be at most 255 characters")
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return "", NewValidationError("uniqueSlug", "may only contain letters, digits, hyphens and underscores")
		}
	}
	return Slug(s), nil
}

// String returns the slug as entered.
func (s Slug) String() string {
	return string(s)
}

// Normalized returns the upper-cased form used for case-insensitive lookup.
func (s Slug) Normalized() string {
	return strings.ToUpper(string(s))
}

// NewURL validates an absolute http(s) URL and returns its canonical form.
func NewURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("url", "is required")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", NewValidationError("url", "must be an absolute http(s) URL")
	}
	return u.String(), nil
}

// UniqueNameSettings constrains the characters allowed in unique names.
type UniqueNameSettings struct {
	// AllowedCharacters lists every permitted character. Empty means any.
	AllowedCharacters string `json:"allowedCharacters"`
}

// DefaultUniqueNameSettings mirrors the usual identity defaults.
func DefaultUniqueNameSettings() UniqueNameSettings {
	return UniqueNameSettings{
		AllowedCharacters: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+",
	}
}

// Validate checks a unique name against the settings.
func (s UniqueNameSettings) Validate(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("uniqueName", "is required")
	}
	if len(name) > 255 {
		return NewValidationError("uniqueName", "must be at most 255 characters")
	}
	if s.AllowedCharacters == "" {
		return nil
	}
	for _, r := range name {
		if !strings.ContainsRune(s.AllowedCharacters, r) {
			return NewValidationError("uniqueName", "contains a character that is not allowed: "+string(r))
		}
	}
	return nil
}

// PasswordSettings define the password strength policy.
type PasswordSettings struct {
	RequiredLength         int  `json:"requiredLength"`
	RequiredUniqueChars    int  `json:"requiredUniqueChars"`
	RequireNonAlphanumeric bool `json:"requireNonAlphanumeric"`
	RequireLowercase       bool `json:"requireLowercase"`
	RequireUppercase       bool `json:"requireUppercase"`
	RequireDigit           bool `json:"requireDigit"`
}

// DefaultPasswordSettings mirrors the usual identity defaults.
func DefaultPasswordSettings() PasswordSettings {
	return PasswordSettings{
		RequiredLength:         8,
		RequiredUniqueChars:    3,
		RequireNonAlphanumeric: true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireDigit:           true,
	}
}

// Validate checks a plaintext password against the policy.
func (s PasswordSettings) Validate(password string) error {
	if len(password) < s.RequiredLength {
		return NewValidationError("password", "is too short")
	}

	unique := make(map[rune]struct{}, len(password))
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		unique[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	switch {
	case len(unique) < s.RequiredUniqueChars:
		return NewValidationError("password", "does not contain enough distinct characters")
	case s.RequireUppercase && !hasUpper:
		return NewValidationError("password", "requires an uppercase letter")
	case s.RequireLowercase && !hasLower:
		return NewValidationError("password", "requires a lowercase letter")
	case s.RequireDigit && !hasDigit:
		return NewValidationError("password", "requires a digit")
	case s.RequireNonAlphanumeric && !hasSpecial:
		return NewValidationError("password", "requires a non-alphanumeric character")
	}
	return nil
}

// ClaimMapping maps a custom attribute key to a token claim.
type ClaimMapping struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MinSecretLength is the minimum length of a signing secret.
const MinSecretLength = 32

// NewSecret validates a signing secret supplied by a caller.
func NewSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < MinSecretLength {
		return "", NewValidationError("secret", "must be at least 32 characters")
	}
	if len(s) > 512 {
		return "", NewValidationError("secret", "must be at most 512 characters")
	}
	return s, nil
}
