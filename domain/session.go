package domain

import (
	"fmt"
	"time"

	"github.com/tessera-id/portal/eventstore"
)

// AggregateTypeSession is the stream category for sessions.
const AggregateTypeSession = "Session"

// SessionCreated is raised when a user signs in. SecretHash is set only for
// persistent sessions, which can be renewed with the matching refresh secret.
type SessionCreated struct {
	UserID     string    `json:"userId"`
	SecretHash *string   `json:"secretHash,omitempty"`
	SignedInAt time.Time `json:"signedInAt"`
}

// SessionRenewed rotates the refresh secret of a persistent session.
type SessionRenewed struct {
	SecretHash string    `json:"secretHash"`
	RenewedAt  time.Time `json:"renewedAt"`
}

// SessionSignedOut closes the session. Terminal.
type SessionSignedOut struct {
	SignedOutAt time.Time `json:"signedOutAt"`
}

type sessionState struct {
	userID     string
	secretHash *string
	signedIn   time.Time
	renewedAt  *time.Time
	signedOut  bool
}

// Session tracks one signed-in presence of a user.
type Session struct {
	eventstore.AggregateBase

	state sessionState
}

// NewSession constructs an empty Session ready for replay.
func NewSession(id string) *Session {
	return &Session{
		AggregateBase: eventstore.NewAggregateBase(id, AggregateTypeSession),
	}
}

// SignIn creates a session for the user. secretHash, when non-nil, makes the
// session persistent (renewable).
func SignIn(id, userID string, secretHash *string, now time.Time) *Session {
	s := NewSession(id)
	e := SessionCreated{
		UserID:     userID,
		SecretHash: copyPtr(secretHash),
		SignedInAt: now.UTC(),
	}
	s.Raise(e)
	s.applyCreated(e)
	return s
}

func (s *Session) UserID() string        { return s.state.userID }
func (s *Session) IsPersistent() bool    { return s.state.secretHash != nil }
func (s *Session) IsActive() bool        { return !s.state.signedOut }
func (s *Session) SignedInAt() time.Time { return s.state.signedIn }
func (s *Session) RenewedAt() *time.Time { return copyPtr(s.state.renewedAt) }

// Renew verifies the refresh secret and rotates it to newSecretHash.
func (s *Session) Renew(secret, newSecretHash string, now time.Time) error {
	if s.state.signedOut {
		return NewInvalidStateError(AggregateTypeSession, s.AggregateID(), "signed out")
	}
	if s.state.secretHash == nil {
		return NewInvalidStateError(AggregateTypeSession, s.AggregateID(), "not persistent")
	}
	ok, err := VerifySecret(secret, *s.state.secretHash)
	if err != nil {
		return err
	}
	if !ok {
		return NewValidationError("refreshToken", "is incorrect")
	}
	at := now.UTC()
	e := SessionRenewed{SecretHash: newSecretHash, RenewedAt: at}
	s.Raise(e)
	s.state.secretHash = &e.SecretHash
	s.state.renewedAt = &at
	return nil
}

// SignOut closes the session. Signing out twice fails with an invalid state
// error.
func (s *Session) SignOut(now time.Time) error {
	if s.state.signedOut {
		return NewInvalidStateError(AggregateTypeSession, s.AggregateID(), "signed out")
	}
	e := SessionSignedOut{SignedOutAt: now.UTC()}
	s.Raise(e)
	s.state.signedOut = true
	return nil
}

// ApplyEvent applies a replayed event to the in-memory state.
func (s *Session) ApplyEvent(event any) error {
	switch e := event.(type) {
	case SessionCreated:
		s.applyCreated(e)
	case SessionRenewed:
		hash := e.SecretHash
		at := e.RenewedAt
		s.state.secretHash = &hash
		s.state.renewedAt = &at
	case SessionSignedOut:
		s.state.signedOut = true
	default:
		return fmt.Errorf("domain: session cannot apply event %T", event)
	}
	return nil
}

func (s *Session) applyCreated(e SessionCreated) {
	s.state.userID = e.UserID
	s.state.secretHash = copyPtr(e.SecretHash)
	s.state.signedIn = e.SignedInAt
}
