package app

import (
	"context"

	"github.com/tessera-id/portal/cqrs"
	"github.com/tessera-id/portal/domain"
	"github.com/tessera-id/portal/readmodel"
)

// SignIn authenticates a user and opens a session. When Persistent is set, a
// refresh secret is generated and returned once in the result; only its hash
// is stored.
type SignIn struct {
	// ID is optional; a UUID is assigned when empty.
	ID         string      `json:"id,omitempty"`
	UserID     string      `json:"userId" validate:"required"`
	Password   cqrs.Secret `json:"password" validate:"required"`
	Persistent bool        `json:"persistent"`
}

func (SignIn) CommandType() string   { return "SignIn" }
func (c SignIn) AggregateID() string { return c.ID }
func (SignIn) Validate() error       { return nil }

// RenewSession verifies the refresh secret of a persistent session and
// rotates it. The new secret is returned once in the result.
type RenewSession struct {
	ID            string      `json:"id" validate:"required"`
	RefreshSecret cqrs.Secret `json:"refreshSecret" validate:"required"`
}

func (RenewSession) CommandType() string   { return "RenewSession" }
func (c RenewSession) AggregateID() string { return c.ID }
func (RenewSession) Validate() error       { return nil }

// SignOutSession ends a session. Terminal for the session.
type SignOutSession struct {
	ID string `json:"id" validate:"required"`
}

func (SignOutSession) CommandType() string   { return "SignOutSession" }
func (c SignOutSession) AggregateID() string { return c.ID }
func (SignOutSession) Validate() error       { return nil }

// SessionResult is the data of a successful SignIn or RenewSession. The
// refresh secret appears exactly once, here; it cannot be recovered later.
type SessionResult struct {
	Session       *readmodel.SessionView `json:"session"`
	RefreshSecret string                 `json:"refreshSecret,omitempty"`
}

func (p *Portal) registerSessionHandlers() {
	p.bus.Register(
		cqrs.NewTypedHandler(p.handleSignIn),
		cqrs.NewTypedHandler(p.handleRenewSession),
		cqrs.NewTypedHandler(p.handleSignOutSession),
	)
}

func (p *Portal) handleSignIn(ctx context.Context, cmd SignIn) (cqrs.CommandResult, error) {
	user := domain.NewUser(cmd.UserID)
	if err := p.load(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := user.Authenticate(cmd.Password.Raw(), p.clock()); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := p.save(ctx, user); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	var refreshSecret string
	var secretHash *string
	if cmd.Persistent {
		refreshSecret = domain.GenerateSecret()
		hash, err := domain.HashSecret(refreshSecret)
		if err != nil {
			return cqrs.NewErrorResult(err), err
		}
		secretHash = &hash
	}

	id := cmd.ID
	if id == "" {
		id = p.newID()
	}
	session := domain.SignIn(id, cmd.UserID, secretHash, p.clock())

	if err := p.save(ctx, session); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.sessionResult(ctx, session.AggregateID(), session.Version(), refreshSecret)
}

func (p *Portal) handleRenewSession(ctx context.Context, cmd RenewSession) (cqrs.CommandResult, error) {
	session := domain.NewSession(cmd.ID)
	if err := p.load(ctx, session); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	refreshSecret := domain.GenerateSecret()
	hash, err := domain.HashSecret(refreshSecret)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	if err := session.Renew(cmd.RefreshSecret.Raw(), hash, p.clock()); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, session); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.sessionResult(ctx, session.AggregateID(), session.Version(), refreshSecret)
}

func (p *Portal) handleSignOutSession(ctx context.Context, cmd SignOutSession) (cqrs.CommandResult, error) {
	session := domain.NewSession(cmd.ID)
	if err := p.load(ctx, session); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := session.SignOut(p.clock()); err != nil {
		return cqrs.NewErrorResult(err), err
	}

	if err := p.save(ctx, session); err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return p.sessionResult(ctx, session.AggregateID(), session.Version(), "")
}

func (p *Portal) sessionResult(ctx context.Context, id string, version int64, refreshSecret string) (cqrs.CommandResult, error) {
	view, err := p.stores.Sessions.Get(ctx, id)
	if err != nil {
		return cqrs.NewErrorResult(err), err
	}
	return cqrs.NewResultWithData(id, version, &SessionResult{
		Session:       view,
		RefreshSecret: refreshSecret,
	}), nil
}

// ReadSession returns a session view by ID, or nil when none exists.
func (p *Portal) ReadSession(ctx context.Context, id string) (*readmodel.SessionView, error) {
	view, err := p.stores.Sessions.Get(ctx, id)
	if err != nil {
		if viewNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return view, nil
}

// SearchSessions lists sessions matching the payload. Sessions carry no
// tenant of their own; the optional userID scopes to one user instead, and
// the free-text term matches the user's unique name.
func (p *Portal) SearchSessions(ctx context.Context, userID string, payload SearchPayload) (SearchResults[readmodel.SessionView], error) {
	payload.All = true
	if userID == "" {
		return search(ctx, p.stores.Sessions, payload, "User.UniqueName", false)
	}

	q := readmodel.NewQuery().Where("UserID", readmodel.FilterOpEq, userID)
	if payload.SortBy != "" {
		if payload.SortDesc {
			q.OrderByDesc(payload.SortBy)
		} else {
			q.OrderByAsc(payload.SortBy)
		}
	}
	if payload.Page > 0 && payload.PageSize > 0 {
		q.WithPagination(payload.Page, payload.PageSize)
	}
	result, err := p.stores.Sessions.FindPage(ctx, q.Build())
	if err != nil {
		return SearchResults[readmodel.SessionView]{}, err
	}
	return SearchResults[readmodel.SessionView]{Items: result.Items, TotalCount: result.TotalCount}, nil
}
