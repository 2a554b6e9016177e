// Package auth decides whether a bearer credential may perform an operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

// TokenStore is the subset of token persistence the authorizer needs.
type TokenStore interface {
	Get(ctx context.Context, id string) (types.Token, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// UserStore resolves token owners.
type UserStore interface {
	Get(ctx context.Context, username string) (types.User, error)
}

// Authorizer evaluates bearer credentials against required permissions.
type Authorizer struct {
	tokens TokenStore
	users  UserStore
	clock  Clock
	log    logging.Logger
}

func NewAuthorizer(tokens TokenStore, users UserStore, clock Clock, log logging.Logger) *Authorizer {
	if clock == nil {
		clock = SystemClock
	}
	return &Authorizer{
		tokens: tokens,
		users:  users,
		clock:  clock,
		log:    log.With("component", "authorizer"),
	}
}

// Authorize resolves credential to a live token and checks every required
// permission against the intersection of the token's and its owner's
// permissions. Expired tokens are deleted on sight and reported as
// ErrCredentialInvalid. Storage failures are returned wrapped.
func (a *Authorizer) Authorize(ctx context.Context, credential string, required ...types.Permission) (*Principal, error) {
	if credential == "" {
		return nil, ErrCredentialMissing
	}

	token, err := a.tokens.Get(ctx, credential)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCredentialInvalid
		}
		return nil, fmt.Errorf("load token: %w", err)
	}

	if token.IsExpired(a.clock.Now()) {
		a.discard(ctx, token, "expired")
		return nil, ErrCredentialInvalid
	}

	principal := newPrincipal(token, a.users)
	if len(required) == 0 {
		return principal, nil
	}

	scope, err := principal.Scope(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.discard(ctx, token, "owner missing")
			return nil, ErrCredentialInvalid
		}
		return nil, fmt.Errorf("load token owner: %w", err)
	}

	if missing := scope.Missing(required); len(missing) > 0 {
		return nil, &InsufficientPermissionError{Missing: missing}
	}
	return principal, nil
}

// discard deletes a token that must no longer be honoured. A concurrent
// request may already have removed it, which is fine.
func (a *Authorizer) discard(ctx context.Context, token types.Token, reason string) {
	if _, err := a.tokens.Delete(ctx, token.ID); err != nil {
		a.log.Warn(ctx, "failed to delete token", "owner", token.Owner, "reason", reason, "err", err)
		return
	}
	a.log.Debug(ctx, "token discarded", "owner", token.Owner, "reason", reason)
}

// Principal is an authorized token. Its owner is loaded on first use and
// then cached for the rest of the request.
type Principal struct {
	Token types.Token

	users UserStore
	once  sync.Once
	user  types.User
	err   error
}

func newPrincipal(token types.Token, users UserStore) *Principal {
	return &Principal{Token: token, users: users}
}

// NewPrincipal builds a principal whose owner is already known.
func NewPrincipal(token types.Token, owner types.User) *Principal {
	p := &Principal{Token: token}
	p.once.Do(func() { p.user = owner })
	return p
}

// User returns the owner of the token.
func (p *Principal) User(ctx context.Context) (types.User, error) {
	p.once.Do(func() {
		p.user, p.err = p.users.Get(ctx, p.Token.Owner)
	})
	return p.user, p.err
}

// Scope returns the effective permission scope of the principal.
func (p *Principal) Scope(ctx context.Context) (types.Scope, error) {
	owner, err := p.User(ctx)
	if err != nil {
		return types.Scope{}, err
	}
	return types.Scope{Token: p.Token, Owner: owner}, nil
}

// Username is the owner of the token.
func (p *Principal) Username() string {
	return p.Token.Owner
}
