package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

const (
	// DefaultTokenTTL is used when no lifetime is configured.
	DefaultTokenTTL = 7 * 24 * time.Hour

	loginReason     = "login"
	maxReasonLength = 255
	maxIDAttempts   = 16
)

// TokenRepository defines persistence operations for tokens.
type TokenRepository interface {
	Get(ctx context.Context, id string) (types.Token, error)
	ListByOwner(ctx context.Context, owner string) ([]types.Token, error)
	Create(ctx context.Context, token types.Token) (types.Token, error)
	Update(ctx context.Context, token types.Token) (types.Token, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenService manages the token lifecycle: minting, lookup, deletion and
// the expiry sweep.
type TokenService struct {
	repo   TokenRepository
	users  UserRepository
	ttl    time.Duration
	clock  auth.Clock
	random io.Reader
	audit  auditor
	log    logging.Logger
}

func NewTokenService(repo TokenRepository, users UserRepository, ttl time.Duration, deps Deps) *TokenService {
	deps = deps.withDefaults()
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		repo:   repo,
		users:  users,
		ttl:    ttl,
		clock:  deps.Clock,
		random: deps.Random,
		audit:  newAuditor(deps),
		log:    deps.Logger.With("component", "tokens"),
	}
}

// CreateToken mints a token for owner. Only the requested permissions that
// are valid and that grantor itself holds are stored. A nil expiry means
// now plus the configured lifetime.
func (s *TokenService) CreateToken(
	ctx context.Context,
	grantor types.Grantor,
	owner string,
	requested []string,
	reason string,
	expiry *time.Time,
) (types.Token, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = types.DefaultTokenReason
	}
	if len(reason) > maxReasonLength {
		return types.Token{}, fmt.Errorf("%w: reason must be at most %d characters", ErrInvalidInput, maxReasonLength)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl).Unix()
	if expiry != nil {
		if !expiry.After(now) {
			return types.Token{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
		}
		expiresAt = expiry.Unix()
	}

	token := types.Token{
		Owner:       owner,
		Permissions: types.FilterGrantable(grantor, requested),
		Reason:      reason,
		Expiry:      expiresAt,
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := auth.NewTokenID(s.random)
		if err != nil {
			return types.Token{}, err
		}
		token.ID = id

		created, err := s.repo.Create(ctx, token)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return types.Token{}, err
		}

		s.audit.record(ctx, types.AuditTokenCreated, "", created.Owner, map[string]string{"reason": created.Reason})
		return created, nil
	}
	return types.Token{}, errors.New("could not generate a unique token id")
}

// Login verifies the password and mints a token carrying the user's full
// permission set, implicit permissions included.
func (s *TokenService) Login(ctx context.Context, username, password string) (types.Token, error) {
	user, err := s.users.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Token{}, ErrInvalidCredentials
		}
		return types.Token{}, err
	}
	if !auth.MatchPassword(password, user.Salt, user.PasswordHash) {
		return types.Token{}, ErrInvalidCredentials
	}

	requested := types.PermissionStrings(user.Permissions)
	requested = append(requested, string(types.PermSelfModify), string(types.PermTokenDelete))

	token, err := s.CreateToken(ctx, user, user.Username, requested, loginReason, nil)
	if err != nil {
		return types.Token{}, err
	}
	s.log.Info(ctx, "user logged in", "username", user.Username)
	return token, nil
}

// Get returns a live token. Expired tokens are deleted and reported as
// store.ErrNotFound.
func (s *TokenService) Get(ctx context.Context, id string) (types.Token, error) {
	token, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Token{}, err
	}
	if token.IsExpired(s.clock.Now()) {
		s.expire(ctx, token)
		return types.Token{}, store.ErrNotFound
	}
	return token, nil
}

// GetByUser lists the live tokens of owner, deleting expired ones on the way.
func (s *TokenService) GetByUser(ctx context.Context, owner string) ([]types.Token, error) {
	tokens, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	live := make([]types.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.IsExpired(now) {
			s.expire(ctx, token)
			continue
		}
		live = append(live, token)
	}
	return live, nil
}

// SetExpiry moves the expiry of a token and returns the stored token.
func (s *TokenService) SetExpiry(ctx context.Context, id string, expiry time.Time) (types.Token, error) {
	token, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Token{}, err
	}
	token.Expiry = expiry.Unix()
	return s.repo.Update(ctx, token)
}

// Delete removes a token and returns how many were removed.
func (s *TokenService) Delete(ctx context.Context, id string) (int64, error) {
	return s.repo.Delete(ctx, id)
}

// DeleteAs removes a token on behalf of principal. The token used for the
// request may always delete itself. Other tokens of the same owner need
// token:delete; tokens of other users need user:modify.
func (s *TokenService) DeleteAs(ctx context.Context, principal *auth.Principal, id string) error {
	subject := principal.Username()
	if id != principal.Token.ID {
		target, err := s.Get(ctx, id)
		if err != nil {
			return err
		}

		scope, err := principal.Scope(ctx)
		if err != nil {
			return err
		}

		required := types.PermTokenDelete
		if target.Owner != principal.Username() {
			required = types.PermUserModify
		}
		if !scope.HasPermission(required) {
			return &auth.InsufficientPermissionError{Missing: []types.Permission{required}}
		}
		subject = target.Owner
	}

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if removed == 0 {
		return store.ErrNotFound
	}
	s.audit.record(ctx, types.AuditTokenDeleted, principal.Username(), subject, nil)
	return nil
}

// ClearExpired deletes every expired token and returns how many were removed.
func (s *TokenService) ClearExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.clock.Now())
}

// RunExpirySweep calls ClearExpired every interval until ctx is done.
func (s *TokenService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.ClearExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error(ctx, "expired token sweep failed", "err", err)
				continue
			}
			if removed > 0 {
				s.log.Info(ctx, "expired tokens removed", "count", removed)
			}
		}
	}
}

func (s *TokenService) expire(ctx context.Context, token types.Token) {
	if _, err := s.repo.Delete(ctx, token.ID); err != nil {
		s.log.Warn(ctx, "failed to delete expired token", "owner", token.Owner, "err", err)
		return
	}
	s.audit.record(ctx, types.AuditTokenExpired, "", token.Owner, nil)
}
