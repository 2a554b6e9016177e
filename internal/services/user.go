package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

const (
	maxUsernameLength = 255
	maxPasswordLength = 255
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Get(ctx context.Context, username string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) (types.User, error)
	UpdatePermissions(ctx context.Context, username string, perms []types.Permission) (types.User, error)
	UpdatePasswordChangeRequested(ctx context.Context, username string, requested bool) (types.User, error)
	Rename(ctx context.Context, username, newUsername string) (types.User, error)
	Delete(ctx context.Context, username string) (int64, error)
}

// UserService encapsulates user use-cases. Every mutation returns the
// stored user as it is after the change.
type UserService struct {
	repo   UserRepository
	random io.Reader
	audit  auditor
	log    logging.Logger
}

func NewUserService(repo UserRepository, deps Deps) *UserService {
	deps = deps.withDefaults()
	return &UserService{
		repo:   repo,
		random: deps.Random,
		audit:  newAuditor(deps),
		log:    deps.Logger.With("component", "users"),
	}
}

func (s *UserService) Get(ctx context.Context, username string) (types.User, error) {
	return s.repo.Get(ctx, username)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Create derives the password hash with a fresh salt and stores a user with
// no explicit permissions who must change the password on first sign in.
func (s *UserService) Create(ctx context.Context, actor, username, password string) (types.User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return types.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return types.User{}, err
	}

	salt, err := auth.NewSalt(s.random)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:                username,
		PasswordHash:            auth.HashPassword(password, salt),
		Salt:                    salt,
		Permissions:             []types.Permission{},
		PasswordChangeRequested: true,
	})
	if err != nil {
		return types.User{}, err
	}

	s.audit.record(ctx, types.AuditUserCreated, actor, user.Username, nil)
	return user, nil
}

// Authenticate returns the user when password matches.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !s.MatchPassword(user, password) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// MatchPassword derives candidate with the user's salt and compares it with
// the stored hash.
func (s *UserService) MatchPassword(user types.User, candidate string) bool {
	return auth.MatchPassword(candidate, user.Salt, user.PasswordHash)
}

// SetPassword derives a new hash with the user's existing salt.
func (s *UserService) SetPassword(ctx context.Context, actor, username, password string) (types.User, error) {
	if err := validatePassword(password); err != nil {
		return types.User{}, err
	}
	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	updated, err := s.repo.UpdatePassword(ctx, user.Username, auth.HashPassword(password, user.Salt))
	if err != nil {
		return types.User{}, err
	}
	s.audit.record(ctx, types.AuditPasswordChanged, actor, updated.Username, nil)
	return updated, nil
}

func (s *UserService) SetPasswordChangeRequested(ctx context.Context, username string, requested bool) (types.User, error) {
	return s.repo.UpdatePasswordChangeRequested(ctx, username, requested)
}

// SetPermissions replaces the permission list as given. Callers filter the
// list beforehand; AssignPermissions does that for requests coming from a
// principal.
func (s *UserService) SetPermissions(ctx context.Context, actor, username string, perms []types.Permission) (types.User, error) {
	updated, err := s.repo.UpdatePermissions(ctx, username, perms)
	if err != nil {
		return types.User{}, err
	}
	s.audit.record(ctx, types.AuditUserPermissions, actor, updated.Username, map[string]string{
		"permissions": strings.Join(types.PermissionStrings(updated.Permissions), ","),
	})
	return updated, nil
}

// AssignPermissions replaces the permission list with the requested values
// that are valid and grantable by grantor. Everything else is dropped.
func (s *UserService) AssignPermissions(ctx context.Context, grantor types.Grantor, actor, username string, requested []string) (types.User, error) {
	return s.SetPermissions(ctx, actor, username, types.FilterGrantable(grantor, requested))
}

// CheckRename reports whether username could be renamed to newUsername
// without writing anything.
func (s *UserService) CheckRename(ctx context.Context, username, newUsername string) error {
	newUsername, err := normalizeUsername(newUsername)
	if err != nil {
		return err
	}
	if newUsername == username {
		return nil
	}
	_, err = s.repo.Get(ctx, newUsername)
	switch {
	case err == nil:
		return fmt.Errorf("%w: user %q already exists", store.ErrConflict, newUsername)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// Rename changes the username. Tokens keep pointing at the user.
func (s *UserService) Rename(ctx context.Context, actor, username, newUsername string) (types.User, error) {
	newUsername, err := normalizeUsername(newUsername)
	if err != nil {
		return types.User{}, err
	}
	if newUsername == username {
		return s.repo.Get(ctx, username)
	}
	updated, err := s.repo.Rename(ctx, username, newUsername)
	if err != nil {
		return types.User{}, err
	}
	s.audit.record(ctx, types.AuditUserRenamed, actor, updated.Username, map[string]string{"previous": username})
	return updated, nil
}

// Delete removes the user together with all of its tokens and returns the
// number of users removed.
func (s *UserService) Delete(ctx context.Context, actor, username string) (int64, error) {
	removed, err := s.repo.Delete(ctx, username)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.audit.record(ctx, types.AuditUserDeleted, actor, username, nil)
		s.log.Info(ctx, "user deleted", "username", username, "actor", actor)
	}
	return removed, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("%w: username must be at most %d characters", ErrInvalidInput, maxUsernameLength)
	}
	if strings.ContainsAny(username, "/ \t\n") {
		return "", fmt.Errorf("%w: username must not contain whitespace or slashes", ErrInvalidInput)
	}
	return username, nil
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrInvalidInput, maxPasswordLength)
	}
	return nil
}
