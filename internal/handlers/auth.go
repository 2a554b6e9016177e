package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/types"
)

// Authorizer resolves a bearer credential into a principal holding every
// required permission.
type Authorizer interface {
	Authorize(ctx context.Context, credential string, required ...types.Permission) (*auth.Principal, error)
}

// AuthHandler provides login and token management endpoints.
type AuthHandler struct {
	tokens *services.TokenService
	users  *services.UserService
	log    logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(tokens *services.TokenService, users *services.UserService, log logging.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, users: users, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authz Authorizer, tokens *services.TokenService, users *services.UserService, log logging.Logger) {
	handler := NewAuthHandler(tokens, users, log)
	requireToken := RequirePermissions(authz)

	r.Post("/login", handler.Login)
	r.With(requireToken).Get("/token", handler.CurrentToken)
	r.With(requireToken).Post("/token", handler.CreateToken)
	r.With(requireToken).Get("/tokens", handler.ListTokens)
	r.With(requireToken).Delete("/token/{tokenID}", handler.DeleteToken)
}

// RequirePermissions authorizes the bearer credential of the request against
// perms and stores the resulting principal in the request context. With no
// perms any valid token is accepted.
func RequirePermissions(authz Authorizer, perms ...types.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, err := bearerToken(r)
			if err != nil {
				if errors.Is(err, errMissingAuthorization) {
					writeAuthError(w, auth.ErrCredentialMissing)
					return
				}
				writeError(w, http.StatusUnauthorized, "the authorization header must be of type Bearer")
				return
			}

			principal, err := authz.Authorize(r.Context(), credential, perms...)
			if err != nil {
				if !writeAuthError(w, err) {
					writeError(w, http.StatusInternalServerError, "failed to authorize request")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// Login verifies credentials and returns a new token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	token, err := h.tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to authenticate")
		return
	}

	user, err := h.users.Get(r.Context(), token.Owner)
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user.View()})
}

// CurrentToken returns the token used for the request.
func (h *AuthHandler) CurrentToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}
	writeJSON(w, http.StatusOK, principal.Token)
}

// CreateToken mints a token for the caller. Requested permissions the
// caller's own token cannot grant are dropped.
func (h *AuthHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	var req CreateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope, err := principal.Scope(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to load user")
		return
	}

	var expiry *time.Time
	if req.Expiry != nil {
		at := time.Unix(*req.Expiry, 0)
		expiry = &at
	}

	token, err := h.tokens.CreateToken(r.Context(), scope, principal.Username(), req.Permissions, req.Reason, expiry)
	if err != nil {
		writeServiceError(w, r, h.log, err, "token", "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

// ListTokens returns the live tokens of the caller.
func (h *AuthHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	tokens, err := h.tokens.GetByUser(r.Context(), principal.Username())
	if err != nil {
		writeServiceError(w, r, h.log, err, "token", "failed to list tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// DeleteToken revokes a token.
func (h *AuthHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	id := chi.URLParam(r, "tokenID")
	if !auth.ValidTokenID(id) {
		writeError(w, http.StatusBadRequest, "a token must contain 86 [a-z, A-Z, 0-9, _, -] characters")
		return
	}

	if err := h.tokens.DeleteAs(r.Context(), principal, id); err != nil {
		writeServiceError(w, r, h.log, err, "token", "failed to delete token")
		return
	}

	writeJSON(w, http.StatusOK, DeleteTokenResponse{ID: id})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token types.Token    `json:"token"`
	User  types.UserView `json:"user"`
}

type CreateTokenRequest struct {
	Permissions []string `json:"permissions"`
	Reason      string   `json:"reason"`
	// Expiry is a unix timestamp in seconds.
	Expiry *int64 `json:"expiry"`
}

type DeleteTokenResponse struct {
	ID string `json:"id"`
}

var errMissingAuthorization = errors.New("missing authorization")

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errMissingAuthorization
	}
	return token, nil
}
