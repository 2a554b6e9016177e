package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/types"
)

// UserHandler provides HTTP handlers for user accounts.
type UserHandler struct {
	users *services.UserService
	log   logging.Logger
}

func NewUserHandler(users *services.UserService, log logging.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, authz Authorizer, users *services.UserService, log logging.Logger) {
	handler := NewUserHandler(users, log)

	r.With(RequirePermissions(authz, types.PermUserView)).Get("/", handler.ListUsers)
	r.With(RequirePermissions(authz, types.PermUserCreate)).Post("/", handler.CreateUser)
	r.With(RequirePermissions(authz)).Get("/self", handler.GetSelf)
	r.With(RequirePermissions(authz, types.PermSelfModify)).Put("/self", handler.UpdateSelf)
	r.Route("/{username}", func(r chi.Router) {
		r.With(RequirePermissions(authz, types.PermUserView)).Get("/", handler.GetUser)
		r.With(RequirePermissions(authz, types.PermUserModify)).Put("/", handler.UpdateUser)
		r.With(RequirePermissions(authz, types.PermUserDelete)).Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, types.Views(users))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}

func (h *UserHandler) GetSelf(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}
	user, err := principal.User(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Create(r.Context(), principal.Username(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user.View())
}

// UpdateSelf lets the caller change their own password and
// password-change flag. Permissions cannot be changed here.
func (h *UserHandler) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	var req UpdateSelfRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := principal.User(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to fetch user")
		return
	}

	if req.Password != nil && *req.Password != "" {
		if user, err = h.users.SetPassword(r.Context(), user.Username, user.Username, *req.Password); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to update user")
			return
		}
	}
	if req.PasswordChangeRequested != nil {
		if user, err = h.users.SetPasswordChangeRequested(r.Context(), user.Username, *req.PasswordChangeRequested); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to update user")
			return
		}
	}

	writeJSON(w, http.StatusOK, user.View())
}

// UpdateUser changes another account. Requested permissions are validated
// and then limited to what the caller's token can grant.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, raw := range req.Permissions {
		if _, err := types.ParsePermission(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	actor := principal.Username()
	user, err := h.users.Get(ctx, chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to fetch user")
		return
	}
	rename := req.Username != nil && *req.Username != ""
	if rename {
		if err := h.users.CheckRename(ctx, user.Username, *req.Username); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to rename user")
			return
		}
	}

	if req.Password != nil && *req.Password != "" {
		if user, err = h.users.SetPassword(ctx, actor, user.Username, *req.Password); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to update user")
			return
		}
	}
	if req.PasswordChangeRequested != nil {
		if user, err = h.users.SetPasswordChangeRequested(ctx, user.Username, *req.PasswordChangeRequested); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to update user")
			return
		}
	}
	if req.Permissions != nil {
		scope, err := principal.Scope(ctx)
		if err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to load user")
			return
		}
		if user, err = h.users.AssignPermissions(ctx, scope, actor, user.Username, req.Permissions); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to update user")
			return
		}
	}
	if rename {
		if user, err = h.users.Rename(ctx, actor, user.Username, *req.Username); err != nil {
			writeServiceError(w, r, h.log, err, "user", "failed to rename user")
			return
		}
	}

	writeJSON(w, http.StatusOK, user.View())
}

// DeleteUser removes an account and every token it owns.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrCredentialMissing)
		return
	}

	removed, err := h.users.Delete(r.Context(), principal.Username(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "user", "failed to delete user")
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateSelfRequest struct {
	Password                *string `json:"password"`
	PasswordChangeRequested *bool   `json:"password_change_requested"`
}

type UpdateUserRequest struct {
	Username                *string  `json:"username"`
	Password                *string  `json:"password"`
	Permissions             []string `json:"permissions"`
	PasswordChangeRequested *bool    `json:"password_change_requested"`
}
