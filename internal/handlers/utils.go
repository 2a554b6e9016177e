package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextPrincipalKey contextKey = "principal"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func withPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, principal)
}

// PrincipalFromContext returns the principal stored by RequirePermissions.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	principal, ok := ctx.Value(contextPrincipalKey).(*auth.Principal)
	return principal, ok && principal != nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a JSON body, rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if decoder.More() {
		return errors.New("invalid request: unexpected data after body")
	}
	return nil
}

// writeAuthError maps authorization failures to 401 and 403.
func writeAuthError(w http.ResponseWriter, err error) bool {
	var insufficient *auth.InsufficientPermissionError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:   "insufficient permissions",
			Details: types.PermissionStrings(insufficient.Missing),
		})
	case errors.Is(err, auth.ErrInsufficientPermission):
		writeError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, auth.ErrCredentialMissing):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "a token is required for this endpoint")
	case errors.Is(err, auth.ErrCredentialInvalid):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "the provided token is invalid")
	default:
		return false
	}
	return true
}

// writeServiceError maps service and store errors to a response. Anything
// unrecognised is logged and reported as a 500 with fallback as message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error, resource, fallback string) {
	if writeAuthError(w, err) {
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, resource+" already exists")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error(r.Context(), fallback, "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
