package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/types"
)

// RedirectHandler provides HTTP handlers for short-link redirects.
type RedirectHandler struct {
	redirects *services.RedirectService
	log       logging.Logger
}

func NewRedirectHandler(redirects *services.RedirectService, log logging.Logger) *RedirectHandler {
	return &RedirectHandler{redirects: redirects, log: log}
}

// RedirectRouter registers redirect management routes on the given router.
func RedirectRouter(r chi.Router, authz Authorizer, redirects *services.RedirectService, log logging.Logger) {
	handler := NewRedirectHandler(redirects, log)

	r.Get("/", handler.ListRedirects)
	r.With(RequirePermissions(authz, types.PermRedirectCreate)).Post("/", handler.CreateRedirect)
	r.Route("/{redirectID}", func(r chi.Router) {
		r.Get("/", handler.GetRedirect)
		r.With(RequirePermissions(authz, types.PermRedirectModify)).Put("/", handler.UpdateRedirect)
		r.With(RequirePermissions(authz, types.PermRedirectDelete)).Delete("/", handler.DeleteRedirect)
	})
}

// FollowRouter registers the public redirect resolver.
func FollowRouter(r chi.Router, redirects *services.RedirectService, log logging.Logger) {
	handler := NewRedirectHandler(redirects, log)
	r.Get("/*", handler.Follow)
}

func (h *RedirectHandler) ListRedirects(w http.ResponseWriter, r *http.Request) {
	redirects, err := h.redirects.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to list redirects")
		return
	}
	writeJSON(w, http.StatusOK, redirects)
}

func (h *RedirectHandler) GetRedirect(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.redirects.Get(r.Context(), chi.URLParam(r, "redirectID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to fetch redirect")
		return
	}
	writeJSON(w, http.StatusOK, redirect)
}

func (h *RedirectHandler) CreateRedirect(w http.ResponseWriter, r *http.Request) {
	var req types.Redirect
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.redirects.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to create redirect")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RedirectHandler) UpdateRedirect(w http.ResponseWriter, r *http.Request) {
	var req UpdateRedirectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.redirects.Update(r.Context(), chi.URLParam(r, "redirectID"), services.RedirectUpdate{
		Name: req.Name,
		Path: req.Path,
		URL:  req.URL,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to update redirect")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RedirectHandler) DeleteRedirect(w http.ResponseWriter, r *http.Request) {
	if err := h.redirects.Delete(r.Context(), chi.URLParam(r, "redirectID")); err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to delete redirect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Follow answers with a permanent redirect to the target registered for the
// request path.
func (h *RedirectHandler) Follow(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.redirects.Resolve(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "redirect", "failed to resolve redirect")
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusMovedPermanently)
}

type UpdateRedirectRequest struct {
	Name *string `json:"name"`
	Path *string `json:"path"`
	URL  *string `json:"url"`
}
