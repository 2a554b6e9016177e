package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/types"
)

// ModHandler provides HTTP handlers for mods and their versions.
type ModHandler struct {
	mods *services.ModService
	log  logging.Logger
}

func NewModHandler(mods *services.ModService, log logging.Logger) *ModHandler {
	return &ModHandler{mods: mods, log: log}
}

// ModRouter registers mod routes on the given router. Reads are public.
func ModRouter(r chi.Router, authz Authorizer, mods *services.ModService, log logging.Logger) {
	handler := NewModHandler(mods, log)

	r.Get("/", handler.ListMods)
	r.With(RequirePermissions(authz, types.PermModCreate)).Post("/", handler.CreateMod)
	r.Route("/{modID}", func(r chi.Router) {
		r.Get("/", handler.GetMod)
		r.With(RequirePermissions(authz, types.PermModModify)).Put("/", handler.UpdateMod)
		r.With(RequirePermissions(authz, types.PermModDelete)).Delete("/", handler.DeleteMod)

		r.Get("/versions", handler.ListVersions)
		r.With(RequirePermissions(authz, types.PermModModify)).Post("/versions", handler.CreateVersion)
		r.With(RequirePermissions(authz, types.PermModModify)).Delete("/versions", handler.DeleteVersion)

		r.Get("/forge", handler.ForgeUpdate)
	})
}

func (h *ModHandler) ListMods(w http.ResponseWriter, r *http.Request) {
	mods, err := h.mods.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to list mods")
		return
	}
	writeJSON(w, http.StatusOK, mods)
}

func (h *ModHandler) GetMod(w http.ResponseWriter, r *http.Request) {
	mod, err := h.mods.Get(r.Context(), chi.URLParam(r, "modID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to fetch mod")
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

func (h *ModHandler) CreateMod(w http.ResponseWriter, r *http.Request) {
	var req types.Mod
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.mods.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to create mod")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ModHandler) UpdateMod(w http.ResponseWriter, r *http.Request) {
	var req UpdateModRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.mods.Update(r.Context(), chi.URLParam(r, "modID"), services.ModUpdate{
		Name: req.Name,
		URL:  req.URL,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to update mod")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ModHandler) DeleteMod(w http.ResponseWriter, r *http.Request) {
	if err := h.mods.Delete(r.Context(), chi.URLParam(r, "modID")); err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to delete mod")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ModHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.mods.ListVersions(r.Context(), chi.URLParam(r, "modID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *ModHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req CreateVersionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Dependencies == nil {
		req.Dependencies = []types.Dependency{}
	}

	created, err := h.mods.CreateVersion(r.Context(), chi.URLParam(r, "modID"), types.Version{
		ID:           req.ID,
		Name:         req.Name,
		URL:          req.URL,
		Minecraft:    req.Minecraft,
		Recommended:  req.Recommended,
		Changelog:    req.Changelog,
		Loader:       req.Loader,
		Dependencies: req.Dependencies,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "version", "failed to create version")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// DeleteVersion removes the version addressed by the version, loader and
// minecraft query parameters.
func (h *ModHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key := types.VersionKey{
		Mod:       chi.URLParam(r, "modID"),
		ID:        query.Get("version"),
		Minecraft: query.Get("minecraft"),
		Loader:    types.Loader(query.Get("loader")),
	}
	if key.ID == "" || key.Minecraft == "" || !key.Loader.Valid() {
		writeError(w, http.StatusBadRequest, "version, minecraft and a valid loader are required")
		return
	}

	if err := h.mods.DeleteVersion(r.Context(), key); err != nil {
		writeServiceError(w, r, h.log, err, "version", "failed to delete version")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForgeUpdate serves the update JSON polled by the Forge loader.
func (h *ModHandler) ForgeUpdate(w http.ResponseWriter, r *http.Request) {
	update, err := h.mods.ForgeUpdate(r.Context(), chi.URLParam(r, "modID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "mod", "failed to build update json")
		return
	}
	writeJSON(w, http.StatusOK, update)
}

type UpdateModRequest struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

type CreateVersionRequest struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	URL          string             `json:"url"`
	Minecraft    string             `json:"minecraft"`
	Recommended  bool               `json:"recommended"`
	Changelog    string             `json:"changelog"`
	Loader       types.Loader       `json:"loader"`
	Dependencies []types.Dependency `json:"dependencies"`
}
