package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/types"
)

// ExportHandler provides HTTP handlers for catalog exports.
type ExportHandler struct {
	exports *services.ExportService
	log     logging.Logger
}

func NewExportHandler(exports *services.ExportService, log logging.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, log: log}
}

// ExportRouter registers export routes. Every route requires admin.
func ExportRouter(r chi.Router, authz Authorizer, exports *services.ExportService, log logging.Logger) {
	handler := NewExportHandler(exports, log)

	r.Use(RequirePermissions(authz, types.PermAdmin))
	r.Get("/", handler.ListExports)
	r.Post("/", handler.CreateExport)
	r.Get("/{name}", handler.GetExport)
	r.Delete("/{name}", handler.DeleteExport)
}

func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.exports.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "export", "failed to list exports")
		return
	}
	writeJSON(w, http.StatusOK, exports)
}

func (h *ExportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	info, err := h.exports.Export(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "export", "failed to export catalog")
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// GetExport streams the stored export document.
func (h *ExportHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reader, err := h.exports.Open(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.log, err, "export", "failed to open export")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.log.Warn(r.Context(), "export download interrupted", "name", name, "err", err)
	}
}

func (h *ExportHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	if err := h.exports.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, r, h.log, err, "export", "failed to delete export")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
