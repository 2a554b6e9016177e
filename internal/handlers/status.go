package handlers

import "net/http"

type StatusResponse struct {
	Status string `json:"status"`
}

// Healthz reports liveness. It also serves /api/status.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
