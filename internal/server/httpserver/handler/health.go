package handler

import "net/http"

// handleHealth answers 503 while the most recent save has failed.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Dirty:    h.engine.Dirty(),
		LastSave: h.engine.LastSave().UTC(),
	}
	if err := h.engine.LastSaveStatus(); err != nil {
		resp.Status = "degraded"
		resp.LastSaveError = err.Error()
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "last save failed", resp)
		return
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}
