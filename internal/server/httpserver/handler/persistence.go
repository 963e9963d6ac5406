package handler

import (
	"net/http"

	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	replID, err := h.engine.ReplID(r.Context())
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}
	resp := InfoResponse{
		Version:        buildinfo.Version,
		ServerVersion:  buildinfo.ServerVersion(),
		ReplID:         replID,
		Dirty:          h.engine.Dirty(),
		LastSave:       h.engine.LastSave().UTC(),
		LastSaveStatus: "ok",
		SnapshotDir:    h.engine.Snapshots().Dir(),
	}
	if err := h.engine.LastSaveStatus(); err != nil {
		resp.LastSaveStatus = "err"
		resp.LastSaveError = err.Error()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := h.engine.Snapshots().List()
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}
	if infos == nil {
		infos = []*snapshot.Info{}
	}
	h.writeJSON(w, r, http.StatusOK, infos)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Save(r.Context())
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("save requested over http", "snapshot", info.ID, "size", info.Size)
	h.writeJSON(w, r, http.StatusOK, SaveResponse{
		ID:       info.ID,
		Path:     info.Path,
		Size:     info.Size,
		Keys:     info.Keys,
		Duration: info.Duration.String(),
	})
}
