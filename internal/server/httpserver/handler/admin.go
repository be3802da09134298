package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/infra/buildinfo"
	"github.com/yndnr/tidekv/internal/server/config"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
)

// handleStatus handles GET /admin/v1/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ks := h.deps.Keyspace.Stats()
	resp := StatusResponse{
		Build:     buildinfo.Get(),
		StartedAt: h.started.UTC(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
		Keyspace: KeyspaceStatus{
			Keys:         ks.Keys,
			VolatileKeys: ks.Volatile,
			ExpiredKeys:  ks.Expired,
		},
	}
	if h.deps.Clients != nil {
		st := h.deps.Clients.Stats()
		resp.Clients = &st
	}
	if h.deps.Persistence != nil {
		st := h.deps.Persistence.Status()
		resp.Persistence = &st
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleListSnapshots handles GET /admin/v1/snapshots, newest first.
func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.deps.Persistence == nil {
		WriteError(w, r, http.StatusNotFound, CodePersistenceDisabled, domain.ErrPersistenceDisabled.Error())
		return
	}
	snaps, err := h.deps.Persistence.Snapshots(r.Context())
	if err != nil {
		h.handlePersistenceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, SnapshotList{Snapshots: snaps, Total: len(snaps)})
}

// handleCreateSnapshot handles POST /admin/v1/snapshots. The snapshot is
// taken synchronously, like SAVE.
func (h *Handler) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.deps.Persistence == nil {
		WriteError(w, r, http.StatusNotFound, CodePersistenceDisabled, domain.ErrPersistenceDisabled.Error())
		return
	}
	info, err := h.deps.Persistence.Save(r.Context())
	if err != nil {
		h.handlePersistenceError(w, r, err)
		return
	}
	logger.L(r.Context()).Info("snapshot created via admin api",
		"snapshot_id", info.ID,
		"keys", info.KeyCount,
	)
	h.writeJSON(w, r, http.StatusCreated, info)
}

// handleConfig handles GET /admin/v1/config.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	if h.deps.Config == nil {
		WriteError(w, r, http.StatusNotFound, CodeBadRequest, "configuration not available")
		return
	}
	h.writeJSON(w, r, http.StatusOK, config.Sanitize(h.deps.Config()))
}
