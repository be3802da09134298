package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/server/config"
	"github.com/yndnr/tidekv/internal/server/respserver"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
)

// Keyspace reports keyspace counters.
type Keyspace interface {
	Stats() keyspace.Stats
}

// Clients reports RESP connection counters.
type Clients interface {
	Stats() respserver.Stats
}

// Persistence is the storage engine as seen by the admin API.
type Persistence interface {
	Save(ctx context.Context) (*snapshot.Info, error)
	Snapshots(ctx context.Context) ([]*snapshot.Info, error)
	Status() storage.Status
}

// Deps are the components the handlers read from. Only Keyspace is
// required.
type Deps struct {
	Keyspace    Keyspace
	Clients     Clients
	Persistence Persistence

	// Config returns the running configuration; it is sanitized before
	// being served.
	Config func() *config.ServerConfig
}

// Handler serves the admin API.
type Handler struct {
	deps    Deps
	logger  *slog.Logger
	mux     *http.ServeMux
	started time.Time
	ready   atomic.Bool
}

// New creates a new Handler. It reports not ready until SetReady(true).
func New(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		deps:    deps,
		logger:  logger,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	h.registerRoutes()
	return h
}

// SetReady flips the readiness probe. The server is ready once recovery
// finished and the RESP listener accepts connections.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status", h.handleStatus)
	h.mux.HandleFunc("GET /admin/v1/snapshots", h.handleListSnapshots)
	h.mux.HandleFunc("POST /admin/v1/snapshots", h.handleCreateSnapshot)
	h.mux.HandleFunc("GET /admin/v1/config", h.handleConfig)
}

// writeJSON writes a JSON response with the standard envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID(r), data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes an error response with the standard envelope. It is
// exported for the middlewares, which share the format.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(requestID(r), code, message))
}

// handlePersistenceError maps storage errors onto HTTP responses.
func (h *Handler) handlePersistenceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSaveInProgress):
		WriteError(w, r, http.StatusConflict, CodeSaveInProgress, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, r, http.StatusServiceUnavailable, CodeSnapshotFailed, err.Error())
	default:
		logger.L(r.Context()).Error("snapshot failed", "error", err)
		WriteError(w, r, http.StatusInternalServerError, CodeSnapshotFailed, "snapshot failed: "+err.Error())
	}
}

func requestID(r *http.Request) string {
	return logger.RequestIDFromContext(r.Context())
}
