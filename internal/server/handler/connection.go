package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/feed"
)

// ConnectionHandler exposes feed lifecycle control and status.
type ConnectionHandler struct {
	mgr    *feed.Manager
	store  *book.Store
	logger *slog.Logger
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(mgr *feed.Manager, store *book.Store, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{mgr: mgr, store: store, logger: logHandler(logger, "connection")}
}

// Status returns the connection stats together with the current book view.
// GET /api/status
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"connection": h.mgr.Stats(),
	}
	if stats, ok := h.store.Stats(); ok {
		resp["book"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Connect starts the feed. A no-op when already running.
// POST /api/connect
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Connect(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.InfoContext(r.Context(), "feed connect requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"state": h.mgr.State().String()})
}

// Disconnect stops the feed. A no-op when already stopped.
// POST /api/disconnect
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.InfoContext(r.Context(), "feed disconnect requested")
	writeJSON(w, http.StatusOK, map[string]string{"state": h.mgr.State().String()})
}
