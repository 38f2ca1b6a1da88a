package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/feed"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	store  *book.Store
	mgr    *feed.Manager
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(store *book.Store, mgr *feed.Manager, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, mgr: mgr, logger: logHandler(logger, "health")}
}

// HealthCheck reports liveness plus the two facts a probe cares about: is the
// feed up, and does the book hold data.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"feed":       h.mgr.State().String(),
		"book_valid": h.store.Valid(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
