package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantera/tradesim/internal/book"
)

// BookHandler serves read-only views of the live order book.
type BookHandler struct {
	store  *book.Store
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(store *book.Store, logger *slog.Logger) *BookHandler {
	return &BookHandler{store: store, logger: logHandler(logger, "book")}
}

// GetBook returns the top of the book, bounded by the "depth" query parameter
// (default 10 levels per side).
// GET /api/book
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	if !h.store.Valid() {
		writeError(w, http.StatusServiceUnavailable, "order book has no data")
		return
	}

	depth := queryInt(r, "depth", book.DefaultDepthLevels)
	bids := h.store.Bids()
	asks := h.store.Asks()
	if len(bids) > depth {
		bids = bids[:depth]
	}
	if len(asks) > depth {
		asks = asks[:depth]
	}

	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"venue":     snap.Venue,
		"symbol":    snap.Symbol,
		"bids":      bids,
		"asks":      asks,
		"timestamp": snap.Timestamp,
	})
}

// GetStats returns the book's derived metrics in one consistent view.
// GET /api/book/stats
func (h *BookHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.store.Stats()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "order book has no data")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
