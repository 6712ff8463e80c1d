package presence

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Lister is the read side of the ledger.
type Lister interface {
	ListByRoom(ctx context.Context, room string, activeOnly bool) ([]Record, error)
}

type Handler struct {
	store Lister
}

// NewHandler serves the ledger. A nil store means the ledger is disabled.
func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// GetRoomPresence handles GET /api/rooms/{room}/presence[?active=true].
func (h *Handler) GetRoomPresence(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "presence ledger is disabled", http.StatusServiceUnavailable)
		return
	}

	room := chi.URLParam(r, "room")
	activeOnly := r.URL.Query().Get("active") == "true"

	records, err := h.store.ListByRoom(r.Context(), room, activeOnly)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
