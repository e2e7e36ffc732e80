package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/atinyakov/CoOrganizer/internal/intercept"
	"github.com/atinyakov/CoOrganizer/internal/models"
)

// OrganizerLister returns imported items, newest first.
type OrganizerLister interface {
	List(ctx context.Context, limit int) ([]models.OrganizerItem, error)
}

// StatsProvider exposes interceptor counters.
type StatsProvider interface {
	Stats() intercept.Stats
}

// OrganizerHandler serves what the store proxy has imported.
type OrganizerHandler struct {
	Organizer OrganizerLister
	Stats     StatsProvider
}

// List handles GET /api/organizer?limit=N.
func (h *OrganizerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	items, err := h.Organizer.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.OrganizerItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ImportStats handles GET /api/organizer/stats.
func (h *OrganizerHandler) ImportStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		writeJSON(w, http.StatusOK, intercept.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, h.Stats.Stats())
}
