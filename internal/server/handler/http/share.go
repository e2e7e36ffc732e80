package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/atinyakov/CoOrganizer/internal/service"
)

// ShareService uploads transactions to the store.
type ShareService interface {
	Share(ctx context.Context, txs []models.Transaction, group *models.Group) (service.ShareResult, error)
}

// GroupFinder resolves a fingerprint to a group the user belongs to.
type GroupFinder interface {
	FindByFingerprint(fp models.Fingerprint) (models.Group, bool)
}

// ShareHandler handles POST /api/share.
type ShareHandler struct {
	Sharer ShareService
	Groups GroupFinder
}

// ShareRequest selects the transactions to share and, optionally, the group
// to encrypt them for.
type ShareRequest struct {
	Group        models.Fingerprint   `json:"group,omitempty"`
	Transactions []models.Transaction `json:"transactions"`
}

// Share uploads the selected transactions and returns the link.
func (h *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var group *models.Group
	if req.Group != "" {
		g, ok := h.Groups.FindByFingerprint(req.Group)
		if !ok {
			writeError(w, service.ErrGroupNotFound)
			return
		}
		group = &g
	}

	res, err := h.Sharer.Share(r.Context(), req.Transactions, group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
