// Package http provides the local control API for groups, sharing and the
// organizer, and mounts the store proxy behind it.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/atinyakov/CoOrganizer/internal/service"
	"github.com/go-chi/chi/v5"
)

// GroupService defines the group operations required by GroupHandler.
type GroupService interface {
	Groups() []models.Group
	FindByFingerprint(fp models.Fingerprint) (models.Group, bool)
	CreateGroup(ctx context.Context, name string) (models.Group, error)
	JoinGroup(ctx context.Context, input string) (models.Group, error)
	LeaveGroup(ctx context.Context, fp models.Fingerprint) (models.Group, error)
	MoveGroup(ctx context.Context, from, to int) bool
	GenerateInviteCode(g models.Group) string
	InviteMessage(g models.Group) string
}

// GroupHandler handles the /api/groups endpoints.
type GroupHandler struct {
	Groups GroupService
}

// GroupView is a group as shown over the API. The key is never included;
// it is only handed out inside an invite.
type GroupView struct {
	Name        string             `json:"name"`
	Fingerprint models.Fingerprint `json:"fingerprint"`
	CreatedAt   int64              `json:"createdAt"`
}

func viewOf(g models.Group) GroupView {
	return GroupView{Name: g.Name, Fingerprint: g.Fingerprint, CreatedAt: g.CreatedAt}
}

// InviteView carries the invite code and its chat-ready message.
type InviteView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// List handles GET /api/groups.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups := h.Groups.Groups()
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, viewOf(g))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/groups with {"name": ...}.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	g, err := h.Groups.CreateGroup(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(g))
}

// Join handles POST /api/groups/join with {"invite": ...}. The invite may be
// the bare code or a pasted chat message containing it.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Invite string `json:"invite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	g, err := h.Groups.JoinGroup(r.Context(), req.Invite)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(g))
}

// Leave handles DELETE /api/groups/{fingerprint}.
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	fp := models.Fingerprint(chi.URLParam(r, "fingerprint"))
	g, err := h.Groups.LeaveGroup(r.Context(), fp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(g))
}

// Invite handles GET /api/groups/{fingerprint}/invite.
func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	g, ok := h.Groups.FindByFingerprint(models.Fingerprint(chi.URLParam(r, "fingerprint")))
	if !ok {
		writeError(w, service.ErrGroupNotFound)
		return
	}
	writeJSON(w, http.StatusOK, InviteView{
		Code:    h.Groups.GenerateInviteCode(g),
		Message: h.Groups.InviteMessage(g),
	})
}

// Move handles POST /api/groups/move with {"from": i, "to": j}.
func (h *GroupHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From *int `json:"from"`
		To   *int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == nil || req.To == nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	moved := h.Groups.MoveGroup(r.Context(), *req.From, *req.To)
	writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto status codes. User-facing messages
// are passed through; anything unexpected becomes a bare 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *service.ValidationError
		terr *service.TransportError
		serr *service.StoreError
	)
	switch {
	case errors.As(err, &verr), service.IsInvalidInvite(err), errors.Is(err, service.ErrNothingToShare):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrGroupNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &terr), errors.As(err, &serr), errors.Is(err, service.ErrNoShareURL):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
