package http

import (
	"net/http"

	"github.com/atinyakov/CoOrganizer/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handlers bundles what NewRouter mounts. A nil Proxy leaves non-API paths
// unrouted.
type Handlers struct {
	Groups    *GroupHandler
	Share     *ShareHandler
	Organizer *OrganizerHandler
	Proxy     http.Handler
}

// NewRouter builds the control API and mounts the store proxy as the
// fallback for every other path.
//
// Routes:
//
//	GET    /livez
//	GET    /api/groups
//	POST   /api/groups
//	POST   /api/groups/join
//	POST   /api/groups/move
//	DELETE /api/groups/{fingerprint}
//	GET    /api/groups/{fingerprint}/invite
//	POST   /api/share
//	GET    /api/organizer
//	GET    /api/organizer/stats
//	*      /*  → store proxy
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/livez", handleLiveness)

	r.Route("/api", func(r chi.Router) {
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.Groups.List)
			r.Get("/{fingerprint}/invite", h.Groups.Invite)
			r.Delete("/{fingerprint}", h.Groups.Leave)

			// Only allow requests with Content-Type: application/json
			r.With(chiMiddleware.AllowContentType("application/json")).Group(func(r chi.Router) {
				r.Post("/", h.Groups.Create)
				r.Post("/join", h.Groups.Join)
				r.Post("/move", h.Groups.Move)
			})
		})
		r.With(chiMiddleware.AllowContentType("application/json")).Post("/share", h.Share.Share)
		r.Get("/organizer", h.Organizer.List)
		r.Get("/organizer/stats", h.Organizer.ImportStats)
	})

	if h.Proxy != nil {
		r.Handle("/*", h.Proxy)
	}
	return r
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
