package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lazytree/internal/treeservice"
)

// NewRouter creates a chi router with all tree routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *treeservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/tree", func(r chi.Router) {
		// Children page or filter results.
		r.Get("/getfilter", h.GetFilter)
		r.Get("/getfilter/", h.GetFilter)

		r.Get("/nodes/{id}", h.GetNode)
		r.Post("/create", h.CreateNode)
		r.Patch("/update/{id}", h.UpdateNode)
		r.Delete("/delete/{id}", h.DeleteNode)

		// Move targets.
		r.Get("/dropdown", h.Dropdown)
		r.Get("/dropdown/", h.Dropdown)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
