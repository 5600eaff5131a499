package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/collate/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workspace.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/tree", func(r chi.Router) {
		r.Get("/", h.Tree)
		r.Get("/info", h.Info)
		r.Post("/scan", h.Scan)
		r.Post("/import", h.Import)
		r.Post("/toggle", h.Toggle)
		r.Post("/check", h.Check)
		r.Post("/select-extension", h.SelectExtension)
		r.Post("/select-all", h.SelectAll)
		r.Post("/deselect-all", h.DeselectAll)
		r.Get("/checked", h.Checked)
		r.Get("/extensions", h.Extensions)
	})

	r.Route("/merge", func(r chi.Router) {
		r.Get("/", h.MergeStatus)
		r.Post("/", h.StartMerge)
		r.Delete("/", h.CancelMerge)
	})

	r.Get("/outputs", h.Outputs)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
