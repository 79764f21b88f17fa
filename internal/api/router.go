package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted. Bearer token
// auth is enforced when token is non-empty.
func NewRouter(svc *Service, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(token != "", token))

	// Pipeline stages.
	r.Post("/convert", h.Convert)
	r.Post("/build", h.Build)

	// Run history.
	r.Get("/runs", h.Runs)

	// Workspace probes.
	r.Get("/exists", h.Exists)

	return r
}
