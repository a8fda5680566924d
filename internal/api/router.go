package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/attune/internal/rotationservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *rotationservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/targets", func(r chi.Router) {
		r.Get("/", h.ListTargets)
		r.Post("/", h.CreateTarget)
		r.Get("/{id}", h.GetTarget)
		r.Patch("/{id}", h.UpdateTarget)
		r.Delete("/{id}", h.DeleteTarget)
		r.Post("/{id}/refresh", h.RefreshTarget)
	})

	r.Route("/readings/sessions", func(r chi.Router) {
		r.Post("/", h.CreateReadingSession)
		r.Post("/{id}/readings", h.TakeReading)
		r.Get("/{id}/summary", h.ReadingSummary)
		r.Delete("/{id}", h.CloseReadingSession)
	})

	r.Route("/rotations", func(r chi.Router) {
		r.Get("/", h.ListRotations)
		r.Post("/", h.StartRotation)
		r.Get("/{id}", h.GetRotation)
		r.Get("/{id}/queue", h.RotationQueue)
		r.Get("/{id}/stats", h.RotationStats)
		r.Post("/{id}/pause", h.PauseRotation)
		r.Post("/{id}/resume", h.ResumeRotation)
		r.Post("/{id}/stop", h.StopRotation)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
