package campaign

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns account-facing campaign routes
func (h *Handler) Routes(accountMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(accountMiddleware)

	r.Post("/", h.Create)
	r.Post("/estimate", h.Estimate)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/waves", h.Waves)

	return r
}
