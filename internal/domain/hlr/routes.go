package hlr

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns account-facing lookup routes
func (h *Handler) Routes(accountMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(accountMiddleware)

	r.Post("/", h.Save)
	r.Get("/", h.List)
	r.Post("/{id}/run", h.Run)
	r.Get("/{id}/status", h.Status)
	r.Get("/{id}/download", h.Download)

	return r
}
