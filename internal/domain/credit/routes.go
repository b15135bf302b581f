package credit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns account-facing credit routes
func (h *Handler) Routes(accountMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(accountMiddleware)

	r.Get("/balance", h.Balance)
	r.Get("/history", h.History)

	return r
}

// AdminRoutes returns admin-only credit routes
func (h *Handler) AdminRoutes(adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(adminMiddleware)

	r.Post("/adjust", h.Adjust)
	r.Post("/grant-all", h.GrantAll)
	r.Get("/log", h.AdminLog)

	return r
}
