package topup

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tapcard/tapcard-api/internal/middleware"
)

// Routes returns mobile-money router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/ws", h.WebSocket)
	r.Post("/validate", h.Validate)

	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{reference}", h.Get)
	})

	r.With(middleware.RequireAdmin()).Get("/providers/{provider}/balance", h.ProviderBalance)

	return r
}
