package card

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns card router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Post("/register", h.Register)
	r.Post("/link", h.Link)
	r.Post("/unlink", h.Unlink)
	r.Put("/{uid}/pin", h.ChangePin)
	r.Patch("/{uid}/active", h.SetActive)

	return r
}
