package balance

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
)

// Handler handles balance HTTP requests
type Handler struct {
	resolver *Resolver
}

// NewHandler creates balance handler
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Get handles GET /balances
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	summary, err := h.resolver.Summary(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, summary)
}

// Provision handles POST /balances/provision
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if _, err := h.resolver.Provision(r.Context(), accountID); err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.resolver.Summary(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, summary)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, ErrBalanceNotProvisioned):
		response.Conflict(w, "Account balances are not provisioned")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusBadGateway, "LEDGER_UNAVAILABLE", "Balance is temporarily unavailable", err)
	}
}

// Routes returns balance router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Get)
	r.Post("/provision", h.Provision)
	return r
}
