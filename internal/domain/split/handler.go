package split

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
	"github.com/tapcard/tapcard-api/internal/pkg/storage"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

type BookOrderRequest struct {
	CustomerAccountID uuid.UUID `json:"customer_account_id" validate:"required"`
	RetailerAccountID uuid.UUID `json:"retailer_account_id" validate:"required"`
	Total             int64     `json:"total" validate:"required,gt=0"`
	FromLoan          bool      `json:"from_loan"`
}

// Handler handles revenue split HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates split handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Book handles POST /orders/{orderID}/split
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookOrderRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	result, err := h.service.BookOrder(r.Context(), OrderSplit{
		OrderID:           chi.URLParam(r, "orderID"),
		Total:             req.Total,
		CustomerAccountID: req.CustomerAccountID,
		RetailerAccountID: req.RetailerAccountID,
		FromLoan:          req.FromLoan,
	})
	if err != nil {
		var partial *PartialPostingError
		switch {
		case errors.As(err, &partial):
			errorhandler.LogExternalServiceError(r.Context(), "ledger", "split/"+partial.FailedLeg.Name, 0, err, "")
			details := map[string]string{"failed_leg": partial.FailedLeg.Name}
			for _, leg := range partial.Posted {
				details[leg.Name] = leg.Reference
			}
			response.ErrorWithDetails(w, http.StatusBadGateway, "SPLIT_PARTIAL", "Split stopped after posting some legs", details)
		case errors.Is(err, ErrInvalidTotal), errors.Is(err, ErrInvalidOrderID):
			response.BadRequest(w, err.Error())
		case errors.Is(err, balance.ErrAccountNotFound):
			response.NotFound(w, "Account not found")
		case errors.Is(err, balance.ErrBalanceNotProvisioned), errors.Is(err, ErrMissingBalance):
			response.Conflict(w, "Account balances are not provisioned")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusBadGateway, "LEDGER_UNAVAILABLE", "Split could not be booked", err)
		}
		return
	}

	response.Created(w, result)
}

// ListFailures handles GET /orders/split-failures
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListFailures(r.Context())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
		return
	}
	response.OK(w, keys)
}

// GetFailure handles GET /orders/split-failures/*
func (h *Handler) GetFailure(w http.ResponseWriter, r *http.Request) {
	key := failurePrefix + chi.URLParam(r, "*")
	rec, err := h.service.GetFailure(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(w, "Failure record not found")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
		return
	}
	response.OK(w, rec)
}

// Routes returns split router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())

	r.Post("/{orderID}/split", h.Book)
	r.Get("/split-failures", h.ListFailures)
	r.Get("/split-failures/*", h.GetFailure)

	return r
}
