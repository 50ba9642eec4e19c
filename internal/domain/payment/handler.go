package payment

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/card"
	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/jwt"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

// Handler handles point-of-sale HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Tap handles POST /api/v1/payments/tap
func (h *Handler) Tap(w http.ResponseWriter, r *http.Request) {
	merchantID := middleware.GetAccountID(r.Context())
	if merchantID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req TapRequestBody
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	result, err := h.service.Tap(r.Context(), TapRequest{
		CardUID:    req.CardUID,
		Amount:     req.Amount,
		MerchantID: merchantID,
		OrderID:    req.OrderID,
		Pin:        req.Pin,
		TerminalID: middleware.GetTerminalID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.Outcome == OutcomeRequiresMomo {
		response.Accepted(w, TapResponseFromResult(result))
		return
	}
	response.OK(w, TapResponseFromResult(result))
}

// ListAudit handles GET /api/v1/payments/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	filter := AuditFilter{}
	if middleware.GetRole(r.Context()) != jwt.RoleAdmin {
		filter.MerchantID = &accountID
	}
	q := r.URL.Query()
	if ev := q.Get("event"); ev != "" {
		event := AuditEvent(ev)
		filter.Event = &event
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			response.BadRequest(w, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	if limit, err := strconv.ParseUint(q.Get("limit"), 10, 64); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.ParseUint(q.Get("offset"), 10, 64); err == nil {
		filter.Offset = offset
	}

	entries, err := h.service.ListAudit(r.Context(), filter)
	if err != nil {
		errorhandler.LogDatabaseError(r.Context(), "list payment audit", err)
		response.InternalError(w)
		return
	}
	if entries == nil {
		entries = []*AuditEntry{}
	}
	response.OK(w, entries)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *AuthError
	var policyErr *PolicyError
	switch {
	case errors.As(err, &policyErr):
		response.Error(w, http.StatusForbidden, "PIN_REQUIRED", "PIN is required for this amount")
	case errors.As(err, &authErr):
		switch {
		case errors.Is(err, card.ErrNotRecognized), errors.Is(err, card.ErrInvalidUID):
			response.Error(w, http.StatusNotFound, "CARD_NOT_RECOGNIZED", "Card not recognized")
		case errors.Is(err, card.ErrInactive):
			response.Error(w, http.StatusForbidden, "CARD_INACTIVE", "Card is inactive")
		case errors.Is(err, card.ErrNotLinked):
			response.Error(w, http.StatusForbidden, "CARD_NOT_LINKED", "Card is not linked to an account")
		case errors.Is(err, card.ErrInvalidPin):
			response.Error(w, http.StatusUnauthorized, "INVALID_PIN", "Invalid PIN")
		default:
			response.Error(w, http.StatusForbidden, "CARD_DECLINED", "Card declined")
		}
	case errors.Is(err, ErrInvalidAmount):
		response.ValidationError(w, map[string]string{"amount": ErrInvalidAmount.Error()})
	case errors.Is(err, ErrUnknownMerchant):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_MERCHANT", "Merchant account not found")
	case errors.Is(err, momo.ErrUnknownCarrier):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_CARRIER", "Insufficient balance and no supported mobile-money operator for this account")
	case errors.Is(err, ErrTopUpFailed):
		response.BadGateway(w, "MOMO_UNAVAILABLE", "Insufficient balance and mobile-money top-up could not be started")
	case errors.Is(err, ErrSettlementFailed):
		response.BadGateway(w, "PAYMENT_FAILED", "Payment could not be completed")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}

// Routes returns payments router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, idempotency func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.With(middleware.RequireTerminal(), idempotency).Post("/tap", h.Tap)
	r.With(middleware.RequireRole(jwt.RoleMerchant, jwt.RoleAdmin)).Get("/audit", h.ListAudit)

	return r
}
