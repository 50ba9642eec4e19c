package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

type transferRequest struct {
	ToAccountID *uuid.UUID `json:"to_account_id"`
	ToPhone     string     `json:"to_phone" validate:"omitempty,msisdn"`
	Amount      int64      `json:"amount" validate:"required,gt=0"`
	Reference   string     `json:"reference" validate:"required,max=64"`
	Source      string     `json:"source" validate:"omitempty,oneof=wallet loan"`
}

type repayRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"required,max=64"`
}

type purchaseRequest struct {
	MerchantID uuid.UUID `json:"merchant_id" validate:"required"`
	Amount     int64     `json:"amount" validate:"required,gt=0"`
	Reference  string    `json:"reference" validate:"required,max=64"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Transfer handles POST /wallet/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req transferRequest
	if !decode(w, r, &req) {
		return
	}

	in := TransferRequest{
		FromAccountID: accountID,
		ToPhone:       req.ToPhone,
		Amount:        req.Amount,
		Reference:     req.Reference,
		Source:        balance.Kind(req.Source),
	}
	if req.ToAccountID != nil {
		in.ToAccountID = *req.ToAccountID
	}

	m, err := h.svc.Transfer(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, m)
}

// Repay handles POST /wallet/repay
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req repayRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.svc.Repay(r.Context(), accountID, req.Amount, req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, m)
}

// Purchase handles POST /wallet/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.svc.PurchaseFromLoan(r.Context(), accountID, req.MerchantID, req.Amount, req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, m)
}

// History handles GET /wallet/movements
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.svc.History(r.Context(), accountID, limit)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
		return
	}
	if movements == nil {
		movements = []*Movement{}
	}
	response.OK(w, movements)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := response.DecodeJSON(r.Body, v); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return false
	}
	if errs := validator.Validate(v); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "amount must be greater than zero and reference is required")
	case errors.Is(err, ErrLoanNotTransferable):
		response.Error(w, http.StatusForbidden, "LOAN_NOT_TRANSFERABLE", "Loan balance can only fund purchases and repayments")
	case errors.Is(err, ErrSelfTransfer):
		response.BadRequest(w, "cannot transfer to the same account")
	case errors.Is(err, ErrRecipientNotFound):
		response.NotFound(w, "Recipient not found")
	case errors.Is(err, ErrInsufficientFunds):
		response.Error(w, http.StatusConflict, "INSUFFICIENT_FUNDS", "Insufficient balance")
	case errors.Is(err, ErrReferenceConflict):
		response.Conflict(w, "reference already used for a different operation")
	case errors.Is(err, balance.ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, balance.ErrBalanceNotProvisioned):
		response.Conflict(w, "Account balances are not provisioned")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusBadGateway, "LEDGER_UNAVAILABLE", "Wallet operation failed", err)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, idempotency func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(idempotency).Post("/transfer", h.Transfer)
	r.With(idempotency).Post("/repay", h.Repay)
	r.With(idempotency).Post("/purchase", h.Purchase)
	r.Get("/movements", h.History)
	return r
}
