package card

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

// Handler handles card HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates card handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register handles POST /cards/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	card, err := h.service.Register(r.Context(), req.UID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, CardResponseFromEntity(card))
}

// Link handles POST /cards/link
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req LinkRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	card, err := h.service.Link(r.Context(), accountID, req.UID, req.Pin, req.Alias)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, CardResponseFromEntity(card))
}

// Unlink handles POST /cards/unlink
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req UnlinkRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	if err := h.service.Unlink(r.Context(), accountID, req.UID, req.Pin); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w)
}

// ChangePin handles PUT /cards/{uid}/pin
func (h *Handler) ChangePin(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req ChangePinRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	if err := h.service.ChangePin(r.Context(), accountID, chi.URLParam(r, "uid"), req.OldPin, req.NewPin); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w)
}

// SetActive handles PATCH /cards/{uid}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req SetActiveRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	card, err := h.service.SetActive(r.Context(), accountID, chi.URLParam(r, "uid"), *req.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, CardResponseFromEntity(card))
}

// List handles GET /cards
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	cards, err := h.service.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]*CardResponse, 0, len(cards))
	for _, c := range cards {
		items = append(items, CardResponseFromEntity(c))
	}
	response.OK(w, items)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidUID):
		response.BadRequest(w, "Invalid card UID")
	case errors.Is(err, ErrInvalidPinFormat):
		response.ValidationError(w, map[string]string{"pin": ErrInvalidPinFormat.Error()})
	case errors.Is(err, ErrNotRecognized):
		response.NotFound(w, "Card not found")
	case errors.Is(err, ErrNotLinked):
		response.Forbidden(w, "Card is not linked to this account")
	case errors.Is(err, ErrAlreadyLinked):
		response.Conflict(w, "Card is linked to another account")
	case errors.Is(err, ErrInvalidPin):
		response.Error(w, http.StatusUnauthorized, "INVALID_PIN", "Invalid PIN")
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
