package topup

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/errorhandler"
	"github.com/tapcard/tapcard-api/internal/pkg/jwt"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/response"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Handler handles mobile-money HTTP and websocket requests
type Handler struct {
	service  *Service
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates top-up handler
func NewHandler(service *Service, hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// Create handles POST /momo/requests
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateTopUpRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	created, err := h.service.Initiate(r.Context(), InitiateRequest{
		AccountID: accountID,
		MSISDN:    req.MSISDN,
		Amount:    req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Accepted(w, RequestResponseFromEntity(created))
}

// List handles GET /momo/requests
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	filter := ListFilter{}
	if middleware.GetRole(r.Context()) == jwt.RoleMerchant || middleware.GetRole(r.Context()) == jwt.RoleTerminal {
		filter.MerchantID = &accountID
	} else {
		filter.AccountID = &accountID
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := momo.Status(s)
		filter.Status = &status
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*RequestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, RequestResponseFromEntity(item))
	}
	response.OK(w, out)
}

// Get handles GET /momo/requests/{reference}; ?refresh=true polls the provider first
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reference, err := uuid.Parse(chi.URLParam(r, "reference"))
	if err != nil {
		response.BadRequest(w, "Invalid reference")
		return
	}

	req, err := h.service.Get(r.Context(), reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !canView(r, accountID, req) {
		response.NotFound(w, "Request not found")
		return
	}

	if r.URL.Query().Get("refresh") == "true" && !req.Status.IsFinal() {
		polled, err := h.service.Poll(r.Context(), reference)
		if err != nil {
			errorhandler.LogExternalServiceError(r.Context(), req.Provider.String(), "check_status", 0, err, "")
		}
		if polled != nil {
			req = polled
		}
	}

	response.OK(w, RequestResponseFromEntity(req))
}

// Validate handles POST /momo/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateAccountRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidationError(r.Context(), w, errs)
		return
	}

	info, provider, err := h.service.ValidateAccount(r.Context(), req.MSISDN)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, &AccountValidationResponse{
		MSISDN:   momo.NormalizeMSISDN(req.MSISDN),
		Provider: provider,
		Active:   info.Active,
		Name:     info.Name,
	})
}

// ProviderBalance handles GET /momo/providers/{provider}/balance
func (h *Handler) ProviderBalance(w http.ResponseWriter, r *http.Request) {
	provider := momo.ParseProvider(chi.URLParam(r, "provider"))
	if provider == momo.ProviderUnknown {
		response.NotFound(w, "Unknown provider")
		return
	}

	bal, err := h.service.ProviderBalance(r.Context(), provider)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, &ProviderBalanceResponse{
		Provider:  provider,
		Available: bal.Available.StringFixed(2),
		Currency:  bal.Currency,
	})
}

// WebSocket handles GET /momo/ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Connection{
		AccountID: accountID,
		Conn:      conn,
		Send:      make(chan []byte, 64),
	}
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go h.wsReader(client)
	go h.wsWriter(client)
}

// wsReader only drains control frames; clients do not send events
func (h *Handler) wsReader(client *Connection) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("account_id", client.AccountID.String()).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *Handler) wsWriter(client *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func canView(r *http.Request, accountID uuid.UUID, req *Request) bool {
	if middleware.GetRole(r.Context()) == jwt.RoleAdmin {
		return true
	}
	if req.AccountID == accountID {
		return true
	}
	return req.MerchantID.Valid && req.MerchantID.UUID == accountID
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var providerErr *momo.ProviderError
	switch {
	case errors.Is(err, ErrInvalidAmount):
		response.ValidationError(w, map[string]string{"amount": ErrInvalidAmount.Error()})
	case errors.Is(err, ErrInvalidMSISDN):
		response.ValidationError(w, map[string]string{"msisdn": ErrInvalidMSISDN.Error()})
	case errors.Is(err, momo.ErrUnknownCarrier):
		response.Error(w, http.StatusUnprocessableEntity, "UNKNOWN_CARRIER", "Phone number does not belong to a supported mobile-money operator")
	case errors.Is(err, momo.ErrProviderUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "Mobile-money provider is not available")
	case errors.Is(err, ErrRequestNotFound):
		response.NotFound(w, "Request not found")
	case errors.As(err, &providerErr):
		errorhandler.LogExternalServiceError(r.Context(), providerErr.Provider.String(), providerErr.Op, providerErr.StatusCode, err, providerErr.Message)
		response.BadGateway(w, "PROVIDER_ERROR", providerErr.Message)
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
