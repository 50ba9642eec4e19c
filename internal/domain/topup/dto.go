package topup

import (
	"time"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

type CreateTopUpRequest struct {
	MSISDN string `json:"msisdn" validate:"required,msisdn"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

type ValidateAccountRequest struct {
	MSISDN string `json:"msisdn" validate:"required,msisdn"`
}

type RequestResponse struct {
	Reference    uuid.UUID     `json:"reference"`
	Provider     momo.Provider `json:"provider"`
	Status       momo.Status   `json:"status"`
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	MSISDN       string        `json:"msisdn"`
	OrderID      string        `json:"order_id,omitempty"`
	Message      string        `json:"message,omitempty"`
	Credited     bool          `json:"credited"`
	PollAttempts int           `json:"poll_attempts"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func RequestResponseFromEntity(r *Request) *RequestResponse {
	return &RequestResponse{
		Reference:    r.Reference,
		Provider:     r.Provider,
		Status:       r.Status,
		Amount:       r.Amount,
		Currency:     r.Currency,
		MSISDN:       r.MSISDN,
		OrderID:      r.OrderID.String,
		Message:      r.ProviderMessage.String,
		Credited:     r.CreditedAt.Valid,
		PollAttempts: r.PollAttempts,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type AccountValidationResponse struct {
	MSISDN   string        `json:"msisdn"`
	Provider momo.Provider `json:"provider"`
	Active   bool          `json:"active"`
	Name     string        `json:"name,omitempty"`
}

type ProviderBalanceResponse struct {
	Provider  momo.Provider `json:"provider"`
	Available string        `json:"available"`
	Currency  string        `json:"currency"`
}
