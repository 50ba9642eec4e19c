package payment

import (
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

type TapRequestBody struct {
	CardUID string `json:"card_uid" validate:"required,max=64"`
	Amount  int64  `json:"amount" validate:"required,gt=0"`
	OrderID string `json:"order_id" validate:"omitempty,max=64"`
	Pin     string `json:"pin,omitempty" validate:"omitempty,pin"`
}

// TapResponse is one of the two non-error tap outcomes
type TapResponse struct {
	Status        Outcome       `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	Balance       *int64        `json:"balance,omitempty"`
	RequiresMomo  bool          `json:"requires_momo"`
	MomoReference *uuid.UUID    `json:"momo_reference,omitempty"`
	Provider      momo.Provider `json:"provider,omitempty"`
	Shortfall     int64         `json:"shortfall,omitempty"`
}

func TapResponseFromResult(r *TapResult) *TapResponse {
	if r.Outcome == OutcomeRequiresMomo {
		ref := r.MomoReference
		return &TapResponse{
			Status:        r.Outcome,
			RequiresMomo:  true,
			MomoReference: &ref,
			Provider:      r.Provider,
			Shortfall:     r.Shortfall,
		}
	}
	bal := r.Balance
	return &TapResponse{
		Status:        r.Outcome,
		TransactionID: r.TransactionID,
		Reference:     r.Reference,
		Balance:       &bal,
	}
}
