package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrSettlementFailed = errors.New("payment could not be completed")
	ErrTopUpFailed      = errors.New("mobile-money top-up could not be started")
	ErrUnknownMerchant  = errors.New("merchant account not found")
)

// AuthError is a card that cannot pay: unknown, inactive, unlinked or wrong PIN.
// Nothing has moved when it is returned.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "card authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// PolicyError is a tap refused by payment policy before any external call
type PolicyError struct {
	Code      string
	Amount    int64
	Threshold int64
}

const PolicyPinRequired = "pin_required"

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: amount %d exceeds %d", e.Code, e.Amount, e.Threshold)
}
