package topup

import "errors"

var (
	ErrRequestNotFound = errors.New("mobile-money request not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidMSISDN   = errors.New("invalid phone number")
)
