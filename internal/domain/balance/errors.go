package balance

import "errors"

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrBalanceNotProvisioned = errors.New("ledger balance not provisioned for account")
)
