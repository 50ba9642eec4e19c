package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrLoanNotTransferable = errors.New("loan balance can only fund purchases and repayments")
	ErrSelfTransfer        = errors.New("cannot transfer to the same account")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrReferenceConflict   = errors.New("reference conflicts with a different operation")
)
