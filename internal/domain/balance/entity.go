package balance

import (
	"database/sql"

	"github.com/google/uuid"
)

// Kind selects one of an account's two ledger balances
type Kind string

const (
	KindWallet Kind = "wallet"
	KindLoan   Kind = "loan"
)

// Account is owned by the identity subsystem; this service only reads its balance references
type Account struct {
	ID              uuid.UUID      `db:"id"`
	Phone           string         `db:"phone"`
	WalletBalanceID sql.NullString `db:"wallet_balance_id"`
	LoanBalanceID   sql.NullString `db:"loan_balance_id"`
}

// BalanceID returns the ledger balance reference for kind, or "" when not provisioned
func (a *Account) BalanceID(kind Kind) string {
	switch kind {
	case KindWallet:
		if a.WalletBalanceID.Valid {
			return a.WalletBalanceID.String
		}
	case KindLoan:
		if a.LoanBalanceID.Valid {
			return a.LoanBalanceID.String
		}
	}
	return ""
}

// Summary holds both balances of an account in minor units
type Summary struct {
	AccountID uuid.UUID `json:"account_id"`
	Wallet    int64     `json:"wallet"`
	Loan      int64     `json:"loan"`
	Currency  string    `json:"currency"`
}
