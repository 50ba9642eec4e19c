package wallet

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
)

// Purpose is why money leaves a balance
type Purpose string

const (
	PurposeTransfer  Purpose = "transfer"
	PurposeRepayment Purpose = "repayment"
	PurposePurchase  Purpose = "purchase"
)

// Movement is one journaled wallet operation, keyed by its client reference
type Movement struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	Reference           string         `db:"reference" json:"reference"`
	Purpose             Purpose        `db:"purpose" json:"purpose"`
	AccountID           uuid.UUID      `db:"account_id" json:"account_id"`
	CounterpartyID      uuid.UUID      `db:"counterparty_id" json:"counterparty_id"`
	SourceKind          balance.Kind   `db:"source_kind" json:"source_kind"`
	DestinationKind     balance.Kind   `db:"destination_kind" json:"destination_kind"`
	Amount              int64          `db:"amount" json:"amount"`
	LedgerTransactionID sql.NullString `db:"ledger_transaction_id" json:"-"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
}

// LedgerReference is the reference posted to the ledger for this movement
func (m *Movement) LedgerReference() string {
	return string(m.Purpose) + "_" + m.Reference
}

// Matches reports whether a retry carries the same operation as m
func (m *Movement) Matches(other *Movement) bool {
	return m.Purpose == other.Purpose &&
		m.AccountID == other.AccountID &&
		m.CounterpartyID == other.CounterpartyID &&
		m.Amount == other.Amount
}
