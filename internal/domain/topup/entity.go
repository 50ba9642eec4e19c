package topup

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

// Request is one mobile-money push payment, resolved later by status polling
type Request struct {
	Reference         uuid.UUID      `db:"reference"`
	Provider          momo.Provider  `db:"provider"`
	ProviderReference sql.NullString `db:"provider_reference"`
	MSISDN            string         `db:"msisdn"`
	Amount            int64          `db:"amount"`
	Currency          string         `db:"currency"`
	AccountID         uuid.UUID      `db:"account_id"`
	MerchantID        uuid.NullUUID  `db:"merchant_id"`
	OrderID           sql.NullString `db:"order_id"`
	Status            momo.Status    `db:"status"`
	ProviderMessage   sql.NullString `db:"provider_message"`
	PollAttempts      int            `db:"poll_attempts"`
	CreditedAt        sql.NullTime   `db:"credited_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// LedgerReference is the idempotency key of the wallet credit for this request
func (r *Request) LedgerReference() string {
	return "momo_" + r.Reference.String()
}

// NeedsCredit reports a successful top-up whose wallet credit has not been recorded
func (r *Request) NeedsCredit() bool {
	return r.Status == momo.StatusSuccessful && !r.CreditedAt.Valid
}
