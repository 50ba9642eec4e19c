package payment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

// Outcome of a tap
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeRequiresMomo Outcome = "requires_momo"
)

// TapRequest is what a point-of-sale terminal sends for one card tap
type TapRequest struct {
	CardUID    string
	Amount     int64
	MerchantID uuid.UUID
	OrderID    string
	Pin        string
	TerminalID string
}

// TapResult is the non-error result of a tap: settled, or waiting on a mobile-money top-up
type TapResult struct {
	Outcome       Outcome
	TransactionID string
	Reference     string
	Balance       int64

	MomoReference uuid.UUID
	Provider      momo.Provider
	Shortfall     int64
}

// AuditEvent names a recorded tap outcome that needs follow-up
type AuditEvent string

const (
	AuditFallbackPending  AuditEvent = "fallback_pending"
	AuditFallbackFailed   AuditEvent = "fallback_failed"
	AuditSettlementFailed AuditEvent = "settlement_failed"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// AuditEntry is one row of payment_audit_log
type AuditEntry struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Event         AuditEvent     `db:"event" json:"event"`
	CardUID       string         `db:"card_uid" json:"card_uid"`
	AccountID     uuid.NullUUID  `db:"account_id" json:"account_id,omitempty"`
	MerchantID    uuid.UUID      `db:"merchant_id" json:"merchant_id"`
	OrderID       sql.NullString `db:"order_id" json:"order_id,omitempty"`
	Amount        int64          `db:"amount" json:"amount"`
	Shortfall     sql.NullInt64  `db:"shortfall" json:"shortfall,omitempty"`
	Provider      sql.NullString `db:"provider" json:"provider,omitempty"`
	MomoReference uuid.NullUUID  `db:"momo_reference" json:"momo_reference,omitempty"`
	Detail        sql.NullString `db:"detail" json:"detail,omitempty"`
	Metadata      JSONRawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
