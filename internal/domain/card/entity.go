package card

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card is a physical payment card identified by its hardware UID
type Card struct {
	UID           string         `db:"uid"`
	DashboardCode string         `db:"dashboard_code"`
	AccountID     uuid.NullUUID  `db:"account_id"`
	Alias         sql.NullString `db:"alias"`
	PinHash       sql.NullString `db:"pin_hash"`
	IsActive      bool           `db:"is_active"`
	LastUsedAt    sql.NullTime   `db:"last_used_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// IsLinked reports whether the card belongs to an account
func (c *Card) IsLinked() bool {
	return c.AccountID.Valid && c.AccountID.UUID != uuid.Nil
}

// OwnedBy reports whether the card is linked to accountID
func (c *Card) OwnedBy(accountID uuid.UUID) bool {
	return c.IsLinked() && c.AccountID.UUID == accountID
}

// NormalizeUID uppercases a hardware UID and drops separators readers add (04:a2:1f -> 04A21F)
func NormalizeUID(uid string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(uid)) {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}
