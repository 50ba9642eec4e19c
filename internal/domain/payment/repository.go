package payment

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AuditRepository defines payment audit log access
type AuditRepository interface {
	Record(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditFilter narrows audit listings
type AuditFilter struct {
	MerchantID *uuid.UUID
	Event      *AuditEvent
	Since      *time.Time
	Limit      uint64
	Offset     uint64
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates payment audit repository
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, e *AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var metadata interface{}
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}

	query := `
		INSERT INTO payment_audit_log (id, event, card_uid, account_id, merchant_id, order_id, amount,
			shortfall, provider, momo_reference, detail, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Event,
		e.CardUID,
		e.AccountID,
		e.MerchantID,
		e.OrderID,
		e.Amount,
		e.Shortfall,
		e.Provider,
		e.MomoReference,
		e.Detail,
		metadata,
		e.CreatedAt,
	)
	return err
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	b := psql.Select("*").From("payment_audit_log").OrderBy("created_at DESC")
	if filter.MerchantID != nil {
		b = b.Where(sq.Eq{"merchant_id": *filter.MerchantID})
	}
	if filter.Event != nil {
		b = b.Where(sq.Eq{"event": *filter.Event})
	}
	if filter.Since != nil {
		b = b.Where(sq.GtOrEq{"created_at": *filter.Since})
	}
	limit := filter.Limit
	if limit == 0 || limit > 200 {
		limit = 50
	}
	b = b.Limit(limit).Offset(filter.Offset)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var out []*AuditEntry
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
