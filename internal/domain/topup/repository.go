package topup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

// Repository defines mobile-money request data access interface
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByReference(ctx context.Context, reference uuid.UUID) (*Request, error)
	List(ctx context.Context, filter ListFilter) ([]*Request, error)

	// ListUnresolved returns pending requests and successful ones not yet credited, oldest first
	ListUnresolved(ctx context.Context, limit uint64) ([]*Request, error)

	// Resolve moves a PENDING request to a final status; false if it was already final
	Resolve(ctx context.Context, reference uuid.UUID, status momo.Status, message string) (bool, error)
	IncrementAttempts(ctx context.Context, reference uuid.UUID) error

	// MarkCredited records the wallet credit once; false if it was already recorded
	MarkCredited(ctx context.Context, reference uuid.UUID, at time.Time) (bool, error)
}

// ListFilter narrows request listings
type ListFilter struct {
	AccountID  *uuid.UUID
	MerchantID *uuid.UUID
	Status     *momo.Status
	Limit      uint64
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var requestColumns = []string{
	"reference", "provider", "provider_reference", "msisdn", "amount", "currency",
	"account_id", "merchant_id", "order_id", "status", "provider_message",
	"poll_attempts", "credited_at", "created_at", "updated_at",
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates mobile-money request repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	query, args, err := psql.Insert("momo_requests").
		Columns("reference", "provider", "provider_reference", "msisdn", "amount", "currency",
			"account_id", "merchant_id", "order_id", "status", "created_at", "updated_at").
		Values(req.Reference, req.Provider, req.ProviderReference, req.MSISDN, req.Amount, req.Currency,
			req.AccountID, req.MerchantID, req.OrderID, req.Status, req.CreatedAt, req.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *repository) GetByReference(ctx context.Context, reference uuid.UUID) (*Request, error) {
	query, args, err := psql.Select(requestColumns...).
		From("momo_requests").
		Where(sq.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var req Request
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	b := psql.Select(requestColumns...).From("momo_requests").OrderBy("created_at DESC")
	if filter.AccountID != nil {
		b = b.Where(sq.Eq{"account_id": *filter.AccountID})
	}
	if filter.MerchantID != nil {
		b = b.Where(sq.Eq{"merchant_id": *filter.MerchantID})
	}
	if filter.Status != nil {
		b = b.Where(sq.Eq{"status": *filter.Status})
	}
	limit := filter.Limit
	if limit == 0 || limit > 100 {
		limit = 20
	}
	b = b.Limit(limit)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var out []*Request
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListUnresolved(ctx context.Context, limit uint64) ([]*Request, error) {
	query, args, err := psql.Select(requestColumns...).
		From("momo_requests").
		Where(sq.Or{
			sq.Eq{"status": momo.StatusPending},
			sq.And{sq.Eq{"status": momo.StatusSuccessful}, sq.Eq{"credited_at": nil}},
		}).
		OrderBy("created_at ASC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}

	var out []*Request
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Resolve(ctx context.Context, reference uuid.UUID, status momo.Status, message string) (bool, error) {
	query := `
		UPDATE momo_requests
		SET status = $2, provider_message = NULLIF($3, ''), updated_at = NOW()
		WHERE reference = $1 AND status = 'PENDING'
	`
	result, err := r.db.ExecContext(ctx, query, reference, status, message)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *repository) IncrementAttempts(ctx context.Context, reference uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE momo_requests SET poll_attempts = poll_attempts + 1, updated_at = NOW() WHERE reference = $1
	`, reference)
	return err
}

func (r *repository) MarkCredited(ctx context.Context, reference uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE momo_requests SET credited_at = $2, updated_at = NOW()
		WHERE reference = $1 AND credited_at IS NULL
	`, reference, at)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
