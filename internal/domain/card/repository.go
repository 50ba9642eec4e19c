package card

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines card data access interface
type Repository interface {
	Create(ctx context.Context, card *Card) error
	GetByUID(ctx context.Context, uid string) (*Card, error)
	GetByDashboardCode(ctx context.Context, code string) (*Card, error)
	List(ctx context.Context, filter ListFilter) ([]*Card, error)

	// Link assigns the card to accountID unless another account holds it.
	// Returns ErrAlreadyLinked when the conditional update matches nothing.
	Link(ctx context.Context, uid string, accountID uuid.UUID, pinHash string, alias *string) error
	Unlink(ctx context.Context, uid string, accountID uuid.UUID) error
	UpdatePin(ctx context.Context, uid string, pinHash string) error
	SetActive(ctx context.Context, uid string, active bool) error
	Touch(ctx context.Context, uid string, at time.Time) error
}

// ListFilter narrows card listings
type ListFilter struct {
	AccountID  *uuid.UUID
	ActiveOnly bool
	Limit      uint64
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var cardColumns = []string{
	"uid", "dashboard_code", "account_id", "alias", "pin_hash",
	"is_active", "last_used_at", "created_at", "updated_at",
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new card repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, card *Card) error {
	query := `
		INSERT INTO cards (uid, dashboard_code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		card.UID,
		card.DashboardCode,
		card.IsActive,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "cards_dashboard_code_key" {
				return errDuplicateCode
			}
			return errDuplicateUID
		}
		return err
	}
	return nil
}

func (r *repository) GetByUID(ctx context.Context, uid string) (*Card, error) {
	return r.getOne(ctx, sq.Eq{"uid": uid})
}

func (r *repository) GetByDashboardCode(ctx context.Context, code string) (*Card, error) {
	return r.getOne(ctx, sq.Eq{"dashboard_code": code})
}

func (r *repository) getOne(ctx context.Context, where sq.Eq) (*Card, error) {
	query, args, err := psql.Select(cardColumns...).From("cards").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var card Card
	if err := r.db.GetContext(ctx, &card, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Card, error) {
	b := psql.Select(cardColumns...).From("cards").OrderBy("created_at DESC")
	if filter.AccountID != nil {
		b = b.Where(sq.Eq{"account_id": *filter.AccountID})
	}
	if filter.ActiveOnly {
		b = b.Where(sq.Eq{"is_active": true})
	}
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var cards []*Card
	if err := r.db.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *repository) Link(ctx context.Context, uid string, accountID uuid.UUID, pinHash string, alias *string) error {
	query := `
		UPDATE cards
		SET account_id = $2, pin_hash = $3, alias = COALESCE($4, alias), is_active = TRUE, updated_at = NOW()
		WHERE uid = $1 AND (account_id IS NULL OR account_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, uid, accountID, pinHash, alias)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

func (r *repository) Unlink(ctx context.Context, uid string, accountID uuid.UUID) error {
	query := `
		UPDATE cards
		SET account_id = NULL, pin_hash = NULL, alias = NULL, is_active = FALSE, updated_at = NOW()
		WHERE uid = $1 AND account_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, uid, accountID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotLinked
	}
	return nil
}

func (r *repository) UpdatePin(ctx context.Context, uid string, pinHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cards SET pin_hash = $2, updated_at = NOW() WHERE uid = $1`, uid, pinHash)
	return err
}

func (r *repository) SetActive(ctx context.Context, uid string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cards SET is_active = $2, updated_at = NOW() WHERE uid = $1`, uid, active)
	return err
}

func (r *repository) Touch(ctx context.Context, uid string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cards SET last_used_at = $2 WHERE uid = $1`, uid, at)
	return err
}
