package balance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AccountRepository reads account balance references
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByPhone(ctx context.Context, phone string) (*Account, error)
	SetBalanceIDs(ctx context.Context, id uuid.UUID, walletBalanceID, loanBalanceID string) error
}

type accountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates account repository
func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT id, phone, wallet_balance_id, loan_balance_id FROM accounts WHERE id = $1`

	var a Account
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) GetByPhone(ctx context.Context, phone string) (*Account, error) {
	query := `SELECT id, phone, wallet_balance_id, loan_balance_id FROM accounts WHERE phone = $1`

	var a Account
	if err := r.db.GetContext(ctx, &a, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) SetBalanceIDs(ctx context.Context, id uuid.UUID, walletBalanceID, loanBalanceID string) error {
	query := `
		UPDATE accounts
		SET wallet_balance_id = COALESCE(wallet_balance_id, NULLIF($2, '')),
		    loan_balance_id = COALESCE(loan_balance_id, NULLIF($3, ''))
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, walletBalanceID, loanBalanceID)
	return err
}
