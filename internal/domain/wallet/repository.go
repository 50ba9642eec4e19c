package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Journal records wallet movements by client reference
type Journal interface {
	GetByReference(ctx context.Context, accountID uuid.UUID, reference string) (*Movement, error)
	Create(ctx context.Context, m *Movement) error
	SetLedgerTransaction(ctx context.Context, id uuid.UUID, transactionID string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Movement, error)
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByReference(ctx context.Context, accountID uuid.UUID, reference string) (*Movement, error) {
	var m Movement
	err := r.db.GetContext(ctx, &m, `
		SELECT id, reference, purpose, account_id, counterparty_id, source_kind, destination_kind,
		       amount, ledger_transaction_id, created_at
		FROM wallet_movements
		WHERE account_id = $1 AND reference = $2
	`, accountID, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) Create(ctx context.Context, m *Movement) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_movements (id, reference, purpose, account_id, counterparty_id,
			source_kind, destination_kind, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.Reference, string(m.Purpose), m.AccountID, m.CounterpartyID,
		string(m.SourceKind), string(m.DestinationKind), m.Amount, m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *Repository) SetLedgerTransaction(ctx context.Context, id uuid.UUID, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE wallet_movements SET ledger_transaction_id = $1
		WHERE id = $2 AND ledger_transaction_id IS NULL
	`, transactionID, id)
	return err
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Movement, error) {
	var movements []*Movement
	err := r.db.SelectContext(ctx, &movements, `
		SELECT id, reference, purpose, account_id, counterparty_id, source_kind, destination_kind,
		       amount, ledger_transaction_id, created_at
		FROM wallet_movements
		WHERE account_id = $1 OR counterparty_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	return movements, err
}
