package balance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
)

// LedgerClient is the part of the ledger API the resolver needs
type LedgerClient interface {
	GetBalance(ctx context.Context, balanceID string) (*ledger.Balance, error)
	CreateBalance(ctx context.Context, req ledger.BalanceRequest) (*ledger.Balance, error)
}

// Resolver reads account balances from the ledger. Every read goes to the ledger; nothing is cached.
type Resolver struct {
	accounts AccountRepository
	ledger   LedgerClient
	ledgerID string
	currency string
}

// NewResolver creates balance resolver
func NewResolver(accounts AccountRepository, ledgerClient LedgerClient, ledgerID, currency string) *Resolver {
	return &Resolver{
		accounts: accounts,
		ledger:   ledgerClient,
		ledgerID: ledgerID,
		currency: currency,
	}
}

// GetAccount returns the account or ErrAccountNotFound
func (r *Resolver) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByPhone resolves an account by its stored phone number
func (r *Resolver) GetAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	account, err := r.accounts.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// BalanceID returns the ledger balance reference of kind for accountID
func (r *Resolver) BalanceID(ctx context.Context, accountID uuid.UUID, kind Kind) (string, error) {
	account, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	id := account.BalanceID(kind)
	if id == "" {
		return "", fmt.Errorf("%w: %s %s", ErrBalanceNotProvisioned, accountID, kind)
	}
	return id, nil
}

// GetWalletBalance reads the account's wallet balance
func (r *Resolver) GetWalletBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return r.get(ctx, accountID, KindWallet)
}

// GetLoanBalance reads the account's loan balance
func (r *Resolver) GetLoanBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return r.get(ctx, accountID, KindLoan)
}

func (r *Resolver) get(ctx context.Context, accountID uuid.UUID, kind Kind) (int64, error) {
	balanceID, err := r.BalanceID(ctx, accountID, kind)
	if err != nil {
		return 0, err
	}

	bal, err := r.ledger.GetBalance(ctx, balanceID)
	if err != nil {
		return 0, fmt.Errorf("read %s balance %s: %w", kind, balanceID, err)
	}
	return bal.Balance.Int64(), nil
}

// Summary reads both balances
func (r *Resolver) Summary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	wallet, err := r.GetWalletBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	loan, err := r.GetLoanBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Summary{AccountID: accountID, Wallet: wallet, Loan: loan, Currency: r.currency}, nil
}

// Provision creates whichever of the account's ledger balances is missing
func (r *Resolver) Provision(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	account, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var walletID, loanID string
	if account.BalanceID(KindWallet) == "" {
		if walletID, err = r.create(ctx, account, KindWallet); err != nil {
			return nil, err
		}
	}
	if account.BalanceID(KindLoan) == "" {
		if loanID, err = r.create(ctx, account, KindLoan); err != nil {
			return nil, err
		}
	}
	if walletID == "" && loanID == "" {
		return account, nil
	}

	if err := r.accounts.SetBalanceIDs(ctx, accountID, walletID, loanID); err != nil {
		return nil, err
	}
	log.Info().
		Str("account_id", accountID.String()).
		Str("wallet_balance_id", walletID).
		Str("loan_balance_id", loanID).
		Msg("ledger balances provisioned")

	return r.GetAccount(ctx, accountID)
}

func (r *Resolver) create(ctx context.Context, account *Account, kind Kind) (string, error) {
	bal, err := r.ledger.CreateBalance(ctx, ledger.BalanceRequest{
		LedgerID:   r.ledgerID,
		IdentityID: account.ID.String(),
		Currency:   r.currency,
		MetaData: map[string]interface{}{
			"account_id": account.ID.String(),
			"kind":       string(kind),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create %s balance: %w", kind, err)
	}
	return bal.BalanceID, nil
}
