package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
)

// Accounts resolves accounts and reads their balances
type Accounts interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*balance.Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*balance.Account, error)
	BalanceID(ctx context.Context, accountID uuid.UUID, kind balance.Kind) (string, error)
	GetWalletBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	GetLoanBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type LedgerPoster interface {
	CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error)
}

type Notifier interface {
	SendTransferReceived(to string, amount int64, currency, reference string)
}

// TransferRequest moves money between two accounts' wallets.
// The recipient is given by account id or by phone.
type TransferRequest struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	ToPhone       string
	Amount        int64
	Reference     string
	Source        balance.Kind
}

type Service struct {
	journal  Journal
	accounts Accounts
	ledger   LedgerPoster
	notifier Notifier
	currency string
	now      func() time.Time
}

func NewService(journal Journal, accounts Accounts, ledgerPoster LedgerPoster, currency string) *Service {
	return &Service{
		journal:  journal,
		accounts: accounts,
		ledger:   ledgerPoster,
		currency: currency,
		now:      time.Now,
	}
}

// SetNotifier sets the recipient SMS notifier (optional)
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Transfer moves wallet funds to another account
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*Movement, error) {
	if req.Source == "" {
		req.Source = balance.KindWallet
	}
	if err := CheckFunding(PurposeTransfer, req.Source); err != nil {
		return nil, err
	}

	recipient, err := s.recipient(ctx, req)
	if err != nil {
		return nil, err
	}
	if recipient.ID == req.FromAccountID {
		return nil, ErrSelfTransfer
	}

	m, err := s.move(ctx, &Movement{
		Reference:       req.Reference,
		Purpose:         PurposeTransfer,
		AccountID:       req.FromAccountID,
		CounterpartyID:  recipient.ID,
		SourceKind:      req.Source,
		DestinationKind: balance.KindWallet,
		Amount:          req.Amount,
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil && recipient.Phone != "" {
		s.notifier.SendTransferReceived(recipient.Phone, m.Amount, s.currency, m.Reference)
	}
	return m, nil
}

// Repay moves wallet funds into the same account's loan balance
func (s *Service) Repay(ctx context.Context, accountID uuid.UUID, amount int64, reference string) (*Movement, error) {
	return s.move(ctx, &Movement{
		Reference:       reference,
		Purpose:         PurposeRepayment,
		AccountID:       accountID,
		CounterpartyID:  accountID,
		SourceKind:      balance.KindWallet,
		DestinationKind: balance.KindLoan,
		Amount:          amount,
	})
}

// PurchaseFromLoan pays a merchant's wallet from the customer's loan balance
func (s *Service) PurchaseFromLoan(ctx context.Context, accountID, merchantID uuid.UUID, amount int64, reference string) (*Movement, error) {
	if err := CheckFunding(PurposePurchase, balance.KindLoan); err != nil {
		return nil, err
	}
	if accountID == merchantID {
		return nil, ErrSelfTransfer
	}
	return s.move(ctx, &Movement{
		Reference:       reference,
		Purpose:         PurposePurchase,
		AccountID:       accountID,
		CounterpartyID:  merchantID,
		SourceKind:      balance.KindLoan,
		DestinationKind: balance.KindWallet,
		Amount:          amount,
	})
}

// History lists movements sent or received by an account, newest first
func (s *Service) History(ctx context.Context, accountID uuid.UUID, limit int) ([]*Movement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.journal.ListByAccount(ctx, accountID, limit)
}

func (s *Service) recipient(ctx context.Context, req TransferRequest) (*balance.Account, error) {
	var (
		account *balance.Account
		err     error
	)
	switch {
	case req.ToAccountID != uuid.Nil:
		account, err = s.accounts.GetAccount(ctx, req.ToAccountID)
	case strings.TrimSpace(req.ToPhone) != "":
		account, err = s.accounts.GetAccountByPhone(ctx, momo.NormalizeMSISDN(req.ToPhone))
	default:
		return nil, ErrRecipientNotFound
	}
	if errors.Is(err, balance.ErrAccountNotFound) {
		return nil, ErrRecipientNotFound
	}
	return account, err
}

// move journals m under its reference and posts it to the ledger once.
// A retry with the same reference returns the first movement, or
// ErrReferenceConflict when the retry describes a different operation.
func (s *Service) move(ctx context.Context, m *Movement) (*Movement, error) {
	if m.Amount <= 0 || strings.TrimSpace(m.Reference) == "" {
		return nil, ErrInvalidAmount
	}
	if err := CheckFunding(m.Purpose, m.SourceKind); err != nil {
		return nil, err
	}

	existing, err := s.journal.GetByReference(ctx, m.AccountID, m.Reference)
	if err != nil {
		return nil, fmt.Errorf("lookup movement: %w", err)
	}
	if existing != nil {
		if !existing.Matches(m) {
			return nil, ErrReferenceConflict
		}
		if existing.LedgerTransactionID.Valid {
			return existing, nil
		}
		return s.post(ctx, existing)
	}

	available, err := s.available(ctx, m.AccountID, m.SourceKind)
	if err != nil {
		return nil, err
	}
	if available < m.Amount {
		return nil, ErrInsufficientFunds
	}

	m.ID = uuid.New()
	m.CreatedAt = s.now()
	if err := s.journal.Create(ctx, m); err != nil {
		if !errors.Is(err, ErrDuplicateReference) {
			return nil, fmt.Errorf("journal movement: %w", err)
		}
		existing, lookupErr := s.journal.GetByReference(ctx, m.AccountID, m.Reference)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil || !existing.Matches(m) {
			return nil, ErrReferenceConflict
		}
		m = existing
	}

	return s.post(ctx, m)
}

func (s *Service) post(ctx context.Context, m *Movement) (*Movement, error) {
	source, err := s.accounts.BalanceID(ctx, m.AccountID, m.SourceKind)
	if err != nil {
		return nil, err
	}
	destination, err := s.accounts.BalanceID(ctx, m.CounterpartyID, m.DestinationKind)
	if err != nil {
		return nil, err
	}

	tx, err := s.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		Amount:      m.Amount,
		Currency:    s.currency,
		Source:      source,
		Destination: destination,
		Reference:   m.LedgerReference(),
		Description: "Wallet " + string(m.Purpose),
		MetaData: map[string]interface{}{
			"type":            "wallet_" + string(m.Purpose),
			"account_id":      m.AccountID.String(),
			"counterparty_id": m.CounterpartyID.String(),
		},
	})
	switch {
	case err == nil:
		if err := s.journal.SetLedgerTransaction(ctx, m.ID, tx.TransactionID); err != nil {
			log.Error().Err(err).Str("movement_id", m.ID.String()).Msg("Failed to record ledger transaction on movement")
		}
		m.LedgerTransactionID.String, m.LedgerTransactionID.Valid = tx.TransactionID, true
	case errors.Is(err, ledger.ErrDuplicateReference):
		log.Info().Str("reference", m.LedgerReference()).Msg("Wallet movement already posted")
	default:
		return nil, fmt.Errorf("post %s: %w", m.Purpose, err)
	}

	log.Info().
		Str("account_id", m.AccountID.String()).
		Str("counterparty_id", m.CounterpartyID.String()).
		Str("purpose", string(m.Purpose)).
		Int64("amount", m.Amount).
		Str("reference", m.Reference).
		Msg("Wallet movement posted")
	return m, nil
}

func (s *Service) available(ctx context.Context, accountID uuid.UUID, kind balance.Kind) (int64, error) {
	if kind == balance.KindLoan {
		return s.accounts.GetLoanBalance(ctx, accountID)
	}
	return s.accounts.GetWalletBalance(ctx, accountID)
}
