package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/domain/card"
	"github.com/tapcard/tapcard-api/internal/domain/topup"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/logger"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/sms"
)

const DefaultPinThreshold = 5000

// Cards is the card registry as seen by the orchestrator
type Cards interface {
	Authenticate(ctx context.Context, uid string) (*card.Card, error)
	VerifyPin(c *card.Card, pin string) bool
	Touch(ctx context.Context, uid string) error
}

// Accounts resolves account phones, balance references and wallet balances
type Accounts interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*balance.Account, error)
	BalanceID(ctx context.Context, accountID uuid.UUID, kind balance.Kind) (string, error)
	GetWalletBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// LedgerPoster posts settlements
type LedgerPoster interface {
	CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error)
}

// TopUps issues mobile-money push payments
type TopUps interface {
	Initiate(ctx context.Context, in topup.InitiateRequest) (*topup.Request, error)
}

// Notifier delivers payment receipts
type Notifier interface {
	SendPaymentReceipt(to string, r sms.Receipt)
}

// Config holds orchestrator settings
type Config struct {
	PinThreshold int64
	Currency     string
}

// Service is the point-of-sale tap-to-pay orchestrator
type Service struct {
	cards    Cards
	accounts Accounts
	ledger   LedgerPoster
	topups   TopUps
	audit    AuditRepository
	notifier Notifier
	cfg      Config
}

// NewService creates payment orchestrator
func NewService(cards Cards, accounts Accounts, ledgerPoster LedgerPoster, topups TopUps, audit AuditRepository, cfg Config) *Service {
	if cfg.PinThreshold <= 0 {
		cfg.PinThreshold = DefaultPinThreshold
	}
	return &Service{
		cards:    cards,
		accounts: accounts,
		ledger:   ledgerPoster,
		topups:   topups,
		audit:    audit,
		cfg:      cfg,
	}
}

// SetNotifier sets SMS receipt notifier (optional)
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Tap runs one card tap: authenticate, check PIN above the threshold, read the
// wallet, then either settle or request a mobile-money top-up for the shortfall.
// It never retries a failed ledger or provider call.
func (s *Service) Tap(ctx context.Context, req TapRequest) (*TapResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	c, err := s.cards.Authenticate(ctx, req.CardUID)
	if err != nil {
		if isCardError(err) {
			return nil, &AuthError{Err: err}
		}
		return nil, err
	}

	if req.Amount > s.cfg.PinThreshold {
		if req.Pin == "" {
			return nil, &PolicyError{Code: PolicyPinRequired, Amount: req.Amount, Threshold: s.cfg.PinThreshold}
		}
		if !s.cards.VerifyPin(c, req.Pin) {
			return nil, &AuthError{Err: card.ErrInvalidPin}
		}
	}

	accountID := c.AccountID.UUID
	walletBalance, err := s.accounts.GetWalletBalance(ctx, accountID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("card_uid", c.UID).
			Str("account_id", accountID.String()).
			Msg("Wallet balance read failed")
		s.record(ctx, s.entry(AuditSettlementFailed, req, c, func(e *AuditEntry) {
			e.Detail = nullString("balance read: " + err.Error())
		}))
		return nil, ErrSettlementFailed
	}

	// checked before branching so an unknown merchant never triggers a push payment
	merchantWallet, err := s.accounts.BalanceID(ctx, req.MerchantID, balance.KindWallet)
	if err != nil {
		if errors.Is(err, balance.ErrAccountNotFound) {
			return nil, ErrUnknownMerchant
		}
		return nil, s.settlementFailed(ctx, req, c, "merchant balance", err)
	}

	if walletBalance >= req.Amount {
		return s.settle(ctx, req, c, walletBalance, merchantWallet)
	}
	return s.fallback(ctx, req, c, walletBalance)
}

// settle posts customer wallet -> merchant wallet. The balance read and this
// posting are two separate ledger calls, so concurrent taps on one card can
// both pass the balance check; the ledger offers no compare-and-post to close it.
func (s *Service) settle(ctx context.Context, req TapRequest, c *card.Card, walletBalance int64, destination string) (*TapResult, error) {
	accountID := c.AccountID.UUID

	source, err := s.accounts.BalanceID(ctx, accountID, balance.KindWallet)
	if err != nil {
		return nil, s.settlementFailed(ctx, req, c, "customer balance", err)
	}
	reference := "pos_" + uuid.NewString()
	meta := map[string]interface{}{
		"type":        "pos_payment",
		"card_uid":    c.UID,
		"merchant_id": req.MerchantID.String(),
	}
	if req.OrderID != "" {
		meta["order_id"] = req.OrderID
	}
	if req.TerminalID != "" {
		meta["terminal_id"] = req.TerminalID
	}

	tx, err := s.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		Amount:      req.Amount,
		Currency:    s.cfg.Currency,
		Source:      source,
		Destination: destination,
		Reference:   reference,
		Description: "POS payment",
		MetaData:    meta,
	})
	if err != nil {
		return nil, s.settlementFailed(ctx, req, c, "ledger posting "+reference, err)
	}

	if err := s.cards.Touch(ctx, c.UID); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("card_uid", c.UID).Msg("Failed to update card last-used time")
	}

	newBalance := walletBalance - req.Amount
	logger.FromContext(ctx).Info().
		Str("card_uid", c.UID).
		Str("account_id", accountID.String()).
		Str("merchant_id", req.MerchantID.String()).
		Str("reference", reference).
		Int64("amount", req.Amount).
		Msg("POS payment settled")

	s.notifyReceipt(ctx, accountID, req, reference, newBalance)

	return &TapResult{
		Outcome:       OutcomeSuccess,
		TransactionID: tx.TransactionID,
		Reference:     reference,
		Balance:       newBalance,
	}, nil
}

// fallback requests the shortfall from the payer's mobile-money account. Nothing settles here.
func (s *Service) fallback(ctx context.Context, req TapRequest, c *card.Card, walletBalance int64) (*TapResult, error) {
	shortfall := req.Amount - walletBalance

	account, err := s.accounts.GetAccount(ctx, c.AccountID.UUID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("account_id", c.AccountID.UUID.String()).Msg("Account lookup failed")
		return nil, ErrTopUpFailed
	}

	provider := momo.DetectCarrier(account.Phone)
	if provider == momo.ProviderUnknown {
		s.record(ctx, s.entry(AuditFallbackFailed, req, c, func(e *AuditEntry) {
			e.Shortfall = sql.NullInt64{Int64: shortfall, Valid: true}
			e.Detail = nullString(momo.ErrUnknownCarrier.Error())
		}))
		return nil, fmt.Errorf("%w: %w", ErrTopUpFailed, momo.ErrUnknownCarrier)
	}

	merchantID := req.MerchantID
	pending, err := s.topups.Initiate(ctx, topup.InitiateRequest{
		AccountID:  account.ID,
		MSISDN:     account.Phone,
		Amount:     shortfall,
		MerchantID: &merchantID,
		OrderID:    req.OrderID,
	})
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("card_uid", c.UID).
			Str("provider", provider.String()).
			Int64("shortfall", shortfall).
			Msg("Mobile-money fallback failed")
		s.record(ctx, s.entry(AuditFallbackFailed, req, c, func(e *AuditEntry) {
			e.Shortfall = sql.NullInt64{Int64: shortfall, Valid: true}
			e.Provider = nullString(provider.String())
			e.Detail = nullString(err.Error())
		}))
		return nil, fmt.Errorf("%w: %w", ErrTopUpFailed, err)
	}

	s.record(ctx, s.entry(AuditFallbackPending, req, c, func(e *AuditEntry) {
		e.Shortfall = sql.NullInt64{Int64: shortfall, Valid: true}
		e.Provider = nullString(pending.Provider.String())
		e.MomoReference = uuid.NullUUID{UUID: pending.Reference, Valid: true}
	}))

	logger.FromContext(ctx).Info().
		Str("card_uid", c.UID).
		Str("momo_reference", pending.Reference.String()).
		Str("provider", pending.Provider.String()).
		Int64("amount", req.Amount).
		Int64("shortfall", shortfall).
		Msg("Insufficient wallet balance, mobile-money top-up requested")

	return &TapResult{
		Outcome:       OutcomeRequiresMomo,
		Balance:       walletBalance,
		MomoReference: pending.Reference,
		Provider:      pending.Provider,
		Shortfall:     shortfall,
	}, nil
}

// ListAudit returns recorded tap follow-ups
func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return s.audit.List(ctx, filter)
}

func (s *Service) settlementFailed(ctx context.Context, req TapRequest, c *card.Card, stage string, err error) error {
	logger.FromContext(ctx).Error().Err(err).
		Str("card_uid", c.UID).
		Str("merchant_id", req.MerchantID.String()).
		Str("stage", stage).
		Int64("amount", req.Amount).
		Msg("POS settlement failed")
	s.record(ctx, s.entry(AuditSettlementFailed, req, c, func(e *AuditEntry) {
		e.Detail = nullString(stage + ": " + err.Error())
	}))
	return ErrSettlementFailed
}

func (s *Service) notifyReceipt(ctx context.Context, accountID uuid.UUID, req TapRequest, reference string, newBalance int64) {
	if s.notifier == nil {
		return
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil || account.Phone == "" {
		logger.FromContext(ctx).Warn().Err(err).Str("account_id", accountID.String()).Msg("Receipt skipped: no phone")
		return
	}
	s.notifier.SendPaymentReceipt(account.Phone, sms.Receipt{
		Amount:    req.Amount,
		Balance:   newBalance,
		Currency:  s.cfg.Currency,
		Merchant:  merchantLabel(req),
		Reference: reference,
	})
}

func (s *Service) entry(event AuditEvent, req TapRequest, c *card.Card, fill func(e *AuditEntry)) *AuditEntry {
	e := &AuditEntry{
		Event:      event,
		CardUID:    c.UID,
		AccountID:  c.AccountID,
		MerchantID: req.MerchantID,
		OrderID:    nullString(req.OrderID),
		Amount:     req.Amount,
	}
	if req.TerminalID != "" {
		e.Metadata, _ = json.Marshal(map[string]string{"terminal_id": req.TerminalID})
	}
	if fill != nil {
		fill(e)
	}
	return e
}

func (s *Service) record(ctx context.Context, e *AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, e); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("event", string(e.Event)).
			Str("card_uid", e.CardUID).
			Msg("Failed to write payment audit entry")
	}
}

func isCardError(err error) bool {
	return errors.Is(err, card.ErrNotRecognized) ||
		errors.Is(err, card.ErrInactive) ||
		errors.Is(err, card.ErrNotLinked) ||
		errors.Is(err, card.ErrInvalidUID)
}

func merchantLabel(req TapRequest) string {
	if req.TerminalID != "" {
		return req.TerminalID
	}
	return "merchant " + req.MerchantID.String()[:8]
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
