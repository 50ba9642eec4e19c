package topup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/sms"
)

const defaultPendingTTL = 30 * time.Minute

// Gateways resolves a provider adapter
type Gateways interface {
	Get(provider momo.Provider) (momo.Gateway, error)
}

// LedgerPoster posts the wallet credit of a successful top-up
type LedgerPoster interface {
	CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error)
}

// BalanceIDs resolves an account's ledger balance reference
type BalanceIDs interface {
	BalanceID(ctx context.Context, accountID uuid.UUID, kind balance.Kind) (string, error)
}

// Notifier delivers top-up SMS messages
type Notifier interface {
	SendTopUpRequested(to string, t sms.TopUp)
	SendTopUpSuccessful(to string, t sms.TopUp)
	SendTopUpFailed(to string, t sms.TopUp)
}

// Publisher fans out realtime status events
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// Waker nudges the status-poll worker
type Waker interface {
	Wake(ctx context.Context)
}

// Config holds top-up settings
type Config struct {
	Currency string
	// FloatBalanceID is the ledger balance funding successful top-ups
	FloatBalanceID string
	PendingTTL     time.Duration
}

// InitiateRequest is a push payment for an account
type InitiateRequest struct {
	AccountID  uuid.UUID
	MSISDN     string
	Amount     int64
	MerchantID *uuid.UUID
	OrderID    string
}

// Service issues push payments and resolves them by polling the provider
type Service struct {
	repo     Repository
	gateways Gateways
	ledger   LedgerPoster
	balances BalanceIDs
	notifier Notifier
	events   Publisher
	waker    Waker
	cfg      Config
	now      func() time.Time
}

// NewService creates top-up service
func NewService(repo Repository, gateways Gateways, ledgerPoster LedgerPoster, balances BalanceIDs, cfg Config) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &Service{
		repo:     repo,
		gateways: gateways,
		ledger:   ledgerPoster,
		balances: balances,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetNotifier sets SMS notifier (optional)
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPublisher sets realtime event publisher (optional)
func (s *Service) SetPublisher(p Publisher) {
	s.events = p
}

// SetWaker sets worker wake-up (optional)
func (s *Service) SetWaker(w Waker) {
	s.waker = w
}

// Initiate detects the payer's carrier, issues the push payment and stores it as PENDING
func (s *Service) Initiate(ctx context.Context, in InitiateRequest) (*Request, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !momo.IsValidMSISDN(in.MSISDN) {
		return nil, ErrInvalidMSISDN
	}
	msisdn := momo.NormalizeMSISDN(in.MSISDN)

	provider := momo.DetectCarrier(msisdn)
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	reference := uuid.New()
	result, err := gw.RequestPayment(ctx, momo.PaymentRequest{
		Reference:    reference.String(),
		MSISDN:       msisdn,
		Amount:       in.Amount,
		Currency:     s.cfg.Currency,
		PayerMessage: "Wallet top-up",
		PayeeNote:    payeeNote(in.OrderID),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	req := &Request{
		Reference: reference,
		Provider:  provider,
		MSISDN:    msisdn,
		Amount:    in.Amount,
		Currency:  s.cfg.Currency,
		AccountID: in.AccountID,
		Status:    momo.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if result.ProviderReference != "" {
		req.ProviderReference = sql.NullString{String: result.ProviderReference, Valid: true}
	}
	if in.MerchantID != nil {
		req.MerchantID = uuid.NullUUID{UUID: *in.MerchantID, Valid: true}
	}
	if in.OrderID != "" {
		req.OrderID = sql.NullString{String: in.OrderID, Valid: true}
	}

	if err := s.repo.Create(ctx, req); err != nil {
		log.Error().Err(err).
			Str("reference", reference.String()).
			Str("provider", provider.String()).
			Int64("amount", in.Amount).
			Msg("Push payment issued but not stored")
		return nil, fmt.Errorf("store momo request: %w", err)
	}

	log.Info().
		Str("reference", reference.String()).
		Str("provider", provider.String()).
		Str("account_id", in.AccountID.String()).
		Int64("amount", in.Amount).
		Msg("Mobile-money push payment requested")

	if s.notifier != nil {
		s.notifier.SendTopUpRequested(msisdn, s.topUpMessage(req))
	}
	s.publish(ctx, EventRequested, req)
	if s.waker != nil {
		s.waker.Wake(ctx)
	}

	return req, nil
}

// Get returns a stored request
func (s *Service) Get(ctx context.Context, reference uuid.UUID) (*Request, error) {
	req, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// List returns requests matching filter
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Request, error) {
	return s.repo.List(ctx, filter)
}

// Poll asks the provider for the request's status and applies it.
// A SUCCESSFUL request credits the account wallet exactly once.
func (s *Service) Poll(ctx context.Context, reference uuid.UUID) (*Request, error) {
	req, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, req)
}

// PollPending resolves up to limit unresolved requests, oldest first.
// It returns how many were processed; per-request errors are logged.
func (s *Service) PollPending(ctx context.Context, limit uint64) (int, error) {
	reqs, err := s.repo.ListUnresolved(ctx, limit)
	if err != nil {
		return 0, err
	}

	for _, req := range reqs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if _, err := s.resolve(ctx, req); err != nil {
			log.Warn().Err(err).
				Str("reference", req.Reference.String()).
				Str("provider", req.Provider.String()).
				Msg("Momo status poll failed")
		}
	}
	return len(reqs), nil
}

func (s *Service) resolve(ctx context.Context, req *Request) (*Request, error) {
	if req.Status == momo.StatusPending {
		if err := s.checkProvider(ctx, req); err != nil {
			return req, err
		}
	}
	if req.NeedsCredit() {
		if err := s.credit(ctx, req); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (s *Service) checkProvider(ctx context.Context, req *Request) error {
	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return err
	}

	providerRef := req.Reference.String()
	if req.ProviderReference.Valid {
		providerRef = req.ProviderReference.String
	}

	result, err := gw.CheckStatus(ctx, providerRef)
	if err != nil {
		s.countAttempt(ctx, req)
		if s.expired(req) {
			return s.finish(ctx, req, momo.StatusFailed, "request expired without confirmation")
		}
		return err
	}

	if !result.Status.IsFinal() {
		s.countAttempt(ctx, req)
		if s.expired(req) {
			return s.finish(ctx, req, momo.StatusFailed, "request expired without confirmation")
		}
		return nil
	}

	return s.finish(ctx, req, result.Status, result.Reason)
}

func (s *Service) finish(ctx context.Context, req *Request, status momo.Status, message string) error {
	changed, err := s.repo.Resolve(ctx, req.Reference, status, message)
	if err != nil {
		return err
	}
	if !changed {
		// another poller got there first
		fresh, err := s.Get(ctx, req.Reference)
		if err != nil {
			return err
		}
		*req = *fresh
		return nil
	}

	req.Status = status
	if message != "" {
		req.ProviderMessage = sql.NullString{String: message, Valid: true}
	}
	req.UpdatedAt = s.now()

	if status == momo.StatusFailed {
		log.Info().
			Str("reference", req.Reference.String()).
			Str("provider", req.Provider.String()).
			Str("reason", message).
			Msg("Mobile-money request failed")
		if s.notifier != nil {
			s.notifier.SendTopUpFailed(req.MSISDN, s.topUpMessage(req))
		}
		s.publish(ctx, EventFailed, req)
	}
	return nil
}

func (s *Service) credit(ctx context.Context, req *Request) error {
	walletID, err := s.balances.BalanceID(ctx, req.AccountID, balance.KindWallet)
	if err != nil {
		return fmt.Errorf("resolve wallet: %w", err)
	}

	meta := map[string]interface{}{
		"type":           "momo_topup",
		"provider":       req.Provider.String(),
		"momo_reference": req.Reference.String(),
		"account_id":     req.AccountID.String(),
	}
	if req.OrderID.Valid {
		meta["order_id"] = req.OrderID.String
	}

	_, err = s.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Source:         s.cfg.FloatBalanceID,
		Destination:    walletID,
		Reference:      req.LedgerReference(),
		Description:    "Mobile-money top-up",
		AllowOverdraft: true,
		MetaData:       meta,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		log.Error().Err(err).
			Str("reference", req.Reference.String()).
			Str("ledger_reference", req.LedgerReference()).
			Msg("Top-up wallet credit failed")
		return fmt.Errorf("credit wallet: %w", err)
	}

	at := s.now()
	first, err := s.repo.MarkCredited(ctx, req.Reference, at)
	if err != nil {
		return err
	}
	req.CreditedAt = sql.NullTime{Time: at, Valid: true}
	if !first {
		return nil
	}

	log.Info().
		Str("reference", req.Reference.String()).
		Str("account_id", req.AccountID.String()).
		Int64("amount", req.Amount).
		Msg("Top-up credited to wallet")

	if s.notifier != nil {
		s.notifier.SendTopUpSuccessful(req.MSISDN, s.topUpMessage(req))
	}
	s.publish(ctx, EventSucceeded, req)
	return nil
}

// ValidateAccount checks with the payer's operator that msisdn can pay
func (s *Service) ValidateAccount(ctx context.Context, msisdn string) (*momo.AccountInfo, momo.Provider, error) {
	if !momo.IsValidMSISDN(msisdn) {
		return nil, momo.ProviderUnknown, ErrInvalidMSISDN
	}
	normalized := momo.NormalizeMSISDN(msisdn)
	provider := momo.DetectCarrier(normalized)
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, provider, err
	}
	info, err := gw.ValidateAccount(ctx, normalized)
	if err != nil {
		return nil, provider, err
	}
	return info, provider, nil
}

// ProviderBalance returns the collection account balance at provider
func (s *Service) ProviderBalance(ctx context.Context, provider momo.Provider) (*momo.AccountBalance, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	return gw.GetBalance(ctx)
}

func (s *Service) countAttempt(ctx context.Context, req *Request) {
	if err := s.repo.IncrementAttempts(ctx, req.Reference); err != nil {
		log.Warn().Err(err).Str("reference", req.Reference.String()).Msg("Failed to count poll attempt")
		return
	}
	req.PollAttempts++
}

func (s *Service) expired(req *Request) bool {
	return s.now().Sub(req.CreatedAt) > s.cfg.PendingTTL
}

func (s *Service) publish(ctx context.Context, t EventType, req *Request) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, newEvent(t, req, s.now()))
}

func (s *Service) topUpMessage(req *Request) sms.TopUp {
	return sms.TopUp{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Provider:  providerName(req.Provider),
		Reference: req.Reference.String()[:8],
		Reason:    req.ProviderMessage.String,
	}
}

func providerName(p momo.Provider) string {
	switch p {
	case momo.ProviderMTN:
		return "MTN MoMo"
	case momo.ProviderAirtel:
		return "Airtel Money"
	default:
		return string(p)
	}
}

func payeeNote(orderID string) string {
	if orderID == "" {
		return "Top-up"
	}
	return "Order " + orderID
}
