package payment

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/domain/card"
	"github.com/tapcard/tapcard-api/internal/domain/topup"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/momo"
	"github.com/tapcard/tapcard-api/internal/pkg/pinhash"
	"github.com/tapcard/tapcard-api/internal/pkg/sms"
)

type fakeCards struct {
	cards   map[string]*card.Card
	touched []string
}

func (f *fakeCards) Authenticate(ctx context.Context, uid string) (*card.Card, error) {
	c, ok := f.cards[uid]
	switch {
	case !ok:
		return nil, card.ErrNotRecognized
	case !c.IsActive:
		return nil, card.ErrInactive
	case !c.IsLinked():
		return nil, card.ErrNotLinked
	}
	return c, nil
}

func (f *fakeCards) VerifyPin(c *card.Card, pin string) bool {
	return c.PinHash.Valid && pinhash.Verify(pin, c.PinHash.String)
}

func (f *fakeCards) Touch(ctx context.Context, uid string) error {
	f.touched = append(f.touched, uid)
	return nil
}

// fakeLedger keeps balances so settlements are observable
type fakeLedger struct {
	balances map[string]int64
	txs      []ledger.TransactionRequest
	err      error
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.txs = append(f.txs, req)
	f.balances[req.Source] -= req.Amount
	f.balances[req.Destination] += req.Amount
	return &ledger.Transaction{TransactionID: "txn_" + req.Reference, Reference: req.Reference}, nil
}

type fakeAccounts struct {
	accounts map[uuid.UUID]*balance.Account
	ledger   *fakeLedger
	readErr  error
}

func (f *fakeAccounts) GetAccount(ctx context.Context, id uuid.UUID) (*balance.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, balance.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) BalanceID(ctx context.Context, id uuid.UUID, kind balance.Kind) (string, error) {
	a, err := f.GetAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return a.BalanceID(kind), nil
}

func (f *fakeAccounts) GetWalletBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	wallet, err := f.BalanceID(ctx, id, balance.KindWallet)
	if err != nil {
		return 0, err
	}
	return f.ledger.balances[wallet], nil
}

type fakeTopUps struct {
	requests []topup.InitiateRequest
	err      error
}

func (f *fakeTopUps) Initiate(ctx context.Context, in topup.InitiateRequest) (*topup.Request, error) {
	f.requests = append(f.requests, in)
	if f.err != nil {
		return nil, f.err
	}
	return &topup.Request{
		Reference: uuid.New(),
		Provider:  momo.DetectCarrier(in.MSISDN),
		MSISDN:    momo.NormalizeMSISDN(in.MSISDN),
		Amount:    in.Amount,
		AccountID: in.AccountID,
		Status:    momo.StatusPending,
	}, nil
}

type fakeAudit struct {
	entries []*AuditEntry
}

func (f *fakeAudit) Record(ctx context.Context, e *AuditEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return f.entries, nil
}

type recordingNotifier struct {
	receipts []sms.Receipt
	to       []string
}

func (r *recordingNotifier) SendPaymentReceipt(to string, rc sms.Receipt) {
	r.to = append(r.to, to)
	r.receipts = append(r.receipts, rc)
}

type fixture struct {
	svc      *Service
	cards    *fakeCards
	ledger   *fakeLedger
	accounts *fakeAccounts
	topups   *fakeTopUps
	audit    *fakeAudit
	notifier *recordingNotifier
	customer uuid.UUID
	merchant uuid.UUID
}

const (
	cardUID = "04A21F9C"
	cardPin = "2468"
)

func newFixture(t *testing.T, wallet int64, phone string) *fixture {
	t.Helper()
	hash, err := pinhash.Hash(cardPin)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{customer: uuid.New(), merchant: uuid.New()}
	f.ledger = &fakeLedger{balances: map[string]int64{"bln_customer": wallet, "bln_merchant": 0}}
	f.accounts = &fakeAccounts{ledger: f.ledger, accounts: map[uuid.UUID]*balance.Account{
		f.customer: {ID: f.customer, Phone: phone, WalletBalanceID: valid("bln_customer"), LoanBalanceID: valid("bln_customer_loan")},
		f.merchant: {ID: f.merchant, Phone: "250788000000", WalletBalanceID: valid("bln_merchant")},
	}}
	f.cards = &fakeCards{cards: map[string]*card.Card{
		cardUID: {
			UID:       cardUID,
			AccountID: uuid.NullUUID{UUID: f.customer, Valid: true},
			PinHash:   valid(hash),
			IsActive:  true,
		},
		"INACTIVE": {UID: "INACTIVE", AccountID: uuid.NullUUID{UUID: f.customer, Valid: true}},
		"ORPHAN":   {UID: "ORPHAN", IsActive: true},
	}}
	f.topups = &fakeTopUps{}
	f.audit = &fakeAudit{}
	f.notifier = &recordingNotifier{}
	f.svc = NewService(f.cards, f.accounts, f.ledger, f.topups, f.audit, Config{PinThreshold: 5000, Currency: "RWF"})
	f.svc.SetNotifier(f.notifier)
	return f
}

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func (f *fixture) tap(amount int64, pin string) (*TapResult, error) {
	return f.svc.Tap(context.Background(), TapRequest{
		CardUID:    cardUID,
		Amount:     amount,
		MerchantID: f.merchant,
		OrderID:    "ORD-42",
		Pin:        pin,
	})
}

func TestTapSettlesWithoutPinUnderThreshold(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")

	res, err := f.tap(3000, "")
	if err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Balance != 7000 || res.TransactionID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.ledger.balances["bln_customer"] != 7000 || f.ledger.balances["bln_merchant"] != 3000 {
		t.Fatalf("unexpected balances: %+v", f.ledger.balances)
	}
	if len(f.ledger.txs) != 1 {
		t.Fatalf("expected one posting, got %d", len(f.ledger.txs))
	}
	tx := f.ledger.txs[0]
	if tx.Amount != 3000 || tx.Source != "bln_customer" || tx.Destination != "bln_merchant" {
		t.Fatalf("unexpected posting: %+v", tx)
	}
	if tx.Reference != res.Reference || len(tx.Reference) < len("pos_")+36 || tx.Reference[:4] != "pos_" {
		t.Fatalf("unexpected reference %q", tx.Reference)
	}
	if tx.MetaData["order_id"] != "ORD-42" || tx.MetaData["type"] != "pos_payment" {
		t.Fatalf("unexpected metadata: %+v", tx.MetaData)
	}
	if len(f.cards.touched) != 1 || len(f.notifier.receipts) != 1 || f.notifier.receipts[0].Balance != 7000 {
		t.Fatalf("expected touch and receipt, got %v %+v", f.cards.touched, f.notifier.receipts)
	}
	if len(f.topups.requests) != 0 || len(f.audit.entries) != 0 {
		t.Fatal("settle must not touch mobile money or audit")
	}
}

func TestTapAtThresholdNeedsNoPin(t *testing.T) {
	f := newFixture(t, 5000, "250788123456")
	if res, err := f.tap(5000, ""); err != nil || res.Outcome != OutcomeSuccess {
		t.Fatalf("expected settlement at threshold, got %+v %v", res, err)
	}
}

func TestTapAboveThresholdRequiresPin(t *testing.T) {
	f := newFixture(t, 2000, "250788123456")

	_, err := f.tap(6000, "")
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) || policyErr.Code != PolicyPinRequired {
		t.Fatalf("expected pin_required policy error, got %v", err)
	}
	if len(f.ledger.txs) != 0 || len(f.topups.requests) != 0 {
		t.Fatal("no ledger or provider call expected")
	}

	_, err = f.tap(6000, "0000")
	var authErr *AuthError
	if !errors.As(err, &authErr) || !errors.Is(err, card.ErrInvalidPin) {
		t.Fatalf("expected invalid PIN auth error, got %v", err)
	}
	if len(f.ledger.txs) != 0 || len(f.topups.requests) != 0 {
		t.Fatal("no ledger or provider call expected")
	}
}

func TestTapInsufficientFundsRequestsShortfall(t *testing.T) {
	f := newFixture(t, 2000, "0788123456")

	res, err := f.tap(6000, cardPin)
	if err != nil {
		t.Fatalf("tap failed: %v", err)
	}
	if res.Outcome != OutcomeRequiresMomo || res.Shortfall != 4000 || res.Provider != momo.ProviderMTN {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.ledger.txs) != 0 {
		t.Fatal("fallback must not settle")
	}
	if len(f.topups.requests) != 1 || f.topups.requests[0].Amount != 4000 {
		t.Fatalf("expected one push for 4000, got %+v", f.topups.requests)
	}
	if *f.topups.requests[0].MerchantID != f.merchant || f.topups.requests[0].OrderID != "ORD-42" {
		t.Fatalf("top-up not tied to the order: %+v", f.topups.requests[0])
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Event != AuditFallbackPending ||
		f.audit.entries[0].MomoReference.UUID != res.MomoReference || f.audit.entries[0].Shortfall.Int64 != 4000 {
		t.Fatalf("unexpected audit: %+v", f.audit.entries)
	}
	if len(f.notifier.receipts) != 0 {
		t.Fatal("no receipt before settlement")
	}
}

func TestTapCarrierSelection(t *testing.T) {
	cases := []struct {
		phone    string
		provider momo.Provider
	}{
		{"250788123456", momo.ProviderMTN},
		{"250798123456", momo.ProviderMTN},
		{"250728123456", momo.ProviderAirtel},
		{"0738123456", momo.ProviderAirtel},
	}
	for _, tc := range cases {
		f := newFixture(t, 0, tc.phone)
		res, err := f.tap(1000, "")
		if err != nil {
			t.Fatalf("%s: tap failed: %v", tc.phone, err)
		}
		if res.Provider != tc.provider {
			t.Fatalf("%s: expected %s, got %s", tc.phone, tc.provider, res.Provider)
		}
	}
}

func TestTapUnknownCarrierRecordsFailure(t *testing.T) {
	f := newFixture(t, 0, "250751234567")

	_, err := f.tap(1000, "")
	if !errors.Is(err, ErrTopUpFailed) || !errors.Is(err, momo.ErrUnknownCarrier) {
		t.Fatalf("expected unknown carrier top-up failure, got %v", err)
	}
	if len(f.topups.requests) != 0 {
		t.Fatal("no push request expected")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Event != AuditFallbackFailed {
		t.Fatalf("expected fallback_failed audit, got %+v", f.audit.entries)
	}
}

func TestTapProviderErrorRecordsFailure(t *testing.T) {
	f := newFixture(t, 100, "250788123456")
	f.topups.err = &momo.ProviderError{Provider: momo.ProviderMTN, Op: "request_payment", Message: "payer not found"}

	_, err := f.tap(1000, "")
	var providerErr *momo.ProviderError
	if !errors.Is(err, ErrTopUpFailed) || !errors.As(err, &providerErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Detail.String == "" {
		t.Fatalf("expected detailed audit, got %+v", f.audit.entries)
	}
}

func TestTapAuthFailuresMoveNothing(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")
	cases := map[string]error{
		"UNKNOWN":  card.ErrNotRecognized,
		"INACTIVE": card.ErrInactive,
		"ORPHAN":   card.ErrNotLinked,
	}
	for uid, want := range cases {
		_, err := f.svc.Tap(context.Background(), TapRequest{CardUID: uid, Amount: 100, MerchantID: f.merchant})
		var authErr *AuthError
		if !errors.As(err, &authErr) || !errors.Is(err, want) {
			t.Fatalf("%s: expected auth error %v, got %v", uid, want, err)
		}
	}
	if len(f.ledger.txs) != 0 || len(f.topups.requests) != 0 {
		t.Fatal("nothing may move on auth failure")
	}
}

func TestTapLedgerFailureIsGeneric(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")
	f.ledger.err = &ledger.APIError{StatusCode: 500, Message: "balance locked"}

	_, err := f.tap(3000, "")
	if !errors.Is(err, ErrSettlementFailed) {
		t.Fatalf("expected ErrSettlementFailed, got %v", err)
	}
	var apiErr *ledger.APIError
	if errors.As(err, &apiErr) {
		t.Fatal("ledger detail must not reach the caller")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Event != AuditSettlementFailed {
		t.Fatalf("expected settlement_failed audit, got %+v", f.audit.entries)
	}
	if len(f.notifier.receipts) != 0 || len(f.cards.touched) != 0 {
		t.Fatal("no receipt or touch after failed settlement")
	}
}

func TestTapUnknownMerchant(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")
	_, err := f.svc.Tap(context.Background(), TapRequest{CardUID: cardUID, Amount: 100, MerchantID: uuid.New()})
	if !errors.Is(err, ErrUnknownMerchant) {
		t.Fatalf("expected ErrUnknownMerchant, got %v", err)
	}
}

func TestTapUnknownMerchantOnFallbackPushesNothing(t *testing.T) {
	f := newFixture(t, 2000, "250788123456")
	res, err := f.svc.Tap(context.Background(), TapRequest{CardUID: cardUID, Amount: 3000, MerchantID: uuid.New()})
	if !errors.Is(err, ErrUnknownMerchant) {
		t.Fatalf("expected ErrUnknownMerchant, got %+v, %v", res, err)
	}
	if len(f.topups.requests) != 0 {
		t.Fatalf("expected no push payment, got %d", len(f.topups.requests))
	}
	if len(f.ledger.txs) != 0 {
		t.Fatalf("expected no ledger posting, got %d", len(f.ledger.txs))
	}
}

func TestTapRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")
	if _, err := f.tap(0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
