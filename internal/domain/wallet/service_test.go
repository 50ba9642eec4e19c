package wallet

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
)

type memJournal struct {
	mu        sync.Mutex
	movements map[string]*Movement
}

func newMemJournal() *memJournal {
	return &memJournal{movements: map[string]*Movement{}}
}

func (j *memJournal) key(accountID uuid.UUID, ref string) string {
	return accountID.String() + "/" + ref
}

func (j *memJournal) GetByReference(_ context.Context, accountID uuid.UUID, ref string) (*Movement, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, ok := j.movements[j.key(accountID, ref)]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (j *memJournal) Create(_ context.Context, m *Movement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := j.key(m.AccountID, m.Reference)
	if _, ok := j.movements[k]; ok {
		return ErrDuplicateReference
	}
	cp := *m
	j.movements[k] = &cp
	return nil
}

func (j *memJournal) SetLedgerTransaction(_ context.Context, id uuid.UUID, txID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, m := range j.movements {
		if m.ID == id && !m.LedgerTransactionID.Valid {
			m.LedgerTransactionID = sql.NullString{String: txID, Valid: true}
		}
	}
	return nil
}

func (j *memJournal) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*Movement, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Movement
	for _, m := range j.movements {
		if m.AccountID == accountID || m.CounterpartyID == accountID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeLedger struct {
	balances map[string]int64
	refs     map[string]bool
	posts    int
	err      error
}

func (f *fakeLedger) CreateTransaction(_ context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.refs[req.Reference] {
		return nil, ledger.ErrDuplicateReference
	}
	f.refs[req.Reference] = true
	f.posts++
	f.balances[req.Source] -= req.Amount
	f.balances[req.Destination] += req.Amount
	return &ledger.Transaction{TransactionID: "txn_" + req.Reference, Reference: req.Reference}, nil
}

type fakeAccounts struct {
	accounts map[uuid.UUID]*balance.Account
	ledger   *fakeLedger
}

func (f *fakeAccounts) GetAccount(_ context.Context, id uuid.UUID) (*balance.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, balance.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) GetAccountByPhone(_ context.Context, phone string) (*balance.Account, error) {
	for _, a := range f.accounts {
		if a.Phone == phone {
			return a, nil
		}
	}
	return nil, balance.ErrAccountNotFound
}

func (f *fakeAccounts) BalanceID(ctx context.Context, id uuid.UUID, kind balance.Kind) (string, error) {
	a, err := f.GetAccount(ctx, id)
	if err != nil {
		return "", err
	}
	ref := a.BalanceID(kind)
	if ref == "" {
		return "", balance.ErrBalanceNotProvisioned
	}
	return ref, nil
}

func (f *fakeAccounts) GetWalletBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	ref, err := f.BalanceID(ctx, id, balance.KindWallet)
	if err != nil {
		return 0, err
	}
	return f.ledger.balances[ref], nil
}

func (f *fakeAccounts) GetLoanBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	ref, err := f.BalanceID(ctx, id, balance.KindLoan)
	if err != nil {
		return 0, err
	}
	return f.ledger.balances[ref], nil
}

type sent struct {
	to     string
	amount int64
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) SendTransferReceived(to string, amount int64, _, _ string) {
	n.sent = append(n.sent, sent{to: to, amount: amount})
}

type walletFixture struct {
	alice, bob uuid.UUID
	ledger     *fakeLedger
	journal    *memJournal
	notifier   *recordingNotifier
	svc        *Service
}

func newWalletFixture() *walletFixture {
	f := &walletFixture{
		alice:    uuid.New(),
		bob:      uuid.New(),
		journal:  newMemJournal(),
		notifier: &recordingNotifier{},
		ledger: &fakeLedger{
			refs: map[string]bool{},
			balances: map[string]int64{
				"bln_alice_wallet": 10000,
				"bln_alice_loan":   20000,
				"bln_bob_wallet":   0,
			},
		},
	}
	accounts := &fakeAccounts{
		ledger: f.ledger,
		accounts: map[uuid.UUID]*balance.Account{
			f.alice: {
				ID:              f.alice,
				Phone:           "250788123456",
				WalletBalanceID: sql.NullString{String: "bln_alice_wallet", Valid: true},
				LoanBalanceID:   sql.NullString{String: "bln_alice_loan", Valid: true},
			},
			f.bob: {
				ID:              f.bob,
				Phone:           "250722000111",
				WalletBalanceID: sql.NullString{String: "bln_bob_wallet", Valid: true},
			},
		},
	}
	f.svc = NewService(f.journal, accounts, f.ledger, "RWF")
	f.svc.SetNotifier(f.notifier)
	return f
}

func TestCheckFunding(t *testing.T) {
	tests := []struct {
		purpose Purpose
		source  balance.Kind
		wantErr error
	}{
		{PurposeTransfer, balance.KindWallet, nil},
		{PurposeTransfer, balance.KindLoan, ErrLoanNotTransferable},
		{PurposePurchase, balance.KindLoan, nil},
		{PurposeRepayment, balance.KindLoan, nil},
		{PurposeRepayment, balance.KindWallet, nil},
	}

	for _, tt := range tests {
		if err := CheckFunding(tt.purpose, tt.source); !errors.Is(err, tt.wantErr) {
			t.Errorf("CheckFunding(%s, %s) = %v, want %v", tt.purpose, tt.source, err, tt.wantErr)
		}
	}
}

func TestTransferByPhone(t *testing.T) {
	f := newWalletFixture()

	m, err := f.svc.Transfer(context.Background(), TransferRequest{
		FromAccountID: f.alice,
		ToPhone:       "0722 000 111",
		Amount:        2500,
		Reference:     "t-1",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if m.CounterpartyID != f.bob || !m.LedgerTransactionID.Valid {
		t.Fatalf("unexpected movement: %+v", m)
	}
	if f.ledger.balances["bln_alice_wallet"] != 7500 || f.ledger.balances["bln_bob_wallet"] != 2500 {
		t.Fatalf("unexpected balances: %v", f.ledger.balances)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].to != "250722000111" {
		t.Fatalf("expected SMS to recipient, got %+v", f.notifier.sent)
	}
}

func TestTransferFromLoanRejected(t *testing.T) {
	f := newWalletFixture()

	_, err := f.svc.Transfer(context.Background(), TransferRequest{
		FromAccountID: f.alice,
		ToAccountID:   f.bob,
		Amount:        100,
		Reference:     "t-loan",
		Source:        balance.KindLoan,
	})
	if !errors.Is(err, ErrLoanNotTransferable) {
		t.Fatalf("expected ErrLoanNotTransferable, got %v", err)
	}
	if f.ledger.posts != 0 {
		t.Fatalf("nothing must be posted, got %d", f.ledger.posts)
	}
}

func TestTransferValidation(t *testing.T) {
	f := newWalletFixture()
	ctx := context.Background()

	tests := []struct {
		name    string
		req     TransferRequest
		wantErr error
	}{
		{"zero amount", TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 0, Reference: "x"}, ErrInvalidAmount},
		{"empty reference", TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 10}, ErrInvalidAmount},
		{"self", TransferRequest{FromAccountID: f.alice, ToAccountID: f.alice, Amount: 10, Reference: "x"}, ErrSelfTransfer},
		{"unknown recipient", TransferRequest{FromAccountID: f.alice, ToPhone: "250799999999", Amount: 10, Reference: "x"}, ErrRecipientNotFound},
		{"no recipient", TransferRequest{FromAccountID: f.alice, Amount: 10, Reference: "x"}, ErrRecipientNotFound},
		{"insufficient", TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 10001, Reference: "x"}, ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Transfer(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTransferIdempotentRetry(t *testing.T) {
	f := newWalletFixture()
	ctx := context.Background()
	req := TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 1000, Reference: "t-retry"}

	first, err := f.svc.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	second, err := f.svc.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if first.ID != second.ID || f.ledger.posts != 1 {
		t.Fatalf("retry must not post again: posts=%d", f.ledger.posts)
	}

	req.Amount = 999
	if _, err := f.svc.Transfer(ctx, req); !errors.Is(err, ErrReferenceConflict) {
		t.Fatalf("expected ErrReferenceConflict, got %v", err)
	}
}

func TestTransferRetriesAfterLedgerFailure(t *testing.T) {
	f := newWalletFixture()
	ctx := context.Background()
	req := TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 1000, Reference: "t-flaky"}

	f.ledger.err = &ledger.APIError{StatusCode: 503, Message: "unavailable"}
	if _, err := f.svc.Transfer(ctx, req); err == nil {
		t.Fatal("expected ledger error")
	}

	f.ledger.err = nil
	m, err := f.svc.Transfer(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !m.LedgerTransactionID.Valid || f.ledger.posts != 1 {
		t.Fatalf("expected one posting after retry, got %d", f.ledger.posts)
	}
}

func TestRepay(t *testing.T) {
	f := newWalletFixture()

	m, err := f.svc.Repay(context.Background(), f.alice, 3000, "r-1")
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if m.SourceKind != balance.KindWallet || m.DestinationKind != balance.KindLoan {
		t.Fatalf("unexpected movement kinds: %+v", m)
	}
	if f.ledger.balances["bln_alice_wallet"] != 7000 || f.ledger.balances["bln_alice_loan"] != 23000 {
		t.Fatalf("unexpected balances: %v", f.ledger.balances)
	}
}

func TestPurchaseFromLoan(t *testing.T) {
	f := newWalletFixture()

	if _, err := f.svc.PurchaseFromLoan(context.Background(), f.alice, f.bob, 5000, "p-1"); err != nil {
		t.Fatalf("PurchaseFromLoan: %v", err)
	}
	if f.ledger.balances["bln_alice_loan"] != 15000 || f.ledger.balances["bln_bob_wallet"] != 5000 {
		t.Fatalf("unexpected balances: %v", f.ledger.balances)
	}
	if f.ledger.balances["bln_alice_wallet"] != 10000 {
		t.Fatalf("wallet must be untouched, got %d", f.ledger.balances["bln_alice_wallet"])
	}

	if _, err := f.svc.PurchaseFromLoan(context.Background(), f.alice, f.bob, 50000, "p-2"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newWalletFixture()
	ctx := context.Background()

	if _, err := f.svc.Transfer(ctx, TransferRequest{FromAccountID: f.alice, ToAccountID: f.bob, Amount: 100, Reference: "h-1"}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	movements, err := f.svc.History(ctx, f.bob, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(movements) != 1 || movements[0].Reference != "h-1" {
		t.Fatalf("unexpected history: %+v", movements)
	}
}
