package split

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
)

type staticBalances map[uuid.UUID]map[balance.Kind]string

func (s staticBalances) BalanceID(_ context.Context, id uuid.UUID, kind balance.Kind) (string, error) {
	kinds, ok := s[id]
	if !ok {
		return "", balance.ErrAccountNotFound
	}
	ref, ok := kinds[kind]
	if !ok {
		return "", balance.ErrBalanceNotProvisioned
	}
	return ref, nil
}

type splitFixture struct {
	customer, retailer uuid.UUID
	ledger             *fakeLedger
	router             chi.Router
}

func newSplitFixture() *splitFixture {
	f := &splitFixture{customer: uuid.New(), retailer: uuid.New(), ledger: &fakeLedger{}}
	balances := staticBalances{
		f.customer: {balance.KindWallet: "bln_cw", balance.KindLoan: "bln_cl"},
		f.retailer: {balance.KindWallet: "bln_rw"},
	}
	svc := NewService(NewBooker(f.ledger, "RWF"), balances, "bln_platform", "bln_partner")
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Post("/orders/{orderID}/split", h.Book)
	f.router = r
	return f
}

func (f *splitFixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders/ORD-7/split", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestBookOrderUsesLoanBalance(t *testing.T) {
	f := newSplitFixture()

	result, err := NewService(NewBooker(f.ledger, "RWF"), staticBalances{
		f.customer: {balance.KindLoan: "bln_cl"},
		f.retailer: {balance.KindWallet: "bln_rw"},
	}, "bln_platform", "bln_partner").BookOrder(context.Background(), OrderSplit{
		OrderID:           "ORD-9",
		Total:             1000,
		CustomerAccountID: f.customer,
		RetailerAccountID: f.retailer,
		FromLoan:          true,
	})
	if err != nil {
		t.Fatalf("BookOrder: %v", err)
	}
	if result.Legs[0].Source != "bln_cl" {
		t.Fatalf("customer leg source = %q, want loan balance", result.Legs[0].Source)
	}
}

func TestBookOrderUnknownAccount(t *testing.T) {
	f := newSplitFixture()
	svc := NewService(NewBooker(f.ledger, "RWF"), staticBalances{}, "bln_platform", "bln_partner")

	_, err := svc.BookOrder(context.Background(), OrderSplit{OrderID: "ORD-1", Total: 10, CustomerAccountID: uuid.New(), RetailerAccountID: uuid.New()})
	if !errors.Is(err, balance.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestHandlerBook(t *testing.T) {
	f := newSplitFixture()

	rec := f.post(`{"customer_account_id":"` + f.customer.String() + `","retailer_account_id":"` + f.retailer.String() + `","total":10000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool   `json:"success"`
		Data    Result `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.OrderID != "ORD-7" || body.Data.Split.Platform != 2800 || len(body.Data.Legs) != 4 {
		t.Fatalf("unexpected result: %+v", body.Data)
	}
}

func TestHandlerBookErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       func(f *splitFixture) string
		failOn     string
		wantStatus int
	}{
		{
			name:       "invalid json",
			body:       func(*splitFixture) string { return `{` },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing total",
			body:       func(f *splitFixture) string { return `{"customer_account_id":"` + f.customer.String() + `","retailer_account_id":"` + f.retailer.String() + `"}` },
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown account",
			body:       func(f *splitFixture) string { return `{"customer_account_id":"` + uuid.NewString() + `","retailer_account_id":"` + f.retailer.String() + `","total":10}` },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "partial posting",
			body:       func(f *splitFixture) string { return `{"customer_account_id":"` + f.customer.String() + `","retailer_account_id":"` + f.retailer.String() + `","total":10000}` },
			failOn:     "partner",
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSplitFixture()
			if tt.failOn != "" {
				f.ledger.failOn = tt.failOn
				f.ledger.err = errors.New("ledger unavailable")
			}
			rec := f.post(tt.body(f))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
