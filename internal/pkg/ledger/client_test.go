package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetBalanceParsesAmountsAndSendsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balances/bln_wallet" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Blnk-Key"); got != "secret" {
			t.Fatalf("expected api key header, got %q", got)
		}
		_, _ = w.Write([]byte(`{"balance_id":"bln_wallet","currency":"RWF","balance":"12500","credit_balance":15000.00,"debit_balance":2500}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	bal, err := c.GetBalance(context.Background(), "bln_wallet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Balance.Int64() != 12500 || bal.CreditBalance.Int64() != 15000 || bal.DebitBalance.Int64() != 2500 {
		t.Fatalf("unexpected amounts: %+v", bal)
	}
}

func TestGetBalanceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"balance not found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.GetBalance(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.GetBalance(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
}

func TestCreateTransactionSendsReferenceAndPrecision(t *testing.T) {
	var got TransactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transactions" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"transaction_id":"txn_1","reference":"pos_1","amount":3000,"status":"QUEUED"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	txn, err := c.CreateTransaction(context.Background(), TransactionRequest{
		Amount:      3000,
		Currency:    "RWF",
		Source:      "bln_wallet",
		Destination: "bln_merchant",
		Reference:   "pos_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.TransactionID != "txn_1" || txn.Amount.Int64() != 3000 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if got.Precision != 1 || got.Reference != "pos_1" || got.Source != "bln_wallet" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestCreateTransactionErrors(t *testing.T) {
	status := http.StatusConflict
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	req := TransactionRequest{Amount: 10, Currency: "RWF", Source: "a", Destination: "b", Reference: "r"}

	if _, err := c.CreateTransaction(context.Background(), req); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	status = http.StatusBadRequest
	_, err := c.CreateTransaction(context.Background(), req)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "insufficient funds" {
		t.Fatalf("expected APIError with message, got %v", err)
	}

	if _, err := c.CreateTransaction(context.Background(), TransactionRequest{Amount: 0, Reference: "r"}); err == nil {
		t.Fatal("expected validation error for zero amount")
	}
}
