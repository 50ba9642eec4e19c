package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/jwt"
)

func doTap(t *testing.T, f *fixture, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/tap", bytes.NewReader(raw))
	ctx := context.WithValue(req.Context(), middleware.AccountIDKey, f.merchant)
	ctx = context.WithValue(ctx, middleware.RoleKey, jwt.RoleTerminal)
	ctx = context.WithValue(ctx, middleware.TerminalIDKey, "T-01")

	rec := httptest.NewRecorder()
	NewHandler(f.svc).Tap(rec, req.WithContext(ctx))
	return rec
}

func TestTapHandlerOutcomes(t *testing.T) {
	f := newFixture(t, 2000, "250788123456")

	rec := doTap(t, f, map[string]interface{}{"card_uid": cardUID, "amount": 1500})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ok struct {
		Data TapResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil {
		t.Fatal(err)
	}
	if ok.Data.Status != OutcomeSuccess || ok.Data.Balance == nil || *ok.Data.Balance != 500 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if f.ledger.txs[0].MetaData["terminal_id"] != "T-01" {
		t.Fatalf("terminal id not recorded: %+v", f.ledger.txs[0].MetaData)
	}

	rec = doTap(t, f, map[string]interface{}{"card_uid": cardUID, "amount": 4000})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var momoBody struct {
		Data TapResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &momoBody); err != nil {
		t.Fatal(err)
	}
	if !momoBody.Data.RequiresMomo || momoBody.Data.MomoReference == nil || momoBody.Data.Shortfall != 3500 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestTapHandlerErrors(t *testing.T) {
	f := newFixture(t, 10000, "250788123456")

	cases := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"pin required", map[string]interface{}{"card_uid": cardUID, "amount": 6000}, http.StatusForbidden},
		{"wrong pin", map[string]interface{}{"card_uid": cardUID, "amount": 6000, "pin": "1111"}, http.StatusUnauthorized},
		{"unknown card", map[string]interface{}{"card_uid": "NOPE", "amount": 10}, http.StatusNotFound},
		{"inactive card", map[string]interface{}{"card_uid": "INACTIVE", "amount": 10}, http.StatusForbidden},
		{"unlinked card", map[string]interface{}{"card_uid": "ORPHAN", "amount": 10}, http.StatusForbidden},
		{"bad pin format", map[string]interface{}{"card_uid": cardUID, "amount": 10, "pin": "12"}, http.StatusUnprocessableEntity},
		{"zero amount", map[string]interface{}{"card_uid": cardUID, "amount": 0}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := doTap(t, f, tc.body)
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.code, rec.Code, rec.Body.String())
		}
	}
	if len(f.ledger.txs) != 0 {
		t.Fatal("no postings expected")
	}
}
