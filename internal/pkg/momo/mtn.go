package momo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MTNConfig holds MTN MoMo collection API configuration
type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	CallbackURL       string
	Currency          string
	Timeout           time.Duration
}

// MTNGateway is the MTN MoMo collection adapter
type MTNGateway struct {
	httpClient *http.Client
	config     MTNConfig
	tokens     *tokenCache
}

// NewMTNGateway creates MTN adapter
func NewMTNGateway(cfg MTNConfig) *MTNGateway {
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	g := &MTNGateway{
		httpClient: newHTTPClient(cfg.Timeout),
		config:     cfg,
	}
	g.tokens = newTokenCache(g.fetchToken)
	return g
}

func (g *MTNGateway) Provider() Provider {
	return ProviderMTN
}

// AcquireToken returns a cached access token, refreshing it near expiry
func (g *MTNGateway) AcquireToken(ctx context.Context) (string, error) {
	return g.tokens.get(ctx)
}

func (g *MTNGateway) fetchToken(ctx context.Context) (string, time.Time, error) {
	if strings.TrimSpace(g.config.BaseURL) == "" {
		return "", time.Time{}, &ProviderError{Provider: ProviderMTN, Op: "token", Message: "base_url is empty"}
	}

	req, err := newJSONRequest(ctx, http.MethodPost, joinURL(g.config.BaseURL, "/collection/token/"), nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("mtn token request: %w", err)
	}
	req.SetBasicAuth(g.config.APIUser, g.config.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.config.SubscriptionKey)

	var out struct {
		AccessToken string      `json:"access_token"`
		TokenType   string      `json:"token_type"`
		ExpiresIn   flexSeconds `json:"expires_in"`
	}
	if err := doJSON(g.httpClient, ProviderMTN, "token", req, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.AccessToken == "" {
		return "", time.Time{}, &ProviderError{Provider: ProviderMTN, Op: "token", Message: "empty access token"}
	}

	return out.AccessToken, expiryFrom(time.Now(), int64(out.ExpiresIn)), nil
}

// RequestPayment issues a request-to-pay; the payer approves on their handset
func (g *MTNGateway) RequestPayment(ctx context.Context, in PaymentRequest) (*PaymentResult, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !IsValidMSISDN(in.MSISDN) {
		return nil, ErrInvalidMSISDN
	}

	body := map[string]interface{}{
		"amount":     strconv.FormatInt(in.Amount, 10),
		"currency":   g.currency(in.Currency),
		"externalId": in.Reference,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     NormalizeMSISDN(in.MSISDN),
		},
		"payerMessage": in.PayerMessage,
		"payeeNote":    in.PayeeNote,
	}

	req, err := g.authorized(ctx, http.MethodPost, "/collection/v1_0/requesttopay", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Reference-Id", in.Reference)
	if g.config.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", g.config.CallbackURL)
	}

	if err := g.send(req, "request_payment", nil); err != nil {
		return nil, err
	}

	return &PaymentResult{
		Reference:         in.Reference,
		ProviderReference: in.Reference,
		Status:            StatusPending,
	}, nil
}

// CheckStatus reads the state of a request-to-pay
func (g *MTNGateway) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	req, err := g.authorized(ctx, http.MethodGet, "/collection/v1_0/requesttopay/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status                 string          `json:"status"`
		FinancialTransactionID string          `json:"financialTransactionId"`
		Reason                 json.RawMessage `json:"reason"`
	}
	if err := g.send(req, "check_status", &out); err != nil {
		return nil, err
	}

	result := &StatusResult{
		Reference:     reference,
		Status:        mtnStatus(out.Status),
		FinancialTxID: out.FinancialTransactionID,
	}
	result.Reason = reasonText(out.Reason)
	return result, nil
}

// ValidateAccount checks that the MSISDN holds an active MoMo account
func (g *MTNGateway) ValidateAccount(ctx context.Context, msisdn string) (*AccountInfo, error) {
	if !IsValidMSISDN(msisdn) {
		return nil, ErrInvalidMSISDN
	}
	normalized := NormalizeMSISDN(msisdn)

	req, err := g.authorized(ctx, http.MethodGet, "/collection/v1_0/accountholder/msisdn/"+normalized+"/active", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Result bool `json:"result"`
	}
	if err := g.send(req, "validate_account", &out); err != nil {
		return nil, err
	}

	return &AccountInfo{MSISDN: normalized, Active: out.Result}, nil
}

// GetBalance returns the collection account balance
func (g *MTNGateway) GetBalance(ctx context.Context) (*AccountBalance, error) {
	req, err := g.authorized(ctx, http.MethodGet, "/collection/v1_0/account/balance", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		AvailableBalance string `json:"availableBalance"`
		Currency         string `json:"currency"`
	}
	if err := g.send(req, "balance", &out); err != nil {
		return nil, err
	}

	available, err := decimal.NewFromString(out.AvailableBalance)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderMTN, Op: "balance", Message: "malformed balance", Err: err}
	}
	return &AccountBalance{Available: available, Currency: out.Currency}, nil
}

func (g *MTNGateway) authorized(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	token, err := g.AcquireToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := newJSONRequest(ctx, method, joinURL(g.config.BaseURL, path), body)
	if err != nil {
		return nil, fmt.Errorf("mtn request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.config.SubscriptionKey)
	req.Header.Set("X-Target-Environment", g.config.TargetEnvironment)
	return req, nil
}

func (g *MTNGateway) send(req *http.Request, op string, out interface{}) error {
	err := doJSON(g.httpClient, ProviderMTN, op, req, out)
	if isUnauthorized(err) {
		g.tokens.invalidate()
	}
	return err
}

func (g *MTNGateway) currency(c string) string {
	if c != "" {
		return c
	}
	if g.config.Currency != "" {
		return g.config.Currency
	}
	return "RWF"
}

// reasonText reads a failure reason sent either as a plain string or an object
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return normalizeErrorMessage(raw, 0)
}

func mtnStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return StatusSuccessful
	case "FAILED", "REJECTED", "TIMEOUT":
		return StatusFailed
	default:
		return StatusPending
	}
}
