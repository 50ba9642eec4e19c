package momo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AirtelConfig holds Airtel Money API configuration
type AirtelConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Country      string
	Currency     string
	Timeout      time.Duration
}

// AirtelGateway is the Airtel Money adapter.
// Airtel endpoints take the MSISDN without the country code.
type AirtelGateway struct {
	httpClient *http.Client
	config     AirtelConfig
	tokens     *tokenCache
}

// NewAirtelGateway creates Airtel adapter
func NewAirtelGateway(cfg AirtelConfig) *AirtelGateway {
	if cfg.Country == "" {
		cfg.Country = "RW"
	}
	if cfg.Currency == "" {
		cfg.Currency = "RWF"
	}
	g := &AirtelGateway{
		httpClient: newHTTPClient(cfg.Timeout),
		config:     cfg,
	}
	g.tokens = newTokenCache(g.fetchToken)
	return g
}

func (g *AirtelGateway) Provider() Provider {
	return ProviderAirtel
}

// AcquireToken returns a cached access token, refreshing it near expiry
func (g *AirtelGateway) AcquireToken(ctx context.Context) (string, error) {
	return g.tokens.get(ctx)
}

type airtelStatus struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	ResultCode   string `json:"result_code"`
	ResponseCode string `json:"response_code"`
	Success      bool   `json:"success"`
}

func (g *AirtelGateway) fetchToken(ctx context.Context) (string, time.Time, error) {
	if strings.TrimSpace(g.config.BaseURL) == "" {
		return "", time.Time{}, &ProviderError{Provider: ProviderAirtel, Op: "token", Message: "base_url is empty"}
	}

	req, err := newJSONRequest(ctx, http.MethodPost, joinURL(g.config.BaseURL, "/auth/oauth2/token"), map[string]string{
		"client_id":     g.config.ClientID,
		"client_secret": g.config.ClientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("airtel token request: %w", err)
	}

	var out struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   flexSeconds `json:"expires_in"`
		TokenType   string      `json:"token_type"`
	}
	if err := doJSON(g.httpClient, ProviderAirtel, "token", req, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.AccessToken == "" {
		return "", time.Time{}, &ProviderError{Provider: ProviderAirtel, Op: "token", Message: "empty access token"}
	}

	return out.AccessToken, expiryFrom(time.Now(), int64(out.ExpiresIn)), nil
}

// RequestPayment issues a USSD push collection
func (g *AirtelGateway) RequestPayment(ctx context.Context, in PaymentRequest) (*PaymentResult, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !IsValidMSISDN(in.MSISDN) {
		return nil, ErrInvalidMSISDN
	}

	currency := in.Currency
	if currency == "" {
		currency = g.config.Currency
	}

	body := map[string]interface{}{
		"reference": in.PayeeNote,
		"subscriber": map[string]string{
			"country":  g.config.Country,
			"currency": currency,
			"msisdn":   LocalMSISDN(in.MSISDN),
		},
		"transaction": map[string]interface{}{
			"amount":   in.Amount,
			"country":  g.config.Country,
			"currency": currency,
			"id":       in.Reference,
		},
	}

	req, err := g.authorized(ctx, http.MethodPost, "/merchant/v1/payments/", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Transaction struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"transaction"`
		} `json:"data"`
		Status airtelStatus `json:"status"`
	}
	if err := g.send(req, "request_payment", &out); err != nil {
		return nil, err
	}
	if !out.Status.Success {
		return nil, g.statusError("request_payment", out.Status)
	}

	providerRef := out.Data.Transaction.ID
	if providerRef == "" {
		providerRef = in.Reference
	}
	return &PaymentResult{
		Reference:         in.Reference,
		ProviderReference: providerRef,
		Status:            StatusPending,
	}, nil
}

// CheckStatus reads a collection's state by our transaction id
func (g *AirtelGateway) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	req, err := g.authorized(ctx, http.MethodGet, "/standard/v1/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Transaction struct {
				AirtelMoneyID string `json:"airtel_money_id"`
				ID            string `json:"id"`
				Message       string `json:"message"`
				Status        string `json:"status"`
			} `json:"transaction"`
		} `json:"data"`
		Status airtelStatus `json:"status"`
	}
	if err := g.send(req, "check_status", &out); err != nil {
		return nil, err
	}
	if !out.Status.Success {
		return nil, g.statusError("check_status", out.Status)
	}

	txn := out.Data.Transaction
	result := &StatusResult{
		Reference:     reference,
		Status:        airtelTransactionStatus(txn.Status),
		FinancialTxID: txn.AirtelMoneyID,
	}
	if result.Status == StatusFailed {
		result.Reason = txn.Message
	}
	return result, nil
}

// ValidateAccount looks up the subscriber behind an MSISDN
func (g *AirtelGateway) ValidateAccount(ctx context.Context, msisdn string) (*AccountInfo, error) {
	if !IsValidMSISDN(msisdn) {
		return nil, ErrInvalidMSISDN
	}

	req, err := g.authorized(ctx, http.MethodGet, "/standard/v1/users/"+LocalMSISDN(msisdn), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			FirstName    string `json:"first_name"`
			LastName     string `json:"last_name"`
			MSISDN       string `json:"msisdn"`
			IsBarred     bool   `json:"is_barred"`
			Registration struct {
				Status string `json:"status"`
			} `json:"registration"`
		} `json:"data"`
		Status airtelStatus `json:"status"`
	}
	if err := g.send(req, "validate_account", &out); err != nil {
		return nil, err
	}
	if !out.Status.Success {
		return nil, g.statusError("validate_account", out.Status)
	}

	name := strings.TrimSpace(out.Data.FirstName + " " + out.Data.LastName)
	active := !out.Data.IsBarred && !strings.EqualFold(out.Data.Registration.Status, "NOT_REGISTERED")
	return &AccountInfo{MSISDN: NormalizeMSISDN(msisdn), Active: active, Name: name}, nil
}

// GetBalance returns the merchant wallet balance
func (g *AirtelGateway) GetBalance(ctx context.Context) (*AccountBalance, error) {
	req, err := g.authorized(ctx, http.MethodGet, "/standard/v1/users/balance", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Balance  string `json:"balance"`
			Currency string `json:"currency"`
		} `json:"data"`
		Status airtelStatus `json:"status"`
	}
	if err := g.send(req, "balance", &out); err != nil {
		return nil, err
	}
	if !out.Status.Success {
		return nil, g.statusError("balance", out.Status)
	}

	available, err := decimal.NewFromString(out.Data.Balance)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderAirtel, Op: "balance", Message: "malformed balance", Err: err}
	}
	return &AccountBalance{Available: available, Currency: out.Data.Currency}, nil
}

func (g *AirtelGateway) authorized(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	token, err := g.AcquireToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := newJSONRequest(ctx, method, joinURL(g.config.BaseURL, path), body)
	if err != nil {
		return nil, fmt.Errorf("airtel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Country", g.config.Country)
	req.Header.Set("X-Currency", g.config.Currency)
	return req, nil
}

func (g *AirtelGateway) send(req *http.Request, op string, out interface{}) error {
	err := doJSON(g.httpClient, ProviderAirtel, op, req, out)
	if isUnauthorized(err) {
		g.tokens.invalidate()
	}
	return err
}

func (g *AirtelGateway) statusError(op string, st airtelStatus) error {
	msg := st.Message
	if msg == "" {
		msg = "request rejected (code " + st.ResponseCode + ")"
	}
	return &ProviderError{Provider: ProviderAirtel, Op: op, Message: msg}
}

func airtelTransactionStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "TS":
		return StatusSuccessful
	case "TF", "TE", "TX":
		return StatusFailed
	default:
		return StatusPending
	}
}
