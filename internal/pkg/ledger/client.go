package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

var (
	ErrNotFound           = errors.New("ledger: not found")
	ErrDuplicateReference = errors.New("ledger: reference already used")
)

// APIError is a non-2xx ledger response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Config holds ledger service configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the external double-entry ledger service
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates new ledger API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// CreateLedger creates a ledger grouping balances
func (c *Client) CreateLedger(ctx context.Context, name string, meta map[string]interface{}) (*Ledger, error) {
	var out Ledger
	err := c.do(ctx, http.MethodPost, "/ledgers", map[string]interface{}{
		"name":      name,
		"meta_data": meta,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBalance opens a balance inside a ledger
func (c *Client) CreateBalance(ctx context.Context, req BalanceRequest) (*Balance, error) {
	if strings.TrimSpace(req.LedgerID) == "" {
		return nil, fmt.Errorf("validation error: ledger_id must be non-empty")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("validation error: currency must be non-empty")
	}

	var out Balance
	if err := c.do(ctx, http.MethodPost, "/balances", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance reads a balance; every call is a fresh read
func (c *Client) GetBalance(ctx context.Context, balanceID string) (*Balance, error) {
	if strings.TrimSpace(balanceID) == "" {
		return nil, ErrNotFound
	}

	var out Balance
	if err := c.do(ctx, http.MethodGet, "/balances/"+url.PathEscape(balanceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBalances lists balances
func (c *Client) ListBalances(ctx context.Context, opts ListOptions) ([]Balance, error) {
	var out []Balance
	if err := c.do(ctx, http.MethodGet, "/balances"+opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTransaction posts one movement from source to destination.
// Reference is the idempotency key: the ledger rejects a reused reference.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}
	if req.Precision == 0 {
		req.Precision = 1
	}

	var out Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions lists transactions
func (c *Client) ListTransactions(ctx context.Context, opts ListOptions) ([]Transaction, error) {
	var out []Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions"+opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction reads a single transaction
func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(transactionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("ledger client is not initialized")
	}
	if c.config.BaseURL == "" {
		return fmt.Errorf("ledger config error: base_url is empty")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode ledger request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("X-Blnk-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyRequestError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ledger response read error: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateReference
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse ledger response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func classifyRequestError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("ledger timeout: %w", err)
	}
	return fmt.Errorf("ledger request error: %w", err)
}

// ListOptions paginates list endpoints
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
