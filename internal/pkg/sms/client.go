package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds SMS gateway configuration
type Config struct {
	BaseURL string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

// Client sends text messages through the SMS gateway HTTP API
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new SMS gateway client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Send delivers one message
func (c *Client) Send(ctx context.Context, to, message string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("validation error: recipient must be non-empty")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return fmt.Errorf("sms config error: base_url is empty")
	}

	body, err := json.Marshal(sendRequest{To: to, From: c.config.Sender, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned status %d, body: %s", resp.StatusCode, string(raw))
	}

	return nil
}
