package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func newJSONRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode provider request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends req and decodes a 2xx body into out. Any failure comes back as *ProviderError.
func doJSON(client *http.Client, provider Provider, op string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		msg := "provider unreachable"
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			msg = "provider timeout"
		}
		return &ProviderError{Provider: provider, Op: op, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Message: "unreadable response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    normalizeErrorMessage(raw, resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func isUnauthorized(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized
}

// flexSeconds decodes an expires_in sent either as a number or a quoted number
type flexSeconds int64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q: %w", s, err)
	}
	*f = flexSeconds(n)
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
