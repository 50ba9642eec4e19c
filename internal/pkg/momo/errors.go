package momo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnknownCarrier      = errors.New("momo: unknown carrier")
	ErrProviderUnavailable = errors.New("momo: provider not configured")
	ErrInvalidAmount       = errors.New("momo: amount must be positive")
	ErrInvalidMSISDN       = errors.New("momo: invalid msisdn")
)

// ProviderError is a failed provider call with a normalized, human-readable message
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (status %d): %s", e.Provider, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// normalizeErrorMessage extracts one message from the many payload shapes providers return
func normalizeErrorMessage(body []byte, statusCode int) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := messageFrom(payload); msg != "" {
			return msg
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	if statusCode > 0 {
		return strings.ToLower(http.StatusText(statusCode))
	}
	return "unknown provider error"
}

func messageFrom(payload map[string]interface{}) string {
	for _, key := range []string{"message", "error_description", "errorDescription", "reason", "error", "code"} {
		switch v := payload[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case map[string]interface{}:
			if msg := messageFrom(v); msg != "" {
				return msg
			}
		}
	}

	if nested, ok := payload["status"].(map[string]interface{}); ok {
		return messageFrom(nested)
	}
	return ""
}
