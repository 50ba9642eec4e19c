package momo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a mobile-money operator
type Provider string

const (
	ProviderMTN     Provider = "mtn"
	ProviderAirtel  Provider = "airtel"
	ProviderUnknown Provider = "unknown"
)

func (p Provider) String() string {
	return string(p)
}

// ParseProvider maps a tag to a Provider; anything unrecognized is ProviderUnknown
func ParseProvider(s string) Provider {
	switch Provider(s) {
	case ProviderMTN:
		return ProviderMTN
	case ProviderAirtel:
		return ProviderAirtel
	default:
		return ProviderUnknown
	}
}

// Status of a push-payment request
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// IsFinal reports whether the status will not change anymore
func (s Status) IsFinal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// PaymentRequest is a push-payment to a payer's handset
type PaymentRequest struct {
	Reference    string
	MSISDN       string
	Amount       int64
	Currency     string
	PayerMessage string
	PayeeNote    string
}

type PaymentResult struct {
	Reference         string
	ProviderReference string
	Status            Status
}

type StatusResult struct {
	Reference     string
	Status        Status
	Reason        string
	FinancialTxID string
}

type AccountInfo struct {
	MSISDN string
	Active bool
	Name   string
}

type AccountBalance struct {
	Available decimal.Decimal
	Currency  string
}

// Gateway is the capability set every mobile-money provider adapter offers
type Gateway interface {
	Provider() Provider
	AcquireToken(ctx context.Context) (string, error)
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
	ValidateAccount(ctx context.Context, msisdn string) (*AccountInfo, error)
	GetBalance(ctx context.Context) (*AccountBalance, error)
}

// Registry resolves a Gateway per provider
type Registry struct {
	gateways map[Provider]Gateway
}

// NewRegistry builds a registry from configured gateways; nil entries are skipped
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		r.gateways[gw.Provider()] = gw
	}
	return r
}

// Get returns the gateway for provider
func (r *Registry) Get(provider Provider) (Gateway, error) {
	if provider == ProviderUnknown {
		return nil, ErrUnknownCarrier
	}
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	return gw, nil
}

// ForMSISDN detects the carrier of msisdn and returns its gateway
func (r *Registry) ForMSISDN(msisdn string) (Gateway, Provider, error) {
	provider := DetectCarrier(msisdn)
	gw, err := r.Get(provider)
	if err != nil {
		return nil, provider, err
	}
	return gw, provider, nil
}

// Providers lists configured providers
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.gateways))
	for _, p := range []Provider{ProviderMTN, ProviderAirtel} {
		if _, ok := r.gateways[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func expiryFrom(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		seconds = 300
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
