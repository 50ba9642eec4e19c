package split

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tapcard/tapcard-api/internal/pkg/ledger"
	"github.com/tapcard/tapcard-api/internal/pkg/logger"
	"github.com/tapcard/tapcard-api/internal/pkg/storage"
)

const failurePrefix = "split-failures/"

// LedgerPoster posts split legs
type LedgerPoster interface {
	CreateTransaction(ctx context.Context, req ledger.TransactionRequest) (*ledger.Transaction, error)
}

// BookRequest is one order total to distribute
type BookRequest struct {
	OrderID           string
	Total             int64
	CustomerBalanceID string
	RetailerBalanceID string
	PlatformBalanceID string
	PartnerBalanceID  string
}

// Leg is one ledger posting of a split
type Leg struct {
	Name            string `json:"name"`
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Amount          int64  `json:"amount"`
	SharePercentage string `json:"share_percentage"`
	Reference       string `json:"reference"`
}

// PostedLeg is a committed leg
type PostedLeg struct {
	Leg
	TransactionID string `json:"transaction_id,omitempty"`
	// AlreadyPosted marks a leg whose reference the ledger had seen before
	AlreadyPosted bool `json:"already_posted,omitempty"`
}

// Result of a completed split
type Result struct {
	OrderID      string                `json:"order_id"`
	Split        Shares                `json:"split"`
	Legs         []PostedLeg           `json:"legs"`
	Transactions []*ledger.Transaction `json:"-"`
}

// FailureRecord is archived for the reconciliation job when a split stops midway
type FailureRecord struct {
	OrderID   string      `json:"order_id"`
	Split     Shares      `json:"split"`
	Posted    []PostedLeg `json:"posted"`
	FailedLeg Leg         `json:"failed_leg"`
	Error     string      `json:"error"`
	At        time.Time   `json:"at"`
}

// Booker posts the four legs of a revenue split in order, with no cross-leg rollback
type Booker struct {
	ledger   LedgerPoster
	archive  storage.Archive
	currency string
	now      func() time.Time
}

// NewBooker creates revenue split booker
func NewBooker(ledgerPoster LedgerPoster, currency string) *Booker {
	return &Booker{ledger: ledgerPoster, currency: currency, now: time.Now}
}

// SetArchive sets where partial postings are recorded (optional)
func (b *Booker) SetArchive(a storage.Archive) {
	b.archive = a
}

// Legs returns the postings for a split, in posting order:
// customer->retailer total, retailer->retailer retained share, retailer->platform, retailer->partner.
func Legs(req BookRequest, shares Shares) []Leg {
	ref := func(leg string) string {
		return "split_" + req.OrderID + "_" + leg
	}
	return []Leg{
		{Name: "customer", Source: req.CustomerBalanceID, Destination: req.RetailerBalanceID, Amount: shares.Total, SharePercentage: "100", Reference: ref("customer")},
		{Name: "retailer", Source: req.RetailerBalanceID, Destination: req.RetailerBalanceID, Amount: shares.Retailer, SharePercentage: "60", Reference: ref("retailer")},
		{Name: "platform", Source: req.RetailerBalanceID, Destination: req.PlatformBalanceID, Amount: shares.Platform, SharePercentage: "28", Reference: ref("platform")},
		{Name: "partner", Source: req.RetailerBalanceID, Destination: req.PartnerBalanceID, Amount: shares.Partner, SharePercentage: "12", Reference: ref("partner")},
	}
}

// Book computes the split and posts its legs. Each leg commits on its own:
// a failure after the first leaves earlier legs posted and returns *PartialPostingError.
// Re-booking the same order skips legs the ledger already holds.
func (b *Booker) Book(ctx context.Context, req BookRequest) (*Result, error) {
	if req.Total <= 0 {
		return nil, ErrInvalidTotal
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, ErrInvalidOrderID
	}
	if req.CustomerBalanceID == "" || req.RetailerBalanceID == "" || req.PlatformBalanceID == "" || req.PartnerBalanceID == "" {
		return nil, ErrMissingBalance
	}

	shares := Compute(req.Total)
	result := &Result{OrderID: req.OrderID, Split: shares}

	for _, leg := range Legs(req, shares) {
		if leg.Amount == 0 {
			continue
		}

		tx, err := b.ledger.CreateTransaction(ctx, ledger.TransactionRequest{
			Amount:      leg.Amount,
			Currency:    b.currency,
			Source:      leg.Source,
			Destination: leg.Destination,
			Reference:   leg.Reference,
			Description: "Revenue split " + leg.Name,
			MetaData: map[string]interface{}{
				"type":             "revenue_split",
				"leg":              leg.Name,
				"order_id":         req.OrderID,
				"share_percentage": leg.SharePercentage,
			},
		})
		switch {
		case err == nil:
			result.Legs = append(result.Legs, PostedLeg{Leg: leg, TransactionID: tx.TransactionID})
			result.Transactions = append(result.Transactions, tx)
		case errors.Is(err, ledger.ErrDuplicateReference):
			result.Legs = append(result.Legs, PostedLeg{Leg: leg, AlreadyPosted: true})
		default:
			logger.FromContext(ctx).Error().Err(err).
				Str("order_id", req.OrderID).
				Str("leg", leg.Name).
				Int("posted_legs", len(result.Legs)).
				Msg("Revenue split leg failed")
			if len(result.Legs) == 0 {
				return nil, fmt.Errorf("post %s leg: %w", leg.Name, err)
			}
			partial := &PartialPostingError{OrderID: req.OrderID, Posted: result.Legs, FailedLeg: leg, Err: err}
			b.archiveFailure(ctx, shares, partial)
			return nil, partial
		}
	}

	logger.FromContext(ctx).Info().
		Str("order_id", req.OrderID).
		Int64("total", shares.Total).
		Int64("retailer", shares.Retailer).
		Int64("platform", shares.Platform).
		Int64("partner", shares.Partner).
		Msg("Revenue split booked")

	return result, nil
}

func (b *Booker) archiveFailure(ctx context.Context, shares Shares, e *PartialPostingError) {
	if b.archive == nil {
		return
	}
	at := b.now().UTC()
	data, err := json.MarshalIndent(FailureRecord{
		OrderID:   e.OrderID,
		Split:     shares,
		Posted:    e.Posted,
		FailedLeg: e.FailedLeg,
		Error:     e.Err.Error(),
		At:        at,
	}, "", "  ")
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("order_id", e.OrderID).Msg("Failed to encode split failure")
		return
	}

	key := fmt.Sprintf("%s%s/%s-%d.json", failurePrefix, at.Format("2006/01/02"), safeKey(e.OrderID), at.UnixNano())
	if err := b.archive.Put(ctx, key, data, "application/json"); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("order_id", e.OrderID).Str("key", key).Msg("Failed to archive split failure")
		return
	}
	logger.FromContext(ctx).Warn().Str("order_id", e.OrderID).Str("key", key).Msg("Partial split archived for reconciliation")
}

// ListFailures returns archived partial-split keys
func (b *Booker) ListFailures(ctx context.Context) ([]string, error) {
	if b.archive == nil {
		return []string{}, nil
	}
	return b.archive.List(ctx, failurePrefix)
}

// GetFailure reads one archived partial split
func (b *Booker) GetFailure(ctx context.Context, key string) (*FailureRecord, error) {
	if b.archive == nil || !strings.HasPrefix(key, failurePrefix) {
		return nil, storage.ErrNotFound
	}
	data, err := b.archive.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec FailureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode split failure %s: %w", key, err)
	}
	return &rec, nil
}

func safeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
