package split

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tapcard/tapcard-api/internal/domain/balance"
)

// BalanceIDs resolves account wallet references
type BalanceIDs interface {
	BalanceID(ctx context.Context, accountID uuid.UUID, kind balance.Kind) (string, error)
}

// OrderSplit books an order between two accounts and the fixed platform and partner balances
type OrderSplit struct {
	OrderID           string
	Total             int64
	CustomerAccountID uuid.UUID
	RetailerAccountID uuid.UUID
	// FromLoan pays from the customer's loan balance instead of the wallet
	FromLoan bool
}

// Service resolves account balances and hands the split to the booker
type Service struct {
	booker            *Booker
	balances          BalanceIDs
	platformBalanceID string
	partnerBalanceID  string
}

// NewService creates split service
func NewService(booker *Booker, balances BalanceIDs, platformBalanceID, partnerBalanceID string) *Service {
	return &Service{
		booker:            booker,
		balances:          balances,
		platformBalanceID: platformBalanceID,
		partnerBalanceID:  partnerBalanceID,
	}
}

// BookOrder resolves the customer and retailer balances and books the split
func (s *Service) BookOrder(ctx context.Context, in OrderSplit) (*Result, error) {
	source := balance.KindWallet
	if in.FromLoan {
		source = balance.KindLoan
	}
	customer, err := s.balances.BalanceID(ctx, in.CustomerAccountID, source)
	if err != nil {
		return nil, fmt.Errorf("customer balance: %w", err)
	}
	retailer, err := s.balances.BalanceID(ctx, in.RetailerAccountID, balance.KindWallet)
	if err != nil {
		return nil, fmt.Errorf("retailer balance: %w", err)
	}

	return s.booker.Book(ctx, BookRequest{
		OrderID:           in.OrderID,
		Total:             in.Total,
		CustomerBalanceID: customer,
		RetailerBalanceID: retailer,
		PlatformBalanceID: s.platformBalanceID,
		PartnerBalanceID:  s.partnerBalanceID,
	})
}

// ListFailures returns archived partial-split keys
func (s *Service) ListFailures(ctx context.Context) ([]string, error) {
	return s.booker.ListFailures(ctx)
}

// GetFailure reads one archived partial split
func (s *Service) GetFailure(ctx context.Context, key string) (*FailureRecord, error) {
	return s.booker.GetFailure(ctx, key)
}
