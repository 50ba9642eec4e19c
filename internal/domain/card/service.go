package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/pkg/pinhash"
	"github.com/tapcard/tapcard-api/internal/pkg/validator"
)

const (
	maxUIDLength       = 64
	maxCodeGenAttempts = 5
)

// Service is the card registry
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates card service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates an inactive card with a fresh dashboard code.
// An existing UID is returned unchanged.
func (s *Service) Register(ctx context.Context, uid string) (*Card, error) {
	uid = NormalizeUID(uid)
	if uid == "" || len(uid) > maxUIDLength {
		return nil, ErrInvalidUID
	}

	existing, err := s.repo.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	for attempt := 0; attempt < maxCodeGenAttempts; attempt++ {
		code, err := generateDashboardCode()
		if err != nil {
			return nil, err
		}

		now := s.now()
		card := &Card{
			UID:           uid,
			DashboardCode: code,
			IsActive:      false,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = s.repo.Create(ctx, card)
		switch {
		case err == nil:
			log.Info().Str("card_uid", uid).Str("dashboard_code", code).Msg("card registered")
			return card, nil
		case errors.Is(err, errDuplicateCode):
			continue
		case errors.Is(err, errDuplicateUID):
			// registered concurrently
			return s.repo.GetByUID(ctx, uid)
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("register card %s: dashboard code collisions exhausted", uid)
}

// Link binds a card to accountID, auto-registering unseen cards, and activates it
func (s *Service) Link(ctx context.Context, accountID uuid.UUID, uid, pin string, alias *string) (*Card, error) {
	if !validator.IsValidPin(pin) {
		return nil, ErrInvalidPinFormat
	}

	card, err := s.Register(ctx, uid)
	if err != nil {
		return nil, err
	}
	if card.IsLinked() && !card.OwnedBy(accountID) {
		return nil, ErrAlreadyLinked
	}

	hash, err := pinhash.Hash(pin)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Link(ctx, card.UID, accountID, hash, alias); err != nil {
		return nil, err
	}

	log.Info().Str("card_uid", card.UID).Str("account_id", accountID.String()).Msg("card linked")
	return s.repo.GetByUID(ctx, card.UID)
}

// Unlink verifies the PIN, then clears the owner and deactivates the card
func (s *Service) Unlink(ctx context.Context, accountID uuid.UUID, uid, pin string) error {
	card, err := s.owned(ctx, accountID, uid)
	if err != nil {
		return err
	}
	if !s.VerifyPin(card, pin) {
		return ErrInvalidPin
	}

	if err := s.repo.Unlink(ctx, card.UID, accountID); err != nil {
		return err
	}

	log.Info().Str("card_uid", card.UID).Str("account_id", accountID.String()).Msg("card unlinked")
	return nil
}

// Authenticate returns a card usable for payment
func (s *Service) Authenticate(ctx context.Context, uid string) (*Card, error) {
	card, err := s.repo.GetByUID(ctx, NormalizeUID(uid))
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotRecognized
	}
	if !card.IsActive {
		return nil, ErrInactive
	}
	if !card.IsLinked() {
		return nil, ErrNotLinked
	}
	return card, nil
}

// VerifyPin checks pin against the card's stored hash
func (s *Service) VerifyPin(card *Card, pin string) bool {
	if card == nil || !card.PinHash.Valid || pin == "" {
		return false
	}
	return pinhash.Verify(pin, card.PinHash.String)
}

// ChangePin replaces the PIN after verifying the current one
func (s *Service) ChangePin(ctx context.Context, accountID uuid.UUID, uid, oldPin, newPin string) error {
	if !validator.IsValidPin(newPin) {
		return ErrInvalidPinFormat
	}

	card, err := s.owned(ctx, accountID, uid)
	if err != nil {
		return err
	}
	if !s.VerifyPin(card, oldPin) {
		return ErrInvalidPin
	}

	hash, err := pinhash.Hash(newPin)
	if err != nil {
		return err
	}
	return s.repo.UpdatePin(ctx, card.UID, hash)
}

// SetActive blocks or unblocks a linked card
func (s *Service) SetActive(ctx context.Context, accountID uuid.UUID, uid string, active bool) (*Card, error) {
	card, err := s.owned(ctx, accountID, uid)
	if err != nil {
		return nil, err
	}
	if card.IsActive == active {
		return card, nil
	}

	if err := s.repo.SetActive(ctx, card.UID, active); err != nil {
		return nil, err
	}
	card.IsActive = active

	log.Info().Str("card_uid", card.UID).Bool("active", active).Msg("card status changed")
	return card, nil
}

// Touch records the card's last use
func (s *Service) Touch(ctx context.Context, uid string) error {
	return s.repo.Touch(ctx, NormalizeUID(uid), s.now())
}

// ListByAccount returns all cards linked to accountID
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Card, error) {
	return s.repo.List(ctx, ListFilter{AccountID: &accountID})
}

// GetByDashboardCode finds a card by its printed code
func (s *Service) GetByDashboardCode(ctx context.Context, code string) (*Card, error) {
	card, err := s.repo.GetByDashboardCode(ctx, normalizeDashboardCode(code))
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotRecognized
	}
	return card, nil
}

func (s *Service) owned(ctx context.Context, accountID uuid.UUID, uid string) (*Card, error) {
	card, err := s.repo.GetByUID(ctx, NormalizeUID(uid))
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrNotRecognized
	}
	if !card.OwnedBy(accountID) {
		return nil, ErrNotLinked
	}
	return card, nil
}

func normalizeDashboardCode(code string) string {
	raw := NormalizeUID(code)
	if len(raw) != dashboardGroupLength*2 {
		return raw
	}
	return raw[:dashboardGroupLength] + "-" + raw[dashboardGroupLength:]
}
