// internal/pkg/jwt/jwt.go
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const TokenTypeAccess = "access"

// Roles carried in access tokens
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleTerminal = "terminal"
	RoleAdmin    = "admin"
)

// Claims represents access JWT claims.
// For terminal tokens AccountID is the merchant account the terminal belongs to.
type Claims struct {
	AccountID  uuid.UUID `json:"account_id"`
	Role       string    `json:"role"`
	TerminalID string    `json:"terminal_id,omitempty"`
	Type       string    `json:"type"`
	jwt.RegisteredClaims
}

// Service handles JWT operations
type Service struct {
	secret    []byte
	accessTTL time.Duration
}

// NewService creates JWT service
func NewService(secret string, accessTTL time.Duration) *Service {
	return &Service{secret: []byte(secret), accessTTL: accessTTL}
}

// GenerateAccessToken generates access token
func (s *Service) GenerateAccessToken(accountID uuid.UUID, role string) (string, error) {
	return s.generate(accountID, role, "")
}

// GenerateTerminalToken generates an access token for a point-of-sale terminal
func (s *Service) GenerateTerminalToken(merchantID uuid.UUID, terminalID string) (string, error) {
	return s.generate(merchantID, RoleTerminal, terminalID)
}

func (s *Service) generate(accountID uuid.UUID, role, terminalID string) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID:  accountID,
		Role:       role,
		TerminalID: terminalID,
		Type:       TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken validates and parses access token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
