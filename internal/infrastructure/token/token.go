package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Service signs and verifies HS256 session tokens
type Service struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

// Claims carry the identity of a session
type Claims struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Provider    string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// User returns the identity carried by the claims
func (c *Claims) User() *domain.User {
	return &domain.User{
		ID:          c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Provider:    c.Provider,
	}
}

func (s Service) Sign(u *domain.User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.Duration)

	claims := Claims{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Provider:    u.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its claims. Every failure wraps
// domain.ErrInvalidToken.
func (s Service) Parse(tokenString string) (*Claims, error) {
	if len(s.Secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret configured", domain.ErrInvalidToken)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid claims", domain.ErrInvalidToken)
	}
	return claims, nil
}
