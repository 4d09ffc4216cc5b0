// Package token issues and verifies the signed session tokens that carry
// identity and role claims. Tokens are stateless; there is no server-side
// revocation list.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
)

var (
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature invalid")
	ErrExpired   = errors.New("token expired")
)

// Claims embeds the registered JWT claims plus the role claim. Subject holds
// the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Service struct {
	secret []byte
	ttl    time.Duration
}

const DefaultTTL = 7 * 24 * time.Hour

func NewService(secret string, ttl time.Duration) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the given subject and role and returns it with its
// expiry instant.
func (s *Service) Issue(userID string, role models.Role) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: string(role),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses and checks a token, failing closed on any defect. The error
// is one of ErrMalformed, ErrSignature, ErrExpired.
func (s *Service) Verify(tokenString string) (string, models.Role, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSignature
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", "", ErrSignature
		default:
			return "", "", ErrMalformed
		}
	}
	if !tok.Valid || claims.Subject == "" {
		return "", "", ErrMalformed
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return "", "", ErrMalformed
	}
	return claims.Subject, role, nil
}
