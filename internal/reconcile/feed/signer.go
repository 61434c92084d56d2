package feed

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const signerIssuer = "credsync"

// TokenSource yields the bearer token attached to each feed request.
type TokenSource interface {
	Token(now time.Time) (string, error)
}

// StaticToken sends a pre-shared API token as is.
type StaticToken string

func (t StaticToken) Token(time.Time) (string, error) { return string(t), nil }

// HMACSigner mints a short-lived HS256 token per request.
type HMACSigner struct {
	key      []byte
	audience string
	ttl      time.Duration
}

func NewHMACSigner(key []byte, audience string, ttl time.Duration) (*HMACSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("feed signing key is empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &HMACSigner{key: key, audience: audience, ttl: ttl}, nil
}

func (s *HMACSigner) Token(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    signerIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}
