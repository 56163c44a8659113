package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidLink is returned for tampered, expired or malformed share links
var ErrInvalidLink = errors.New("invalid or expired link")

// LinkClaims identify the estimate a public share link grants access to
type LinkClaims struct {
	BusinessID uuid.UUID `json:"business_id"`
	EstimateID uuid.UUID `json:"estimate_id"`
	jwt.RegisteredClaims
}

// LinkSigner signs and verifies public estimate links
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewLinkSigner creates a signer; ttl bounds how long a shared link stays valid
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a token granting read and decision access to one estimate
func (s *LinkSigner) Sign(businessID, estimateID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.ttl)
	claims := &LinkClaims{
		BusinessID: businessID,
		EstimateID: estimateID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "bizworx",
			Subject:   estimateID.String(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign link: %w", err)
	}
	return token, expires, nil
}

// Parse verifies a link token
func (s *LinkSigner) Parse(token string) (*LinkClaims, error) {
	claims := &LinkClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer("bizworx"))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidLink
	}
	if claims.BusinessID == uuid.Nil || claims.EstimateID == uuid.Nil {
		return nil, ErrInvalidLink
	}
	return claims, nil
}
