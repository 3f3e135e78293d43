package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-formsync/core"
)

const sessionIssuer = "formsync"

// SessionClaims identify an owner. The subject is the local owner user id.
type SessionClaims struct {
	ExternalUserID string `json:"airtable_user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("httpapi: session secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Sessions) Issue(credential core.CredentialRecord) (string, error) {
	if strings.TrimSpace(credential.ID) == "" {
		return "", fmt.Errorf("httpapi: credential id is required")
	}
	now := s.now()
	claims := SessionClaims{
		ExternalUserID: credential.ExternalUserID,
		Email:          credential.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   credential.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Sessions) Verify(token string) (SessionClaims, error) {
	claims := SessionClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return SessionClaims{}, core.UnauthorizedError("invalid session token", err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, core.UnauthorizedError("invalid session token", nil)
	}
	return claims, nil
}
