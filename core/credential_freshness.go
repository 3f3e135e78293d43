package core

import (
	"strings"
	"time"
)

// DefaultCredentialExpiringSoonWindow is the lead time before expiry at
// which a credential is refreshed proactively.
const DefaultCredentialExpiringSoonWindow = DefaultRefreshSkew

// IsExpiringSoon reports whether now >= TokenExpiresAt - skew. A credential
// without an expiry is treated as expired.
func IsExpiringSoon(record CredentialRecord, now time.Time, skew time.Duration) bool {
	if skew < 0 {
		skew = 0
	}
	if record.TokenExpiresAt.IsZero() {
		return true
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return !now.Before(record.TokenExpiresAt.Add(-skew))
}

// ApplyGrant returns record updated with grant as received at now. The
// refresh token is replaced only when the grant rotates it and scopes only
// when the grant reports them.
func ApplyGrant(record CredentialRecord, grant TokenGrant, now time.Time) CredentialRecord {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	next := record.Clone()
	next.AccessToken = strings.TrimSpace(grant.AccessToken)
	if refresh := strings.TrimSpace(grant.RefreshToken); refresh != "" {
		next.RefreshToken = refresh
	}
	next.TokenExpiresAt = now.UTC().Add(grant.ExpiresIn)
	if len(grant.Scopes) > 0 {
		next.Scopes = append([]string(nil), grant.Scopes...)
	}
	next.UpdatedAt = now.UTC()
	return next
}
