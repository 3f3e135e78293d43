package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 15 * time.Minute

// OAuthStateRecord binds an authorization state to the PKCE verifier that
// produced its challenge.
type OAuthStateRecord struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (r OAuthStateRecord) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// OAuthStateStore is a server-side fallback for the verifier cookie. Consume
// is single use.
type OAuthStateStore interface {
	Save(ctx context.Context, record OAuthStateRecord) error
	Consume(ctx context.Context, state string) (OAuthStateRecord, error)
}

type MemoryOAuthStateStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	verifier map[string]OAuthStateRecord
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryOAuthStateStore{
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		verifier: map[string]OAuthStateRecord{},
	}
}

// Save keeps record until it expires. Expired entries are pruned on write.
func (s *MemoryOAuthStateStore) Save(_ context.Context, record OAuthStateRecord) error {
	if s == nil {
		return InternalError("oauth state store is not configured", nil)
	}
	record.State = strings.TrimSpace(record.State)
	if record.State == "" {
		return BadInputError("oauth state is required")
	}

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.verifier {
		if entry.expired(now) {
			delete(s.verifier, key)
		}
	}
	s.verifier[record.State] = record
	return nil
}

// Consume removes and returns the record for state. Unknown and expired
// states both report NotFound.
func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (OAuthStateRecord, error) {
	if s == nil {
		return OAuthStateRecord{}, InternalError("oauth state store is not configured", nil)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthStateRecord{}, BadInputError("oauth state is required")
	}

	s.mu.Lock()
	record, ok := s.verifier[state]
	delete(s.verifier, state)
	s.mu.Unlock()

	if !ok || record.expired(s.now()) {
		return OAuthStateRecord{}, NotFoundError("oauth state not found or expired")
	}
	return record, nil
}

func (s *MemoryOAuthStateStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verifier)
}

// generateOAuthState returns 24 random bytes, URL-safe encoded.
func generateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
