package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryOAuthStateStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryOAuthStateStore(time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, OAuthStateRecord{State: " st_1 ", CodeVerifier: "verifier"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	record, err := store.Consume(ctx, "st_1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.CodeVerifier != "verifier" {
		t.Fatalf("expected verifier to round trip, got %q", record.CodeVerifier)
	}
	if _, err := store.Consume(ctx, "st_1"); !IsNotFound(err) {
		t.Fatalf("expected second consume to report not found, got %v", err)
	}
}

func TestMemoryOAuthStateStore_ExpiresByClock(t *testing.T) {
	store := NewMemoryOAuthStateStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, OAuthStateRecord{State: "stale_state"}); err != nil {
		t.Fatalf("save stale state: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := store.Save(ctx, OAuthStateRecord{State: "fresh_state"}); err != nil {
		t.Fatalf("save fresh state: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected stale entry to be pruned on write, got %d entries", store.Len())
	}
	if _, err := store.Consume(ctx, "stale_state"); !IsNotFound(err) {
		t.Fatalf("expected stale state to be unavailable, got %v", err)
	}

	now = now.Add(90 * time.Second)
	if _, err := store.Consume(ctx, "fresh_state"); !IsNotFound(err) {
		t.Fatalf("expected fresh state to expire after ttl, got %v", err)
	}
}

func TestMemoryOAuthStateStore_RejectsEmptyState(t *testing.T) {
	store := NewMemoryOAuthStateStore(0)
	if err := store.Save(context.Background(), OAuthStateRecord{}); err == nil {
		t.Fatalf("expected empty state to be rejected")
	}
	if _, err := store.Consume(context.Background(), "  "); err == nil {
		t.Fatalf("expected empty consume to be rejected")
	}
}
