package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-formsync/core"
)

func TestAdaptivePolicy_BeforeCallAllowsWhenNoState(t *testing.T) {
	policy := NewAdaptivePolicy(NewMemoryStateStore())
	if err := policy.BeforeCall(context.Background(), "owner:usr_1"); err != nil {
		t.Fatalf("expected no error when no state exists, got %v", err)
	}
}

func TestAdaptivePolicy_ThrottlesAfter429UsingRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "12")
	if err := policy.AfterCall(ctx, "owner:usr_1", http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("after call: %v", err)
	}

	err := policy.BeforeCall(ctx, "owner:usr_1")
	if err == nil {
		t.Fatalf("expected throttle error")
	}
	if !core.IsUpstreamTransient(err) {
		t.Fatalf("expected upstream transient error, got %v", err)
	}
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError in chain, got %T", err)
	}
	if throttled.RetryAfter != 12*time.Second {
		t.Fatalf("expected 12s retry, got %s", throttled.RetryAfter)
	}

	if err := policy.BeforeCall(ctx, "owner:usr_2"); err != nil {
		t.Fatalf("expected other buckets to pass, got %v", err)
	}

	now = now.Add(13 * time.Second)
	if err := policy.BeforeCall(ctx, "owner:usr_1"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestAdaptivePolicy_BacksOffWithoutHintAndClearsOnSuccess(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := policy.AfterCall(ctx, "owner:usr_1", http.StatusTooManyRequests, nil); err != nil {
			t.Fatalf("after call: %v", err)
		}
	}
	state, err := store.Get(ctx, "owner:usr_1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", state.Attempts)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(2*DefaultPenalty)) {
		t.Fatalf("expected doubled penalty, got %+v", state.ThrottledUntil)
	}

	if err := policy.AfterCall(ctx, "owner:usr_1", http.StatusOK, nil); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, _ = store.Get(ctx, "owner:usr_1")
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected state cleared, got %+v", state)
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	headers := http.Header{}
	headers.Set("Retry-After", now.Add(40*time.Second).Format(http.TimeFormat))
	delay, ok := parseRetryAfter(headers, now)
	if !ok || delay != 40*time.Second {
		t.Fatalf("expected 40s from http date, got %s ok=%v", delay, ok)
	}
}
