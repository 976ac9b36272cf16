package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockout(t *testing.T, cfg LockoutConfig) (*LockoutLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLockoutLimiter(client, cfg), mr
}

func TestLockoutEngagesAtThreshold(t *testing.T) {
	l, _ := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 3, Duration: 30 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := l.RecordFailure(ctx, "acc-1")
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is 3", i+1)
		}
	}

	locked, err := l.RecordFailure(ctx, "acc-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !locked {
		t.Fatal("third failure must engage the lock")
	}

	isLocked, err := l.IsLocked(ctx, "acc-1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if !isLocked {
		t.Fatal("lock key missing after engagement")
	}
}

func TestLockoutSurvivesCounterWindow(t *testing.T) {
	l, mr := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 2, Duration: 30 * time.Minute})
	ctx := context.Background()

	_, _ = l.RecordFailure(ctx, "acc-1")
	_, _ = l.RecordFailure(ctx, "acc-1")

	// Counter would have expired; the lock key has its own TTL.
	mr.FastForward(29 * time.Minute)
	locked, err := l.IsLocked(ctx, "acc-1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if !locked {
		t.Fatal("lock must outlive the counting window")
	}

	mr.FastForward(2 * time.Minute)
	locked, err = l.IsLocked(ctx, "acc-1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("lock must lapse after its duration")
	}
}

func TestLockoutResetClearsCounterOnly(t *testing.T) {
	l, _ := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 3, Duration: 30 * time.Minute})
	ctx := context.Background()

	_, _ = l.RecordFailure(ctx, "acc-1")
	_, _ = l.RecordFailure(ctx, "acc-1")
	if err := l.Reset(ctx, "acc-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	count, err := l.GetFailureCount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d after reset, want 0", count)
	}
}

func TestLockoutUnlock(t *testing.T) {
	l, _ := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 1, Duration: 30 * time.Minute})
	ctx := context.Background()

	if _, err := l.RecordFailure(ctx, "acc-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Unlock(ctx, "acc-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	locked, err := l.IsLocked(ctx, "acc-1")
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("account still locked after operator unlock")
	}
}

func TestLockoutDisabledIsNoOp(t *testing.T) {
	l, _ := newTestLockout(t, LockoutConfig{Enabled: false, Threshold: 1, Duration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		locked, err := l.RecordFailure(ctx, "acc-1")
		if err != nil || locked {
			t.Fatalf("disabled limiter acted: locked=%v err=%v", locked, err)
		}
	}
	locked, err := l.IsLocked(ctx, "acc-1")
	if err != nil || locked {
		t.Fatalf("disabled limiter reports lock: locked=%v err=%v", locked, err)
	}
}
