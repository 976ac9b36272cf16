package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	result, err := env.engine.ValidateAccess(context.Background(), pair.Access)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := env.engine.Logout(context.Background(), result.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), result.SessionID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), "no-such-session"); err != nil {
		t.Fatalf("logout of unknown session: %v", err)
	}

	if _, err := env.engine.ValidateAccessStrict(context.Background(), pair.Access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("strict validate after logout: err = %v, want ErrTokenInvalid", err)
	}
	// Stateless validation still passes until the token expires.
	if _, err := env.engine.ValidateAccess(context.Background(), pair.Access); err != nil {
		t.Fatalf("stateless validate after logout: %v", err)
	}
}

func TestLogoutMetricCountsFlippedRowsOnly(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	result, err := env.engine.ValidateAccess(context.Background(), pair.Access)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := env.engine.Logout(context.Background(), result.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), result.SessionID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), "no-such-session"); err != nil {
		t.Fatalf("logout of unknown session: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if got := snap.Counters[MetricLogout]; got != 3 {
		t.Fatalf("MetricLogout = %d, want 3", got)
	}
	// Only the first call flipped a row; the repeats must not inflate
	// the revocation counter.
	if got := snap.Counters[MetricSessionRevoked]; got != 1 {
		t.Fatalf("MetricSessionRevoked = %d, want 1", got)
	}
}

func TestLogoutByRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.LogoutByRefreshToken(context.Background(), pair.Refresh); err != nil {
		t.Fatalf("logout by refresh token: %v", err)
	}
	if err := env.engine.LogoutByRefreshToken(context.Background(), pair.Refresh); err != nil {
		t.Fatalf("repeat logout by refresh token: %v", err)
	}
	if err := env.engine.LogoutByRefreshToken(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("malformed token err = %v, want ErrTokenInvalid", err)
	}

	n, err := env.engine.ActiveSessionCount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 0 {
		t.Fatalf("active sessions = %d, want 0", n)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	n, err := env.engine.LogoutAll(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked = %d, want 3", n)
	}

	// Nothing left to revoke; zero is not an error.
	n, err = env.engine.LogoutAll(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("second logout all: %v", err)
	}
	if n != 0 {
		t.Fatalf("revoked = %d, want 0", n)
	}
}

func TestSetAccountStatusRevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.SetAccountStatus(context.Background(), "acc-1", AccountSuspended); err != nil {
		t.Fatalf("set status: %v", err)
	}

	n, err := env.engine.ActiveSessionCount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 0 {
		t.Fatalf("active sessions = %d, want 0", n)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); !errors.Is(err, ErrAccountUnavailable) {
		t.Fatalf("login while suspended: err = %v, want ErrAccountUnavailable", err)
	}

	// Reactivation does not resurrect the revoked sessions.
	if err := env.engine.SetAccountStatus(context.Background(), "acc-1", AccountActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	n, _ = env.engine.ActiveSessionCount(context.Background(), "acc-1")
	if n != 0 {
		t.Fatalf("active sessions after reactivation = %d, want 0", n)
	}
}

func TestActiveSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	infos, err := env.engine.ActiveSessions(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("active sessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len = %d, want 2", len(infos))
	}
	if infos[0].IssuedAt.Before(infos[1].IssuedAt) {
		t.Fatal("expected newest session first")
	}
	for _, info := range infos {
		if info.AccountID != "acc-1" || info.Role != "member" || info.SessionID == "" {
			t.Fatalf("unexpected session info: %+v", info)
		}
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Expired but still inside the retention window: kept.
	env.clock.Advance(3 * time.Hour)
	n, err := env.engine.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("purged = %d inside retention window, want 0", n)
	}

	// Past expiry plus the full retention window: removed.
	env.clock.Advance(48 * time.Hour)
	n, err = env.engine.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
}
