package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tessellated/authcore/internal"
)

func TestRefreshRotatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	first, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(10 * time.Minute)

	second, err := env.engine.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.Refresh == first.Refresh {
		t.Fatal("refresh token was not rotated")
	}
	if !second.RefreshableUntil.Equal(env.clock.Now().Add(2 * time.Hour)) {
		t.Fatalf("RefreshableUntil = %v, want window restarted at rotation", second.RefreshableUntil)
	}

	result, err := env.engine.ValidateAccessStrict(context.Background(), second.Access)
	if err != nil {
		t.Fatalf("validate successor access: %v", err)
	}
	if result.AccountID != "acc-1" || result.Role != "member" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRefreshReuseRevokesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	first, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	second, err := env.engine.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replay the spent token: reuse is detected and every session of the
	// account goes down with it, including the fresh successor.
	if _, err := env.engine.Refresh(context.Background(), first.Refresh); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("err = %v, want ErrTokenReuse", err)
	}

	n, err := env.engine.ActiveSessionCount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 0 {
		t.Fatalf("active sessions after reuse = %d, want 0", n)
	}

	if _, err := env.engine.Refresh(context.Background(), second.Refresh); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("successor refresh err = %v, want ErrTokenReuse", err)
	}
}

func TestRefreshMalformedToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)

	// Well-formed but never issued.
	token, _, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(2*time.Hour + time.Minute)

	if _, err := env.engine.Refresh(context.Background(), pair.Refresh); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestRefreshSuspendedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.accounts.setStatus("acc-1", AccountSuspended)

	if _, err := env.engine.Refresh(context.Background(), pair.Refresh); !errors.Is(err, ErrAccountUnavailable) {
		t.Fatalf("err = %v, want ErrAccountUnavailable", err)
	}

	// The rotation's successor must not have survived.
	n, err := env.engine.ActiveSessionCount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if n != 0 {
		t.Fatalf("active sessions = %d, want 0", n)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.MaxRefreshAttempts = 2
		cfg.Security.RefreshCooldownDuration = time.Minute
	})

	token, _, err := internal.NewRefreshToken()
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Refresh(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("attempt %d: err = %v, want ErrTokenInvalid", i, err)
		}
	}
	if _, err := env.engine.Refresh(context.Background(), token); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("err = %v, want ErrRefreshRateLimited", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.MaxRefreshAttempts = 100
	})
	env.seedAccount(t, "acc-1", "alice@example.com", "correct-horse-battery", "member", AccountActive)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), pair.Refresh)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrTokenReuse) {
			t.Fatalf("loser err = %v, want ErrTokenReuse", err)
		}
	}
}
