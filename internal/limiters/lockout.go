package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the automatic account lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutLimiter tracks persistent failed login attempts per account and
// places the account behind a timed lock when the configured threshold
// is reached. The lock key outlives the failure counter, so a locked
// account stays locked for the full duration even after the counting
// window rolls over.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) counterKey(accountID string) string {
	return "alo:cnt:" + accountID
}

func (l *LockoutLimiter) lockKey(accountID string) string {
	return "alo:lock:" + accountID
}

// RecordFailure increments the failure counter for an account. When the
// threshold is reached the lock key is set and true is returned.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, accountID string) (bool, error) {
	if !l.config.Enabled || accountID == "" {
		return false, nil
	}

	count, err := l.redis.Incr(ctx, l.counterKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count == 1 && l.config.Duration > 0 {
		// Counter TTL bounds the counting window.
		if err := l.redis.Expire(ctx, l.counterKey(accountID), l.config.Duration).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count < int64(l.config.Threshold) {
		return false, nil
	}

	pipe := l.redis.TxPipeline()
	pipe.Set(ctx, l.lockKey(accountID), 1, l.config.Duration)
	pipe.Del(ctx, l.counterKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	return true, nil
}

// IsLocked reports whether the account is currently behind a lock.
func (l *LockoutLimiter) IsLocked(ctx context.Context, accountID string) (bool, error) {
	if !l.config.Enabled || accountID == "" {
		return false, nil
	}

	n, err := l.redis.Exists(ctx, l.lockKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n > 0, nil
}

// Reset clears the failure counter for an account after a successful login.
func (l *LockoutLimiter) Reset(ctx context.Context, accountID string) error {
	if !l.config.Enabled || accountID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.counterKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Unlock removes the lock and the counter (manual operator unlock).
func (l *LockoutLimiter) Unlock(ctx context.Context, accountID string) error {
	if !l.config.Enabled || accountID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.lockKey(accountID), l.counterKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// GetFailureCount returns the current failure count for an account.
func (l *LockoutLimiter) GetFailureCount(ctx context.Context, accountID string) (int, error) {
	if !l.config.Enabled || accountID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.counterKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
