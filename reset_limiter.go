package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// passwordResetLimiter throttles reset requests per identifier and
// confirm attempts per challenge, each as a Redis fixed window.
type passwordResetLimiter struct {
	redis    redis.UniversalClient
	config   PasswordResetConfig
	security SecurityConfig
}

func newPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig, sec SecurityConfig) *passwordResetLimiter {
	return &passwordResetLimiter{
		redis:    redisClient,
		config:   cfg,
		security: sec,
	}
}

// CheckRequest describes the checkrequest operation and its observable behavior.
//
// CheckRequest may return an error when input validation, dependency calls, or security checks fail.
// CheckRequest does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *passwordResetLimiter) CheckRequest(ctx context.Context, identifier, ip string) error {
	if l.config.EnableIdentifierThrottle {
		if err := l.enforceFixedWindow(ctx, requestIdentifierKey(identifier), l.config.MaxRequests, l.config.RequestCooldownDuration); err != nil {
			return err
		}
	}
	if l.security.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, requestIPKey(ip), l.config.MaxRequests, l.config.RequestCooldownDuration); err != nil {
			return err
		}
	}
	return nil
}

// CheckConfirm describes the checkconfirm operation and its observable behavior.
//
// CheckConfirm may return an error when input validation, dependency calls, or security checks fail.
// CheckConfirm does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (l *passwordResetLimiter) CheckConfirm(ctx context.Context, resetID, ip string) error {
	// The store enforces the precise attempts budget on live records;
	// this window only backstops hammering of ids that never had one, so
	// it gets headroom above MaxAttempts.
	max := 2 * l.config.MaxAttempts
	if err := l.enforceFixedWindow(ctx, confirmChallengeKey(resetID), max, l.config.ResetTTL); err != nil {
		return err
	}
	if l.security.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, confirmIPKey(ip), max, l.config.ResetTTL); err != nil {
			return err
		}
	}
	return nil
}

func (l *passwordResetLimiter) enforceFixedWindow(ctx context.Context, key string, max int, ttl time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", errResetRedisUnavailable, err)
		}
	}

	if count > int64(max) {
		return errResetRateLimited
	}

	return nil
}

func requestIdentifierKey(identifier string) string {
	return "apri:" + identifier
}

func requestIPKey(ip string) string {
	return "aprip:" + ip
}

func confirmChallengeKey(resetID string) string {
	return "aprc:" + resetID
}

func confirmIPKey(ip string) string {
	return "aprcip:" + ip
}
