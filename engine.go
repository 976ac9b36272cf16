package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/tessellated/authcore/internal/limiters"
	"github.com/tessellated/authcore/internal/rate"
	"github.com/tessellated/authcore/jwt"
	"github.com/tessellated/authcore/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config

	accounts     AccountStore
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	lockout      *limiters.LockoutLimiter
	resetStore   *passwordResetStore
	resetLimiter *passwordResetLimiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash PasswordHasher
	jwtManager   *jwt.Manager
	clock        Clock

	// roles is the set of role strings the engine will mint into access
	// tokens. Empty means no restriction.
	roles map[string]struct{}

	// dummyHash is verified against on unknown-account login paths so
	// lookup misses cost the same as password mismatches.
	dummyHash string

	closed atomic.Bool
}

func (e *Engine) ready() error {
	if e == nil || e.sessionStore == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	e.audit.Close()
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil {
		return
	}
	e.metrics.Add(id, n)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// ValidateAccess parses and verifies an access token without touching
// the session store. Revocation between issuance and expiry is not
// visible here; use ValidateAccessStrict when that matters.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := e.now()
	claims, err := e.jwtManager.ParseAccess(accessToken)
	e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	if err != nil {
		return nil, mapAccessTokenError(err)
	}

	return &AuthResult{
		AccountID: claims.UID,
		Role:      claims.Role,
		SessionID: claims.SID,
	}, nil
}

// ValidateAccessStrict validates the token signature and claims, then
// confirms the backing session is still active. Revoked and expired
// sessions fail even when the token itself has not expired yet.
func (e *Engine) ValidateAccessStrict(ctx context.Context, accessToken string) (*AuthResult, error) {
	result, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessionStore.Get(ctx, result.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if sess.Revoked() {
		return nil, ErrTokenInvalid
	}
	if sess.Expired(e.now()) {
		return nil, ErrTokenExpired
	}

	return result, nil
}

func mapAccessTokenError(err error) error {
	if errors.Is(err, jwtv5.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func (e *Engine) accountStatusError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountPendingVerification:
		if e.config.Security.RequireVerified {
			return ErrAccountUnverified
		}
		return nil
	default:
		return ErrAccountUnavailable
	}
}

func (e *Engine) roleRegistered(role string) bool {
	if len(e.roles) == 0 {
		return true
	}
	_, ok := e.roles[role]
	return ok
}

func mapLimiterError(err error, limited error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
}
