package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/tessellated/authcore/internal"
	"github.com/tessellated/authcore/session"
)

// Refresh rotates a refresh token: the presented session is retired and
// a successor with a fresh token pair takes its place, atomically.
//
// Presenting a token whose session was already retired is treated as
// reuse: every session of the owning account is revoked before the call
// fails with ErrTokenReuse. Concurrent refreshes of the same token race
// for the rotation; exactly one wins and the losers take the reuse
// path. Clients that retry a refresh after a network timeout can
// therefore trip the defense; they should resubmit the token they were
// issued, never an older one.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	digest, err := internal.ParseRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed"}
		})
		return nil, ErrTokenInvalid
	}

	if err := e.rateLimiter.CheckRefresh(ctx, internal.TokenRateKey(digest)); err != nil {
		mapped := mapLimiterError(err, ErrRefreshRateLimited)
		if errors.Is(mapped, ErrRefreshRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitRateLimit(ctx, "refresh", nil)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", mapped, nil)
		}
		return nil, mapped
	}

	successorToken, successorDigest, err := internal.NewRefreshToken()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.now()
	next := &session.Session{
		ID:            uuid.NewString(),
		RefreshDigest: successorDigest,
		IssuedAt:      now,
		ExpiresAt:     now.Add(e.config.JWT.RefreshTTL),
	}

	old, rotateErr := e.sessionStore.Rotate(ctx, digest, next)
	if rotateErr != nil {
		return nil, e.handleRotateFailure(ctx, old, rotateErr)
	}
	e.metricInc(MetricSessionCreated)

	// The account may have been suspended or deleted since the previous
	// rotation. Recheck before minting a new access token; on failure
	// the just-created successor must not survive either.
	account, err := e.accounts.GetByID(ctx, next.AccountID)
	if err != nil {
		e.revokeAccountAfterFailedRefresh(ctx, next.AccountID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, next.AccountID, next.ID, ErrAccountNotFound, nil)
		return nil, ErrAccountNotFound
	}
	if statusErr := e.accountStatusError(account.Status); statusErr != nil {
		e.revokeAccountAfterFailedRefresh(ctx, next.AccountID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, next.AccountID, next.ID, statusErr, nil)
		return nil, statusErr
	}

	access, accessExpiry, err := e.jwtManager.CreateAccess(next.AccountID, account.Role, next.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, next.AccountID, next.ID, nil, func() map[string]string {
		return map[string]string{"predecessor": old.ID}
	})

	return &TokenPair{
		Access:           access,
		Refresh:          successorToken,
		ExpiredAt:        accessExpiry,
		RefreshableUntil: next.ExpiresAt,
	}, nil
}

// handleRotateFailure classifies a failed rotation and runs the reuse
// defense when the presented token belongs to an already-retired
// session.
func (e *Engine) handleRotateFailure(ctx context.Context, old *session.Session, rotateErr error) error {
	switch {
	case errors.Is(rotateErr, session.ErrNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "unknown_token"}
		})
		return ErrTokenInvalid

	case errors.Is(rotateErr, session.ErrExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, sessionAccountID(old), sessionID(old), ErrTokenExpired, nil)
		return ErrTokenExpired

	case errors.Is(rotateErr, session.ErrRevoked):
		e.metricInc(MetricRefreshReuseDetected)

		var revoked int64
		if old != nil {
			n, sweepErr := e.sessionStore.RevokeAllForAccount(ctx, old.AccountID, session.ReasonTokenReuse)
			if sweepErr != nil {
				log.Print("authcore: reuse defense sweep failed: ", sweepErr)
			}
			revoked = n
			e.metricAdd(MetricSessionRevoked, uint64(n))
		}

		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, sessionAccountID(old), sessionID(old), ErrTokenReuse, func() map[string]string {
			return map[string]string{
				"revoked_sessions": fmt.Sprintf("%d", revoked),
				"original_reason":  sessionRevokeReason(old),
			}
		})
		return ErrTokenReuse

	default:
		e.metricInc(MetricRefreshFailure)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, rotateErr)
	}
}

func (e *Engine) revokeAccountAfterFailedRefresh(ctx context.Context, accountID string) {
	n, err := e.sessionStore.RevokeAllForAccount(ctx, accountID, session.ReasonStatusChange)
	if err != nil {
		log.Print("authcore: post-refresh revocation failed: ", err)
		return
	}
	e.metricAdd(MetricSessionRevoked, uint64(n))
}

func sessionID(s *session.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func sessionAccountID(s *session.Session) string {
	if s == nil {
		return ""
	}
	return s.AccountID
}

func sessionRevokeReason(s *session.Session) string {
	if s == nil {
		return ""
	}
	return s.RevokeReason
}
