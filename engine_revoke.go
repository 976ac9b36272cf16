package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/tessellated/authcore/internal"
	"github.com/tessellated/authcore/session"
)

// Logout revokes a single session. Idempotent: revoking a session that
// is absent or already revoked succeeds and leaves the earlier
// revocation record untouched.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	n, err := e.sessionStore.Revoke(ctx, sessionID, session.ReasonLogout)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, ErrSessionInvalidationFailed, nil)
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogout)
	// A repeat or unknown-session logout flips nothing and counts nothing.
	e.metricAdd(MetricSessionRevoked, uint64(n))
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)

	return nil
}

// LogoutByRefreshToken revokes the session holding the presented
// refresh token. A token that decodes but matches no session is a
// no-op, matching Logout's idempotency; a malformed token fails with
// ErrTokenInvalid.
func (e *Engine) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	digest, err := internal.ParseRefreshToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	sess, err := e.sessionStore.GetByRefreshDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return e.Logout(ctx, sess.ID)
}

// LogoutAll revokes every active session of an account in one statement
// and returns how many sessions it closed. Zero is not an error.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n, err := e.sessionStore.RevokeAllForAccount(ctx, accountID, session.ReasonLogoutAll)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, accountID, "", ErrSessionInvalidationFailed, nil)
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricLogoutAll)
	e.metricAdd(MetricSessionRevoked, uint64(n))
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": fmt.Sprintf("%d", n)}
	})

	return n, nil
}

// SetAccountStatus transitions an account's lifecycle status. Moving to
// any status other than AccountActive also revokes every active session
// of the account, so a suspension takes effect at the next refresh at
// the latest.
func (e *Engine) SetAccountStatus(ctx context.Context, accountID string, status AccountStatus) error {
	if err := e.ready(); err != nil {
		return err
	}

	if _, err := e.accounts.GetByID(ctx, accountID); err != nil {
		return ErrAccountNotFound
	}

	if err := e.accounts.UpdateStatus(ctx, accountID, status); err != nil {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, accountID, "", err, nil)
		return err
	}

	var revoked int64
	if status != AccountActive {
		n, err := e.sessionStore.RevokeAllForAccount(ctx, accountID, session.ReasonStatusChange)
		if err != nil {
			e.emitAudit(ctx, auditEventAccountStatusChange, false, accountID, "", ErrSessionInvalidationFailed, nil)
			return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
		}
		revoked = n
		e.metricAdd(MetricSessionRevoked, uint64(n))
	}

	e.metricInc(MetricAccountStatusChanged)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, accountID, "", nil, func() map[string]string {
		return map[string]string{
			"status":           fmt.Sprintf("%d", status),
			"revoked_sessions": fmt.Sprintf("%d", revoked),
		}
	})

	return nil
}

// ActiveSessions describes the activesessions operation and its observable behavior.
//
// ActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActiveSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessions, err := e.sessionStore.ActiveForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			SessionID: s.ID,
			AccountID: s.AccountID,
			Role:      s.Role,
			IssuedAt:  s.IssuedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return out, nil
}

// ActiveSessionCount describes the activesessioncount operation and its observable behavior.
//
// ActiveSessionCount may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessionCount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActiveSessionCount(ctx context.Context, accountID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n, err := e.sessionStore.ActiveCount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// PurgeExpiredSessions physically deletes session rows that expired
// more than the configured retention window ago and returns how many
// rows were removed. Intended to run from a periodic job; revoked rows
// that can still witness token reuse are never touched.
func (e *Engine) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n, err := e.sessionStore.PurgeExpired(ctx, e.config.Session.RetentionWindow)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricAdd(MetricSessionsPurged, uint64(n))
	e.emitAudit(ctx, auditEventSessionsPurged, true, "", "", nil, func() map[string]string {
		return map[string]string{"purged_rows": fmt.Sprintf("%d", n)}
	})

	return n, nil
}
