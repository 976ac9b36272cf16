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

// Login verifies a credential pair and, on success, opens a session and
// returns its token pair.
//
// Every rejection path costs one password verification: unknown
// identifiers are verified against a precomputed dummy hash, so the
// caller cannot distinguish a missing account from a wrong password by
// timing or by error value.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
		mapped := mapLimiterError(err, ErrLoginRateLimited)
		if errors.Is(mapped, ErrLoginRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, "login", func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", mapped, nil)
		}
		return nil, mapped
	}

	account, lookupErr := e.accounts.GetByIdentifier(ctx, identifier)
	if lookupErr != nil {
		// Burn a verification against the dummy hash before failing.
		_, _ = e.passwordHash.Verify(password, e.dummyHash)
		e.recordLoginFailure(ctx, identifier, ip, "")
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "unknown_identifier"}
		})
		return nil, ErrInvalidCredentials
	}

	locked, err := e.lockout.IsLocked(ctx, account.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if locked {
		// Still burn a verification so the lock does not change timing.
		_, _ = e.passwordHash.Verify(password, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		e.recordLoginFailure(ctx, identifier, ip, account.AccountID)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if statusErr := e.accountStatusError(account.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, "", statusErr, nil)
		return nil, statusErr
	}

	if !e.roleRegistered(account.Role) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, "", ErrRoleUnknown, func() map[string]string {
			return map[string]string{"role": account.Role}
		})
		return nil, ErrRoleUnknown
	}

	if e.config.Password.UpgradeOnLogin && e.passwordHash.NeedsUpgrade(account.PasswordHash) {
		if upgraded, hashErr := e.passwordHash.Hash(password); hashErr == nil {
			if updErr := e.accounts.UpdatePasswordHash(ctx, account.AccountID, upgraded); updErr != nil {
				log.Print("authcore: password hash upgrade failed: ", updErr)
			}
		}
	}

	pair, sess, err := e.issueForAccount(ctx, account.AccountID, account.Role)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, "", err, nil)
		return nil, err
	}

	if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
		log.Print("authcore: login counter reset failed: ", err)
	}
	if err := e.lockout.Reset(ctx, account.AccountID); err != nil {
		log.Print("authcore: lockout counter reset failed: ", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.AccountID, sess.ID, nil, nil)

	return pair, nil
}

// Issue opens a session for an already-authenticated account and
// returns its token pair. Intended for trust paths that bypass password
// verification, such as federated identity callbacks. The account must
// exist and be in a serviceable status.
func (e *Engine) Issue(ctx context.Context, accountID string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if statusErr := e.accountStatusError(account.Status); statusErr != nil {
		return nil, statusErr
	}
	if !e.roleRegistered(account.Role) {
		return nil, ErrRoleUnknown
	}

	pair, sess, err := e.issueForAccount(ctx, account.AccountID, account.Role)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTokenIssued, true, account.AccountID, sess.ID, nil, nil)

	return pair, nil
}

// issueForAccount opens a fresh session row and mints the token pair
// for it. The refresh window starts at the injected clock's now; the
// returned pair's RefreshableUntil mirrors the row's expires_at.
func (e *Engine) issueForAccount(ctx context.Context, accountID, role string) (*TokenPair, *session.Session, error) {
	refreshToken, digest, err := internal.NewRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.now()
	sess := &session.Session{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Role:          role,
		RefreshDigest: digest,
		IssuedAt:      now,
		ExpiresAt:     now.Add(e.config.JWT.RefreshTTL),
	}

	if err := e.sessionStore.Save(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	e.metricInc(MetricSessionCreated)

	access, accessExpiry, err := e.jwtManager.CreateAccess(accountID, role, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	return &TokenPair{
		Access:           access,
		Refresh:          refreshToken,
		ExpiredAt:        accessExpiry,
		RefreshableUntil: sess.ExpiresAt,
	}, sess, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, identifier, ip, accountID string) {
	if err := e.rateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
		log.Print("authcore: login counter increment failed: ", err)
	}

	lockedNow, err := e.lockout.RecordFailure(ctx, accountID)
	if err != nil {
		log.Print("authcore: lockout counter increment failed: ", err)
		return
	}
	if lockedNow {
		e.metricInc(MetricAccountLockout)
		e.emitAudit(ctx, auditEventAccountLockout, false, accountID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
	}
}
