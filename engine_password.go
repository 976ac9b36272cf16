package authcore

import (
	"context"
	"fmt"
	"log"

	"github.com/tessellated/authcore/session"
)

// ChangePassword replaces an account's credential after verifying the
// current one. All sessions of the account are revoked on success; the
// caller is expected to log the account in again with the new
// credential.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return ErrAccountNotFound
	}

	ok, err := e.passwordHash.Verify(oldPassword, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, accountID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if newPassword == oldPassword {
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, accountID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.accounts.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
		return err
	}

	n, err := e.sessionStore.RevokeAllForAccount(ctx, accountID, session.ReasonPasswordChange)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", ErrSessionInvalidationFailed, nil)
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	e.metricAdd(MetricSessionRevoked, uint64(n))

	ip := clientIPFromContext(ctx)
	if err := e.rateLimiter.ResetLogin(ctx, account.Identifier, ip); err != nil {
		log.Print("authcore: login counter reset failed: ", err)
	}
	if err := e.lockout.Unlock(ctx, accountID); err != nil {
		log.Print("authcore: lockout unlock failed: ", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": fmt.Sprintf("%d", n)}
	})

	return nil
}
