package authcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/tessellated/authcore/internal"
	"github.com/tessellated/authcore/session"
)

// RequestPasswordReset opens a reset challenge for an account and
// returns the opaque token to deliver out of band.
//
// Unknown identifiers and non-serviceable accounts receive a decoy
// challenge that maps to nothing, after a small random delay, so the
// response never discloses whether the identifier exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (*ResetChallenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.PasswordReset.Enabled || e.resetStore == nil {
		return nil, ErrPasswordResetDisabled
	}

	ip := clientIPFromContext(ctx)

	if err := e.resetLimiter.CheckRequest(ctx, identifier, ip); err != nil {
		mapped := mapPasswordResetLimiterError(err)
		if errors.Is(mapped, ErrPasswordResetRateLimited) {
			e.metricInc(MetricPasswordResetRateLimited)
			e.emitRateLimit(ctx, "password_reset_request", func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
		}
		return nil, mapped
	}

	expiresAt := e.now().Add(e.config.PasswordReset.ResetTTL)

	account, lookupErr := e.accounts.GetByIdentifier(ctx, identifier)
	serviceable := lookupErr == nil && e.accountStatusError(account.Status) == nil
	if !serviceable {
		challenge, err := e.decoyResetChallenge(ctx)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{"identifier": identifier, "decoy": "true"}
		})
		return &ResetChallenge{Token: challenge, ExpiresAt: expiresAt}, nil
	}

	resetID := uuid.NewString()
	secret, err := internal.NewResetSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	record := &passwordResetRecord{
		AccountID:  account.AccountID,
		SecretHash: internal.HashResetSecret(secret),
		ExpiresAt:  expiresAt.Unix(),
	}
	if err := e.resetStore.Save(ctx, resetID, record, e.config.PasswordReset.ResetTTL); err != nil {
		return nil, mapPasswordResetStoreError(err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.AccountID, "", nil, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})

	return &ResetChallenge{
		Token:     internal.EncodeResetToken(resetID, secret),
		ExpiresAt: expiresAt,
	}, nil
}

// ConfirmPasswordReset consumes a reset challenge and installs a new
// credential. The challenge is single use: a match deletes it, repeated
// mismatches exhaust it, and success revokes every session of the
// account.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, challengeToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.config.PasswordReset.Enabled || e.resetStore == nil {
		return ErrPasswordResetDisabled
	}

	resetID, secret, err := internal.DecodeResetToken(challengeToken)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrPasswordResetInvalid
	}

	ip := clientIPFromContext(ctx)
	if err := e.resetLimiter.CheckConfirm(ctx, resetID, ip); err != nil {
		mapped := mapPasswordResetLimiterError(err)
		if errors.Is(mapped, ErrPasswordResetRateLimited) {
			e.metricInc(MetricPasswordResetRateLimited)
			e.emitRateLimit(ctx, "password_reset_confirm", nil)
		}
		return mapped
	}

	record, err := e.resetStore.Consume(ctx, resetID, internal.HashResetSecret(secret), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		mapped := mapPasswordResetStoreError(err)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", mapped, nil)
		return mapped
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.AccountID, "", ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.accounts.UpdatePasswordHash(ctx, record.AccountID, newHash); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.AccountID, "", err, nil)
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	n, err := e.sessionStore.RevokeAllForAccount(ctx, record.AccountID, session.ReasonPasswordReset)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.AccountID, "", ErrSessionInvalidationFailed, nil)
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	e.metricAdd(MetricSessionRevoked, uint64(n))

	if account, lookupErr := e.accounts.GetByID(ctx, record.AccountID); lookupErr == nil {
		if err := e.rateLimiter.ResetLogin(ctx, account.Identifier, ip); err != nil {
			log.Print("authcore: login counter reset failed: ", err)
		}
	}
	if err := e.lockout.Unlock(ctx, record.AccountID); err != nil {
		log.Print("authcore: lockout unlock failed: ", err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.AccountID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": fmt.Sprintf("%d", n)}
	})

	return nil
}

// decoyResetChallenge mints a challenge-shaped token that maps to no
// stored record, after a jittered delay approximating the real path's
// store round trip.
func (e *Engine) decoyResetChallenge(ctx context.Context) (string, error) {
	if err := sleepEnumerationDelay(ctx); err != nil {
		return "", err
	}

	secret, err := internal.NewResetSecret()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	return internal.EncodeResetToken(uuid.NewString(), secret), nil
}

func mapPasswordResetLimiterError(err error) error {
	switch {
	case errors.Is(err, errResetRateLimited):
		return ErrPasswordResetRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}
}

func mapPasswordResetStoreError(err error) error {
	switch {
	case errors.Is(err, errResetNotFound), errors.Is(err, errResetSecretMismatch):
		return ErrPasswordResetInvalid
	case errors.Is(err, errResetAttemptsExceeded):
		return ErrPasswordResetAttempts
	default:
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}
}

func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
