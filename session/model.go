package session

import "time"

// Revocation reasons recorded on session rows. Free-form reasons are
// allowed; these are the ones the engine writes itself.
const (
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonRotated        = "rotated"
	ReasonTokenReuse     = "token reuse"
	ReasonPasswordChange = "password change"
	ReasonPasswordReset  = "password reset"
	ReasonStatusChange   = "account status change"
)

// Session defines a public type used by authcore APIs.
//
// A session row is written once at issuance and mutated exactly once
// afterwards, when RevokedAt is set. Rows are never physically deleted
// by lifecycle operations; only the retention purge removes rows, and
// only after they have been expired for the full retention window.
type Session struct {
	ID        string
	AccountID string
	Role      string

	// RefreshDigest is the hex SHA-256 of the opaque refresh token.
	// The token itself is never stored.
	RefreshDigest string

	IssuedAt  time.Time
	ExpiresAt time.Time

	RevokedAt    *time.Time
	RevokeReason string
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session's refresh window has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Active reports whether the session can still be refreshed: not
// revoked and not expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked() && !s.Expired(now)
}
