package authcore

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountActive is an exported constant or variable used by the authentication engine.
	AccountActive AccountStatus = iota
	// AccountPendingVerification is an exported constant or variable used by the authentication engine.
	AccountPendingVerification
	// AccountSuspended is an exported constant or variable used by the authentication engine.
	AccountSuspended
	// AccountBanned is an exported constant or variable used by the authentication engine.
	AccountBanned
)

// AccountStore is the interface callers must implement to integrate
// authcore with their account database. It covers credential lookup and
// the two mutations the engine performs: password hash updates and
// status transitions. Everything else about accounts belongs to the host
// application.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (AccountRecord, error)
	GetByID(ctx context.Context, accountID string) (AccountRecord, error)
	UpdatePasswordHash(ctx context.Context, accountID string, newHash string) error
	UpdateStatus(ctx context.Context, accountID string, status AccountStatus) error
}

// AccountRecord is the account view returned by [AccountStore]. It
// carries the credential hash, the lifecycle status, and the role string
// minted into access tokens.
type AccountRecord struct {
	AccountID    string
	Identifier   string
	PasswordHash string
	Role         string
	Status       AccountStatus
}

// PasswordHasher abstracts the credential hash scheme. The default
// implementation is Argon2id in PHC string format; hosts may substitute
// their own as long as Verify is constant time on the comparison.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsUpgrade(encoded string) bool
}

// Clock supplies the engine's notion of now. Injected so expiry,
// lockout, and retention behavior is deterministic under test.
type Clock func() time.Time

// TokenPair is the credential bundle returned by login, issue, and
// refresh. The JSON field names and RFC 3339 timestamp encoding are a
// wire contract; integrations parse this shape byte for byte.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	ExpiredAt        time.Time `json:"expired_at"`
	RefreshableUntil time.Time `json:"refreshable_until"`
}

// AuthResult is returned by [Engine.ValidateAccess] and
// [Engine.ValidateAccessStrict]. It identifies the authenticated
// account, its role, and the session the access token was minted for.
type AuthResult struct {
	AccountID string
	Role      string
	SessionID string
}

// ResetChallenge is returned by [Engine.RequestPasswordReset]. Token is
// the opaque value to deliver to the account holder out of band; the
// engine never stores it in recoverable form. ExpiresAt is when the
// challenge lapses.
type ResetChallenge struct {
	Token     string
	ExpiresAt time.Time
}

// SessionInfo is the read-only session view returned by
// [Engine.ActiveSessions].
type SessionInfo struct {
	SessionID string
	AccountID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
