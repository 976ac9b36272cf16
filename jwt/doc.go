// Package jwt wraps github.com/golang-jwt/jwt/v5 with the claim shape
// and validation rules used for access tokens.
//
// # Claims
//
// Access tokens carry uid (account), role, and sid (session) plus the
// registered exp/iat/iss/aud claims. Tokens are stateless; revocation
// checks against the session store are the engine's job.
//
// # Validation
//
// ParseAccess enforces the configured algorithm, optional issuer and
// audience, bounded leeway, and an upper bound on future iat values.
// The time source is injected via Config.Now.
//
// # What this package must NOT do
//
//   - Mint or validate refresh tokens (those are opaque, not JWTs).
//   - Import any other authcore package.
package jwt
