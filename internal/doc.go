// Package internal contains helper utilities that are intentionally private to authcore,
// including secure random generation for refresh tokens.
//
// # Sub-packages
//
//   - limiters — domain-specific limiters (account lockout)
//   - rate — core Redis-backed rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
