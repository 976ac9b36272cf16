// Package session persists refresh sessions as durable SQL rows.
//
// # Row lifecycle
//
// A row is inserted at issuance and revoked at most once (revoked_at is
// set-once). Rotation retires the presented row and inserts a successor
// inside one transaction; presenting a retired row's token again is how
// reuse is detected, which is why lifecycle operations never delete
// rows. The retention purge is the only physical delete and it only
// touches rows that have been expired for the full retention window.
//
// # Concurrency
//
// Rotation starts its transaction with a conditional UPDATE, so the
// write lock is taken before any read. Under WAL with a busy timeout,
// concurrent rotations of the same token serialize: one wins, the rest
// classify the committed state (ErrRevoked) and report it.
//
// # What this package must NOT do
//
//   - Mint, hash, or compare tokens — callers pass digests only.
//   - Read the wall clock; the injected clock is the single time source.
//   - Import any other authcore package.
package session
