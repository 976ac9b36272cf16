// Package authcore is an embeddable token lifecycle engine: credential
// verification, JWT access tokens paired with opaque rotating refresh
// tokens, durable session rows, and Redis-backed rate limiting and
// lockout.
//
// The host application brings its own account storage through
// [AccountStore]; authcore owns everything between a credential pair
// arriving and a token pair going out. Construction goes through the
// builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithDB(db).
//		WithAccountStore(accounts).
//		Build()
//
// # Sessions and rotation
//
// Every issued token pair is backed by a session row. Refreshing
// rotates the row: the presented session is retired and a successor is
// inserted in one transaction, so a refresh token is spendable exactly
// once. Retired rows are kept, not deleted; presenting a retired
// token again is detected as reuse and answered by revoking every
// session of the account.
//
// # Time
//
// All expiry, lockout, and retention decisions flow through the
// injected [Clock]. Tests substitute a fake clock and step it.
package authcore
