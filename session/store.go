package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"
)

var (
	// ErrNotFound is an exported constant or variable used by the authentication engine.
	ErrNotFound = errors.New("session not found")
	// ErrRevoked is an exported constant or variable used by the authentication engine.
	ErrRevoked = errors.New("session revoked")
	// ErrExpired is an exported constant or variable used by the authentication engine.
	ErrExpired = errors.New("session expired")
	// ErrUnavailable is an exported constant or variable used by the authentication engine.
	ErrUnavailable = errors.New("session store unavailable")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL,
	role               TEXT NOT NULL,
	refresh_token_hash TEXT NOT NULL UNIQUE,
	issued_at          INTEGER NOT NULL,
	expires_at         INTEGER NOT NULL,
	revoked_at         INTEGER,
	revoke_reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account_id);
`

const selectColumns = `id, account_id, role, refresh_token_hash, issued_at, expires_at, revoked_at, revoke_reason`

// Open opens (or creates) a SQLite database at path with the pragmas
// the store depends on: WAL for concurrent readers and a busy timeout
// so competing writers queue instead of failing.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return db, nil
}

// Store persists session rows in SQL. All reads and writes use the
// injected clock, never the wall clock, so expiry decisions are
// deterministic under test.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore binds a Store to db and bootstraps the schema. The now
// function is required.
func NewStore(db *sql.DB, now func() time.Time) (*Store, error) {
	if db == nil {
		return nil, errors.New("session store requires a database handle")
	}
	if now == nil {
		return nil, errors.New("session store requires a clock")
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Store{db: db, now: now}, nil
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess.ID == "" || sess.AccountID == "" || sess.RefreshDigest == "" {
		return errors.New("session is missing required fields")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, role, refresh_token_hash, issued_at, expires_at, revoked_at, revoke_reason)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, '')`,
		sess.ID, sess.AccountID, sess.Role, sess.RefreshDigest,
		sess.IssuedAt.Unix(), sess.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// GetByRefreshDigest looks up the session holding the given refresh
// token digest, regardless of its revocation or expiry state.
func (s *Store) GetByRefreshDigest(ctx context.Context, digest string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE refresh_token_hash = ?`, digest)
	return scanSession(row)
}

// Rotate atomically retires the session holding digest and inserts next
// in its place. Exactly one concurrent caller for a given digest wins;
// the conditional UPDATE takes the write lock first, so losers observe
// the winner's commit and classify it.
//
// On success the predecessor is returned and next has AccountID and
// Role filled in from it. On failure the error is one of ErrNotFound,
// ErrExpired, or ErrRevoked; for ErrRevoked the predecessor is also
// returned so the caller can run its reuse response.
func (s *Store) Rotate(ctx context.Context, digest string, next *Session) (*Session, error) {
	if next == nil || next.ID == "" || next.RefreshDigest == "" {
		return nil, errors.New("rotation successor is missing required fields")
	}

	now := s.now().Unix()
	var old *Session

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET revoked_at = ?, revoke_reason = ?
			 WHERE refresh_token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
			now, ReasonRotated, digest, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM sessions WHERE refresh_token_hash = ?`, digest)
		prev, scanErr := scanSession(row)
		if scanErr != nil {
			if n == 0 && errors.Is(scanErr, ErrNotFound) {
				return ErrNotFound
			}
			return scanErr
		}

		if n == 0 {
			old = prev
			if prev.Revoked() {
				return ErrRevoked
			}
			return ErrExpired
		}

		old = prev
		next.AccountID = prev.AccountID
		next.Role = prev.Role

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, account_id, role, refresh_token_hash, issued_at, expires_at, revoked_at, revoke_reason)
			 VALUES (?, ?, ?, ?, ?, ?, NULL, '')`,
			next.ID, next.AccountID, next.Role, next.RefreshDigest,
			next.IssuedAt.Unix(), next.ExpiresAt.Unix())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return old, err
	}
	return old, nil
}

// Revoke marks one session revoked and returns how many rows it
// flipped (1 or 0). Idempotent: revoking an absent or already-revoked
// session succeeds with zero rows touched, so the original revocation
// timestamp and reason are preserved.
func (s *Store) Revoke(ctx context.Context, sessionID, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ?, revoke_reason = ?
		 WHERE id = ? AND revoked_at IS NULL`,
		s.now().Unix(), reason, sessionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// RevokeAllForAccount revokes every unrevoked session of an account in
// one statement and returns how many rows it touched. Single-statement
// execution means there is no read-modify-write window: sessions being
// rotated concurrently either commit before (and their successor is
// caught here) or after (and the rotation sees its predecessor already
// revoked).
func (s *Store) RevokeAllForAccount(ctx context.Context, accountID, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ?, revoke_reason = ?
		 WHERE account_id = ? AND revoked_at IS NULL`,
		s.now().Unix(), reason, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ActiveForAccount returns the account's sessions that are neither
// revoked nor expired, newest first.
func (s *Store) ActiveForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM sessions
		 WHERE account_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY issued_at DESC`,
		accountID, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// ActiveCount returns the number of unrevoked, unexpired sessions for
// an account.
func (s *Store) ActiveCount(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions
		 WHERE account_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		accountID, s.now().Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// PurgeExpired physically deletes rows whose refresh window lapsed more
// than retention ago. This is the only delete in the store; revoked
// rows inside the window always survive so reuse of their tokens stays
// detectable.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be > 0")
	}

	cutoff := s.now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// withTx runs fn inside one transaction: commit on nil, rollback on
// error, rollback and re-panic if fn panics.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("%w: %v", ErrUnavailable, commitErr)
		}
	}()

	err = fn(tx)
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		issuedAt  int64
		expiresAt int64
		revokedAt sql.NullInt64
	)

	err := row.Scan(
		&sess.ID, &sess.AccountID, &sess.Role, &sess.RefreshDigest,
		&issuedAt, &expiresAt, &revokedAt, &sess.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess.IssuedAt = time.Unix(issuedAt, 0).UTC()
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if revokedAt.Valid {
		t := time.Unix(revokedAt.Int64, 0).UTC()
		sess.RevokedAt = &t
	}

	return &sess, nil
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	return scanSession(rows)
}
