// Package limiters provides domain-specific limiters built on top of
// Redis counters.
//
// # Limiters
//
//   - [LockoutLimiter] — per-account failure counter plus timed lock key.
//
// All limiters are nil-safe when disabled: a zero-config limiter counts
// nothing and never reports a lock.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting — the engine decides consequences.
package limiters
