// Package authsec is the authentication security core for the campuskit
// portal backend: JWT access tokens, rotating revocable refresh tokens,
// Redis-backed fixed-window rate limiting, and a per-user two-factor
// challenge state machine with single-use backup codes.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authsec is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (TokenPair, RateLimitDecision, TwoFactorStatus, etc.). Internal
// coordination (rate limiting primitives and audit dispatch) lives under
// internal/ and is never exported. Token signing and revocation records are
// public subpackages (token, revoke) so integrators can reuse them directly.
//
// # What this package must NOT do
//
//   - Persist business entities. Users, announcements, tickets, and two-factor
//     state belong to the portal's document database; the engine reaches them
//     only through the [TwoFactorStore] and [UserDirectory] interfaces.
//   - Deliver anything out-of-band. IssueTwoFactorCode and EnableTwoFactor
//     return plaintext secrets exactly once for an external notifier to send.
//   - Block a primary operation on audit delivery. Security events are
//     fire-and-forget; drops are counted, never propagated.
//
// # Failure contract
//
// The shared Redis store is the single source of truth for revocation records
// and rate-limit counters. When it is unreachable the rate limiter fails open
// (availability over strictness, logged as a degraded-mode event) while token
// issuance, refresh rotation, and two-factor verification fail closed with
// [ErrStoreUnavailable].
package authsec
