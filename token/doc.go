// Package token signs and parses the two JWT kinds the security core issues:
// short-lived self-contained access tokens and longer-lived refresh tokens
// whose validity additionally depends on a revocation record in the shared
// store (checked by the engine, not here).
//
// Access and refresh tokens are signed with independent keys so that a leaked
// access secret cannot be used to mint refresh tokens. ParseAccess and
// ParseRefresh are pure: no I/O, safe on every request hot path.
package token
