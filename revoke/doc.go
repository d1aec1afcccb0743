// Package revoke persists refresh-token revocation records in the shared
// Redis store. A record's existence is what makes a signature-valid refresh
// token honorable: absence, whether from logout, rotation, or natural TTL
// expiry, means the token is rejected.
//
// Records are keyed refresh:{userID}:{sessionID} with TTL equal to the
// refresh token's lifetime. A secondary per-user index set makes bulk
// revocation possible without a store-wide prefix scan.
package revoke
