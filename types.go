package authsec

import (
	"context"
	"time"
)

// TokenPair is returned by [Engine.GenerateTokens] and
// [Engine.RefreshAccessToken]. SessionID identifies the revocation record
// tracking the refresh token; pass it to [Engine.RevokeSession] on logout.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// RateLimitDecision is returned by [Engine.Allow].
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time

	// RetryAfter is set only when the request was rejected.
	RetryAfter time.Duration

	// FailedOpen reports that the shared store was unreachable and the request
	// was admitted in degraded mode rather than counted.
	FailedOpen bool
}

// RateLimitStatus is the read-only counter snapshot returned by
// [Engine.RateLimitStatus]; it never consumes an attempt slot.
type RateLimitStatus struct {
	Count     int
	Remaining int
	ResetAt   time.Time
}

// TwoFactorMethod names the out-of-band delivery channel for one-time codes.
type TwoFactorMethod string

const (
	// MethodEmail is an exported constant or variable used by the security core.
	MethodEmail TwoFactorMethod = "email"
	// MethodSMS is an exported constant or variable used by the security core.
	MethodSMS TwoFactorMethod = "sms"
)

// TwoFactorState is the per-user challenge state persisted by the portal's
// document database through [TwoFactorStore]. Only the engine mutates it.
//
// Invariants: at most one non-expired CodeHash at a time; FailedAttempts
// resets to zero whenever a code is issued or a verification succeeds;
// reaching the configured threshold sets LockedUntil and blocks all code and
// backup verification until it elapses; each backup hash is removed the
// moment it matches.
type TwoFactorState struct {
	Enabled          bool            `json:"enabled"`
	Method           TwoFactorMethod `json:"method,omitempty"`
	CodeHash         string          `json:"code_hash,omitempty"`
	CodeExpiresAt    int64           `json:"code_expires_at,omitempty"`
	FailedAttempts   int             `json:"failed_attempts,omitempty"`
	LockedUntil      int64           `json:"locked_until,omitempty"`
	BackupCodeHashes []string        `json:"backup_code_hashes,omitempty"`
	LastUsedAt       int64           `json:"last_used_at,omitempty"`
}

// TwoFactorStore is implemented by the portal's user persistence layer.
//
// Get must return the zero TwoFactorState (not an error) for users with no
// challenge record. Mutate must apply fn to the current state and persist the
// result as a single atomic read-modify-write on the user's record (e.g. a
// document-level findAndModify); two concurrent Mutate calls for the same
// user must serialize. When fn returns an error the write is abandoned and
// the error is returned unchanged.
type TwoFactorStore interface {
	Get(ctx context.Context, userID string) (TwoFactorState, error)
	Mutate(ctx context.Context, userID string, fn func(*TwoFactorState) error) (TwoFactorState, error)
}

// TwoFactorStatus is the read-only snapshot returned by
// [Engine.TwoFactorStatus].
type TwoFactorStatus struct {
	Enabled              bool
	Method               TwoFactorMethod
	BackupCodesRemaining int
	LastUsedAt           time.Time
	Locked               bool
	LockedUntil          time.Time
}

// TwoFactorEnrollment is returned once by [Engine.EnableTwoFactor]. The
// plaintext backup codes are never recoverable afterwards.
type TwoFactorEnrollment struct {
	Method      TwoFactorMethod
	BackupCodes []string
}

// UserIdentity is the minimal identity projection the engine needs to mint
// access tokens during refresh rotation.
type UserIdentity struct {
	UserID string
	Email  string
	Role   string
}

// UserDirectory is implemented by the portal's user persistence layer; the
// engine performs no credential checks and stores no business entities.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (UserIdentity, error)
}
